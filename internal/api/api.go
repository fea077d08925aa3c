// Package api exposes the operator task surface over HTTP.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/server/tasks"
	"github.com/jackadi-io/hive/internal/task"
)

// TaskService is the task surface served by the API.
type TaskService interface {
	Create(ctx context.Context, droneID task.DroneID, issuer string, req tasks.Request) (task.Record, error)
	List(ctx context.Context) ([]task.Record, error)
	ListByDrone(ctx context.Context, droneID task.DroneID) ([]task.Record, error)
	Get(ctx context.Context, droneID task.DroneID, taskID task.ID) (task.Record, error)
	Delete(ctx context.Context, droneID task.DroneID, taskID task.ID) error
	Drones(ctx context.Context) ([]store.Drone, error)
}

type Config struct {
	ConfigDir  string
	Address    string
	Port       string
	HTPasswd   string
	TLSEnabled bool
	TLSCert    string
	TLSKey     string
}

// CreateTaskRequest is the body of POST /v1/tasks/{drone}.
type CreateTaskRequest struct {
	Command      string   `json:"command"`
	Alias        string   `json:"alias,omitempty"`
	Arguments    []string `json:"arguments"`
	ArtefactPath string   `json:"artefact_path,omitempty"`
	Artefact     []byte   `json:"artefact,omitempty"`
	ResultType   string   `json:"result_type,omitempty"`
}

// ErrorResponse is the body of every non 2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type Server struct {
	tasks TaskService
	authz *Authorizer
}

func NewServer(svc TaskService, authz *Authorizer) *Server {
	if authz == nil {
		authz = NewAuthorizer("")
	}
	return &Server{tasks: svc, authz: authz}
}

// Handler returns the API routes, without authentication.
func (s *Server) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/tasks", s.listTasks},
		{http.MethodGet, "/v1/tasks/{drone}", s.listDroneTasks},
		{http.MethodGet, "/v1/tasks/{drone}/{task}", s.getTask},
		{http.MethodPost, "/v1/tasks/{drone}", s.createTask},
		{http.MethodDelete, "/v1/tasks/{drone}/{task}", s.deleteTask},
		{http.MethodGet, "/v1/drones", s.listDrones},
	}
	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.pattern, route.handler); err != nil {
			return nil, fmt.Errorf("failed to register %s %s: %w", route.method, route.pattern, err)
		}
	}
	return mux, nil
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	records, err := s.tasks.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries(records))
}

func (s *Server) listDroneTasks(w http.ResponseWriter, r *http.Request, params map[string]string) {
	records, err := s.tasks.ListByDrone(r.Context(), task.DroneID(params["drone"]))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries(records))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request, params map[string]string) {
	record, err := s.tasks.Get(r.Context(), task.DroneID(params["drone"]), task.ID(params["task"]))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request, params map[string]string) {
	droneID := task.DroneID(params["drone"])

	var body CreateTaskRequest
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxFrameSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if err := serializer.JSON.Unmarshal(data, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issuer, _ := userFromContext(r.Context())
	if !s.authz.canRunCommand(issuer, string(droneID), req.Command.String()) {
		slog.Warn("insufficient permissions", "username", issuer, "drone", droneID, "command", req.Command)
		writeError(w, http.StatusForbidden, "insufficient permissions to run this command")
		return
	}

	record, err := s.tasks.Create(r.Context(), droneID, issuer, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	slog.Info("task created", "drone", droneID, "task", record.TaskID, "command", record.Command, "issuer", issuer)
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request, params map[string]string) {
	droneID, taskID := task.DroneID(params["drone"]), task.ID(params["task"])
	if err := s.tasks.Delete(r.Context(), droneID, taskID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDrones(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	drones, err := s.tasks.Drones(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drones)
}

func (b CreateTaskRequest) toRequest() (tasks.Request, error) {
	cmd, err := task.ParseCommand(b.Command)
	if err != nil {
		return tasks.Request{}, err
	}
	var resultType task.ResultType
	if b.ResultType != "" {
		if err := resultType.UnmarshalText([]byte(b.ResultType)); err != nil {
			return tasks.Request{}, err
		}
	}
	return tasks.Request{
		Command:      cmd,
		Alias:        b.Alias,
		Arguments:    b.Arguments,
		ArtefactPath: b.ArtefactPath,
		Artefact:     b.Artefact,
		ResultType:   resultType,
	}, nil
}

// summaries drops artefacts from listings.
func summaries(records []task.Record) []task.Record {
	out := make([]task.Record, len(records))
	for i, r := range records {
		r.Artefact = nil
		out[i] = r
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := serializer.JSON.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	data, _ := serializer.JSON.Marshal(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrDroneNotFound), errors.Is(err, tasks.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tasks.ErrInvalidState), errors.Is(err, tasks.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, frame.ErrFrameTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		slog.Error("task service failure", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// NewHandler chains authentication and authorization in front of the routes.
func NewHandler(svc TaskService, htpasswd Htpasswd, authz *Authorizer) (http.Handler, error) {
	if authz == nil {
		authz = NewAuthorizer("")
	}
	routes, err := NewServer(svc, authz).Handler()
	if err != nil {
		return nil, err
	}
	return htpasswd.basicAuthMiddleware(authz.handler(routes)), nil
}

// Start serves the API until ctx is done.
func Start(ctx context.Context, cfg Config, svc TaskService) error {
	slog.Info("loading htpasswd")
	htpasswdFile := cfg.HTPasswd
	if htpasswdFile == "" {
		htpasswdFile = filepath.Join(cfg.ConfigDir, config.HTPasswordFile)
	}
	htpasswd := NewHtpasswd()
	if err := htpasswd.load(htpasswdFile); err != nil {
		slog.Warn("htpasswd not loaded, every request will be rejected", "error", err)
	}

	authorizer := NewAuthorizer(cfg.ConfigDir)
	if err := authorizer.Load(); err != nil {
		return fmt.Errorf("failed to load permissions, please check %s: %w", AuthorizationFile, err)
	}

	handler, err := NewHandler(svc, htpasswd, authorizer)
	if err != nil {
		return err
	}

	apiAddr := fmt.Sprintf("%s:%s", cfg.Address, cfg.Port)
	httpServer := http.Server{
		Addr:              apiAddr,
		Handler:           handler,
		ReadHeaderTimeout: config.HTTPReadHeaderTimeout,
	}

	if cfg.TLSEnabled {
		if cfg.TLSCert == "" || cfg.TLSKey == "" {
			return errors.New("API TLS enabled but certificate or key file not specified")
		}

		certs, err := config.GetAPITLSCertificate(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load API TLS configuration: %w", err)
		}

		httpServer.TLSConfig = &tls.Config{Certificates: certs, MinVersion: tls.VersionTLS12}
	}
	slog.Info("starting web API", "address", apiAddr, "tls", cfg.TLSEnabled)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("web api failed to stop properly", "error", err)
		}
	}()

	if cfg.TLSEnabled {
		err = httpServer.ListenAndServeTLS("", "") // certificates already in TLSConfig
	} else {
		err = httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
