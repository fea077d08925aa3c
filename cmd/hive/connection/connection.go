package connection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackadi-io/hive/cmd/hive/option"
	"github.com/jackadi-io/hive/internal/api"
	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/task"
)

const requestTimeout = time.Minute

// APIError is a non 2xx answer of the team server API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("team server answered %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// Client talks to the team server HTTP API.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
}

func New(baseURL, user, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// Dial returns a client configured from the command line options.
func Dial() *Client {
	return New(option.GetAPIURL(), option.GetUser(), option.GetPassword())
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := serializer.JSON.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach the team server: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody api.ErrorResponse
		if serializer.JSON.Unmarshal(data, &errBody) == nil {
			apiErr.Message = errBody.Message
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := serializer.JSON.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) Drones(ctx context.Context) ([]store.Drone, error) {
	var drones []store.Drone
	err := c.do(ctx, http.MethodGet, "/v1/drones", nil, &drones)
	return drones, err
}

// Tasks lists the tasks of droneID, or of every drone when droneID is empty.
func (c *Client) Tasks(ctx context.Context, droneID string) ([]task.Record, error) {
	path := "/v1/tasks"
	if droneID != "" {
		path += "/" + url.PathEscape(droneID)
	}
	var records []task.Record
	err := c.do(ctx, http.MethodGet, path, nil, &records)
	return records, err
}

func (c *Client) Task(ctx context.Context, droneID, taskID string) (task.Record, error) {
	var record task.Record
	err := c.do(ctx, http.MethodGet, taskPath(droneID, taskID), nil, &record)
	return record, err
}

func (c *Client) CreateTask(ctx context.Context, droneID string, req api.CreateTaskRequest) (task.Record, error) {
	var record task.Record
	err := c.do(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(droneID), req, &record)
	return record, err
}

func (c *Client) DeleteTask(ctx context.Context, droneID, taskID string) error {
	return c.do(ctx, http.MethodDelete, taskPath(droneID, taskID), nil, nil)
}

func taskPath(droneID, taskID string) string {
	return "/v1/tasks/" + url.PathEscape(droneID) + "/" + url.PathEscape(taskID)
}

// Context returns a context bounded by the request timeout.
func Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
