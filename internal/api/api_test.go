package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/server/tasks"
	"github.com/jackadi-io/hive/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeService struct {
	records   []task.Record
	drones    []store.Drone
	err       error
	created   []tasks.Request
	issuers   []string
	deleted   []task.ID
	lastDrone task.DroneID
}

func (f *fakeService) Create(_ context.Context, droneID task.DroneID, issuer string, req tasks.Request) (task.Record, error) {
	if f.err != nil {
		return task.Record{}, f.err
	}
	f.lastDrone = droneID
	f.created = append(f.created, req)
	f.issuers = append(f.issuers, issuer)
	return task.Record{TaskID: "new", DroneID: droneID, Issuer: issuer, Command: req.Command, Arguments: req.Arguments}, nil
}

func (f *fakeService) List(context.Context) ([]task.Record, error) {
	return f.records, f.err
}

func (f *fakeService) ListByDrone(_ context.Context, droneID task.DroneID) ([]task.Record, error) {
	f.lastDrone = droneID
	return f.records, f.err
}

func (f *fakeService) Get(_ context.Context, droneID task.DroneID, taskID task.ID) (task.Record, error) {
	if f.err != nil {
		return task.Record{}, f.err
	}
	for _, r := range f.records {
		if r.DroneID == droneID && r.TaskID == taskID {
			return r, nil
		}
	}
	return task.Record{}, tasks.ErrTaskNotFound
}

func (f *fakeService) Delete(_ context.Context, _ task.DroneID, taskID task.ID) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, taskID)
	return nil
}

func (f *fakeService) Drones(context.Context) ([]store.Drone, error) {
	return f.drones, f.err
}

func newTestHandler(t *testing.T, svc TaskService, authz *Authorizer) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	htpasswd := Htpasswd{creds: map[string]string{"alice": string(hash), "bob": string(hash)}}

	h, err := NewHandler(svc, htpasswd, authz)
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.SetBasicAuth(user, "secret")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateTask(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(t, svc, nil)

	rr := do(t, h, "alice", http.MethodPost, "/v1/tasks/web01",
		`{"command":"runas","arguments":["CORP\\svc-admin","Sup3rSecret","whoami"],"result_type":"table"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got task.Record
	require.NoError(t, serializer.JSON.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, task.ID("new"), got.TaskID)
	assert.Equal(t, "alice", got.Issuer)

	require.Len(t, svc.created, 1)
	assert.Equal(t, task.DroneID("web01"), svc.lastDrone)
	assert.Equal(t, task.RUNAS, svc.created[0].Command)
	assert.Equal(t, task.TABLE, svc.created[0].ResultType)
	assert.Equal(t, []string{`CORP\svc-admin`, "Sup3rSecret", "whoami"}, svc.created[0].Arguments)
}

func TestCreateTask_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown command name", `{"command":"format-disk"}`},
		{"bad result type", `{"command":"run","result_type":"video"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rr := do(t, newTestHandler(t, svc, nil), "alice", http.MethodPost, "/v1/tasks/web01", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, svc.created)

			var body ErrorResponse
			require.NoError(t, serializer.JSON.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, http.StatusBadRequest, body.Status)
		})
	}
}

func TestCreateTask_CommandPermission(t *testing.T) {
	authz := NewAuthorizer("")
	require.NoError(t, authz.parse([]byte(`
users:
  bob:
    roles: [operator]
roles:
  operator:
    endpoints: ["tasks:*"]
    commands: ["web01:run"]
`)))

	svc := &fakeService{}
	h := newTestHandler(t, svc, authz)

	rr := do(t, h, "bob", http.MethodPost, "/v1/tasks/web01", `{"command":"shell","arguments":["id"]}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, "bob", http.MethodPost, "/v1/tasks/web01", `{"command":"run","arguments":["id"]}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, svc.created, 1)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"drone not found", fmt.Errorf("%w: web01", tasks.ErrDroneNotFound), http.StatusNotFound},
		{"task not found", tasks.ErrTaskNotFound, http.StatusNotFound},
		{"terminal task", fmt.Errorf("%w: task is COMPLETE", tasks.ErrInvalidState), http.StatusBadRequest},
		{"invalid request", tasks.ErrInvalidRequest, http.StatusBadRequest},
		{"store failure", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &fakeService{err: tt.err}, nil)
			rr := do(t, h, "alice", http.MethodDelete, "/v1/tasks/web01/abc", "")
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestCreateTask_ArtefactTooLarge(t *testing.T) {
	err := fmt.Errorf("failed to encode task: %w", fmt.Errorf("%w: 4194400 bytes", frame.ErrFrameTooLarge))
	h := newTestHandler(t, &fakeService{err: err}, nil)

	rr := do(t, h, "alice", http.MethodPost, "/v1/tasks/web01", `{"command":"upload","arguments":["/tmp/big"]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, rr.Body.String())
}

func TestDeleteTask(t *testing.T) {
	svc := &fakeService{}
	rr := do(t, newTestHandler(t, svc, nil), "alice", http.MethodDelete, "/v1/tasks/web01/abc", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.Bytes())
	assert.Equal(t, []task.ID{"abc"}, svc.deleted)
}

func TestListAndGet(t *testing.T) {
	svc := &fakeService{
		records: []task.Record{
			{TaskID: "t1", DroneID: "web01", Command: task.UPLD, Artefact: []byte("payload")},
			{TaskID: "t2", DroneID: "web01", Command: task.RUN},
		},
		drones: []store.Drone{{ID: "web01", Hostname: "web01.corp", Connected: true}},
	}
	h := newTestHandler(t, svc, nil)

	t.Run("list strips artefacts", func(t *testing.T) {
		rr := do(t, h, "alice", http.MethodGet, "/v1/tasks", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got []task.Record
		require.NoError(t, serializer.JSON.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Nil(t, got[0].Artefact)
		assert.Equal(t, []byte("payload"), svc.records[0].Artefact)
	})

	t.Run("list by drone", func(t *testing.T) {
		rr := do(t, h, "alice", http.MethodGet, "/v1/tasks/web01", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, task.DroneID("web01"), svc.lastDrone)
	})

	t.Run("get keeps artefact", func(t *testing.T) {
		rr := do(t, h, "alice", http.MethodGet, "/v1/tasks/web01/t1", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got task.Record
		require.NoError(t, serializer.JSON.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, []byte("payload"), got.Artefact)
	})

	t.Run("get unknown task", func(t *testing.T) {
		rr := do(t, h, "alice", http.MethodGet, "/v1/tasks/web01/nope", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("drones", func(t *testing.T) {
		rr := do(t, h, "alice", http.MethodGet, "/v1/drones", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got []store.Drone
		require.NoError(t, serializer.JSON.Unmarshal(rr.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.True(t, got[0].Connected)
	})
}

func TestUnauthenticated(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(t, svc, nil)

	rr := do(t, h, "", http.MethodPost, "/v1/tasks/web01", `{"command":"run"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, svc.created)
}
