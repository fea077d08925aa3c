package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackadi-io/hive/internal/crypto"
	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/task"
)

type recordedEvent struct {
	Kind    string
	DroneID task.DroneID
	TaskID  task.ID
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) DroneTasked(droneID task.DroneID, taskID task.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{"tasked", droneID, taskID})
}

func (n *recordingNotifier) TaskDeleted(droneID task.DroneID, taskID task.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{"deleted", droneID, taskID})
}

type fixture struct {
	svc      *Service
	store    *store.Store
	codec    *frame.Codec
	notifier *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	session, err := crypto.NewSession(key)
	require.NoError(t, err)

	st := store.New(db)
	_, err = st.Touch("d1", store.DroneInfo{Hostname: "d1.local"}, time.Now())
	require.NoError(t, err)
	_, err = st.Touch("d2", store.DroneInfo{Hostname: "d2.local"}, time.Now())
	require.NoError(t, err)

	n := &recordingNotifier{}
	codec := frame.NewCodec(session)
	return fixture{svc: New(st, codec, n), store: st, codec: codec, notifier: n}
}

func whoami() Request {
	return Request{Command: task.RUN, Alias: "whoami", Arguments: []string{"whoami"}}
}

// droneFrame encodes a frame the way a drone reports task progress.
func (f fixture) droneFrame(t *testing.T, typ frame.Type, id task.ID, status task.Status, text string) frame.Frame {
	t.Helper()
	fr, err := f.codec.EncodeValue(typ, task.Output{TaskID: id, Status: status, Text: text})
	require.NoError(t, err)
	return fr
}

func (f fixture) startTask(t *testing.T, droneID task.DroneID) task.Record {
	t.Helper()
	ctx := context.Background()
	r, err := f.svc.Create(ctx, droneID, "alice", whoami())
	require.NoError(t, err)
	f.store.DrainFrames(droneID)
	require.NoError(t, f.svc.HandleFrame(ctx, droneID, f.droneFrame(t, frame.TaskRunning, r.TaskID, task.RUNNING, "")))
	return r
}

func (f fixture) mustGet(t *testing.T, id task.ID) task.Record {
	t.Helper()
	r, found, err := f.store.Get(id)
	require.NoError(t, err)
	require.True(t, found, "task %s not found", id)
	return r
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := Request{
		Command:    task.UPLD,
		Alias:      "upload",
		Arguments:  []string{"/tmp/payload"},
		Artefact:   []byte{0xde, 0xad},
		ResultType: task.BINARY,
	}
	r, err := f.svc.Create(ctx, "d1", "alice", req)
	require.NoError(t, err)

	assert.Len(t, r.TaskID, 10)
	assert.Equal(t, task.PENDING, r.Status)
	assert.Equal(t, "alice", r.Issuer)
	assert.Equal(t, task.BINARY, r.ResultType)
	assert.False(t, r.CreatedAt.IsZero())

	stored := f.mustGet(t, r.TaskID)
	if diff := cmp.Diff(r, stored); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}

	frames := f.store.DrainFrames("d1")
	require.Len(t, frames, 1)
	assert.Equal(t, frame.Task, frames[0].Frame.Type)

	var dt task.DroneTask
	require.NoError(t, f.codec.DecodeValue(frames[0].Frame, &dt))
	want := task.DroneTask{TaskID: r.TaskID, Command: task.UPLD, Arguments: []string{"/tmp/payload"}, Artefact: []byte{0xde, 0xad}}
	if diff := cmp.Diff(want, dt); diff != "" {
		t.Errorf("drone task mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []recordedEvent{{"tasked", "d1", r.TaskID}}, f.notifier.events)
}

func TestCreateDefaultsAlias(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Create(context.Background(), "d1", "alice", Request{Command: task.SHELL, Arguments: []string{"ls"}})
	require.NoError(t, err)
	assert.Equal(t, "shell", r.Alias)
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "ghost", "alice", whoami())
	require.ErrorIs(t, err, ErrDroneNotFound)

	_, err = f.svc.Create(ctx, "d1", "alice", Request{Command: task.Command(0x01)})
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, f.store.DrainFrames("d1"))
	assert.Empty(t, f.store.DrainFrames("ghost"))
	assert.Empty(t, f.notifier.events)
}

func TestTaskIDUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := make(map[task.ID]bool)
	for range 200 {
		r, err := f.svc.Create(ctx, "d1", "alice", whoami())
		require.NoError(t, err)
		require.False(t, seen[r.TaskID], "duplicate task id %s", r.TaskID)
		seen[r.TaskID] = true
	}

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 200)
	assert.Len(t, f.store.DrainFrames("d1"), 200)
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.svc.Create(ctx, "d1", "alice", whoami())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "d2", "bob", whoami())
	require.NoError(t, err)

	d1, err := f.svc.ListByDrone(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, d1, 1)
	assert.Equal(t, r1.TaskID, d1[0].TaskID)

	_, err = f.svc.ListByDrone(ctx, "ghost")
	require.ErrorIs(t, err, ErrDroneNotFound)

	got, err := f.svc.Get(ctx, "d1", r1.TaskID)
	require.NoError(t, err)
	assert.Equal(t, r1.TaskID, got.TaskID)

	_, err = f.svc.Get(ctx, "d2", r1.TaskID)
	require.ErrorIs(t, err, ErrTaskNotFound, "a task is only visible through its own drone")

	_, err = f.svc.Get(ctx, "ghost", r1.TaskID)
	require.ErrorIs(t, err, ErrDroneNotFound)

	drones, err := f.svc.Drones(ctx)
	require.NoError(t, err)
	assert.Len(t, drones, 2)
}

// A pending task is removed without any frame reaching the drone.
func TestDeletePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, "d1", "alice", whoami())
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "d1", r.TaskID))

	_, found, err := f.store.Get(r.TaskID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.store.DrainFrames("d1"), "no frame must be left for the drone")
	assert.Equal(t, recordedEvent{"deleted", "d1", r.TaskID}, f.notifier.events[len(f.notifier.events)-1])

	err = f.svc.Delete(ctx, "d1", r.TaskID)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

// A task deleted between being stored and having its frame cached must not reach the drone.
func TestQueueDeletedTask(t *testing.T) {
	f := newFixture(t)

	record := task.Record{TaskID: task.NewID(), DroneID: "d1", Command: task.RUN, Status: task.PENDING, CreatedAt: time.Now().UTC()}
	fr, err := f.codec.EncodeValue(frame.Task, record.DroneTask())
	require.NoError(t, err)

	require.NoError(t, f.store.Add(record))
	require.NoError(t, f.store.Delete(record.TaskID))

	assert.False(t, f.svc.queue(record, fr))
	assert.Zero(t, f.store.QueuedFrames("d1"))
	assert.Empty(t, f.notifier.events)

	kept := record
	kept.TaskID = task.NewID()
	require.NoError(t, f.store.Add(kept))
	assert.True(t, f.svc.queue(kept, fr))
	assert.Equal(t, 1, f.store.QueuedFrames("d1"))
}

// A running task is kept and exactly one cancellation is queued.
func TestDeleteRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.startTask(t, "d1")

	require.NoError(t, f.svc.Delete(ctx, "d1", r.TaskID))
	require.NoError(t, f.svc.Delete(ctx, "d1", r.TaskID))

	assert.Equal(t, task.RUNNING, f.mustGet(t, r.TaskID).Status)

	frames := f.store.DrainFrames("d1")
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TaskCancel, frames[0].Frame.Type)

	_, payload, err := f.codec.Decode(frames[0].Frame)
	require.NoError(t, err)
	assert.Equal(t, string(r.TaskID), string(payload))

	for _, ev := range f.notifier.events {
		assert.NotEqual(t, "deleted", ev.Kind)
	}

	// the drone applies the cancellation
	require.NoError(t, f.svc.HandleFrame(ctx, "d1", f.droneFrame(t, frame.TaskCancelled, r.TaskID, task.CANCELLED, "")))
	got := f.mustGet(t, r.TaskID)
	assert.Equal(t, task.CANCELLED, got.Status)
	assert.False(t, got.EndTime.IsZero())
}

func TestDeleteTerminal(t *testing.T) {
	for _, terminal := range []frame.Type{frame.TaskComplete, frame.TaskCancelled} {
		t.Run(terminal.String(), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			r := f.startTask(t, "d1")
			require.NoError(t, f.svc.HandleFrame(ctx, "d1", f.droneFrame(t, terminal, r.TaskID, task.COMPLETE, "")))
			before := f.mustGet(t, r.TaskID)
			events := len(f.notifier.events)

			err := f.svc.Delete(ctx, "d1", r.TaskID)
			require.ErrorIs(t, err, ErrInvalidState)

			if diff := cmp.Diff(before, f.mustGet(t, r.TaskID)); diff != "" {
				t.Errorf("record changed (-before +after):\n%s", diff)
			}
			assert.Empty(t, f.store.DrainFrames("d1"))
			assert.Len(t, f.notifier.events, events)
		})
	}
}

func TestDeleteNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, "d1", "alice", whoami())
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, "ghost", r.TaskID), ErrDroneNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, "d1", "missing"), ErrTaskNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, "d2", r.TaskID), ErrTaskNotFound)

	f.mustGet(t, r.TaskID)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.svc.Create(ctx, "d1", "alice", whoami())
	require.NoError(t, err)
	running := f.startTask(t, "d2")

	// a restarted server starts with an empty frame cache
	f.store.DrainFrames("d1")
	f.store.DrainFrames("d2")

	n, err := f.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	frames := f.store.DrainFrames("d1")
	require.Len(t, frames, 1)
	assert.Equal(t, pending.TaskID, frames[0].TaskID)
	assert.Equal(t, frame.Task, frames[0].Frame.Type)

	var dt task.DroneTask
	require.NoError(t, f.codec.DecodeValue(frames[0].Frame, &dt))
	assert.Equal(t, pending.Arguments, dt.Arguments)

	assert.Empty(t, f.store.DrainFrames("d2"), "running task %s must not be dispatched again", running.TaskID)

	n, err = f.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.svc.Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "frames already queued are not duplicated")
}
