package task

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackadi-io/hive/internal/serializer"
)

func TestNewID(t *testing.T) {
	seen := make(map[ID]struct{})
	for range 1000 {
		id := NewID()
		require.Len(t, id, idLength)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{PENDING, PENDING, false},
		{PENDING, RUNNING, true},
		{PENDING, COMPLETE, true},
		{PENDING, CANCELLED, true},
		{RUNNING, PENDING, false},
		{RUNNING, RUNNING, true},
		{RUNNING, COMPLETE, true},
		{RUNNING, CANCELLED, true},
		{COMPLETE, PENDING, false},
		{COMPLETE, RUNNING, false},
		{COMPLETE, COMPLETE, false},
		{COMPLETE, CANCELLED, false},
		{CANCELLED, PENDING, false},
		{CANCELLED, RUNNING, false},
		{CANCELLED, COMPLETE, false},
		{CANCELLED, CANCELLED, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRecordApply(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(time.Minute)

	r := Record{TaskID: "t1", Status: PENDING}
	require.NoError(t, r.Apply(RUNNING, start))
	require.NoError(t, r.Apply(RUNNING, end))
	assert.Equal(t, start, r.StartTime, "second RUNNING must not move the start time")
	assert.True(t, r.EndTime.IsZero())

	require.NoError(t, r.Apply(COMPLETE, end))
	assert.Equal(t, COMPLETE, r.Status)
	assert.Equal(t, end, r.EndTime)

	err := r.Apply(RUNNING, end)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, COMPLETE, r.Status)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{"shell", SHELL, false},
		{"RUN", RUN, false},
		{" runas ", RUNAS, false},
		{"upload", UPLD, false},
		{"0x3C", RUNAS, false},
		{"59", RUN, false},
		{"nope", 0, true},
		{"0x1FF", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, []string{"run", "runas", "shell", "upload"}, CommandNames())
	for _, name := range CommandNames() {
		c, err := ParseCommand(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.String())
	}
}

func TestRecordJSON(t *testing.T) {
	in := Record{
		TaskID:     "abc",
		DroneID:    "drone-1",
		Issuer:     "alice",
		Command:    RUN,
		Alias:      "whoami",
		Arguments:  []string{"whoami"},
		Status:     RUNNING,
		ResultType: TABLE,
		Result:     "root\n",
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := serializer.JSON.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"RUNNING"`)
	assert.Contains(t, string(data), `"result_type":"TABLE"`)

	var out Record
	require.NoError(t, serializer.JSON.Unmarshal(data, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusUnmarshalInvalid(t *testing.T) {
	var s Status
	require.Error(t, s.UnmarshalText([]byte("DONE")))
}

func TestDroneTaskCopiesArguments(t *testing.T) {
	r := Record{TaskID: "x", Command: SHELL, Arguments: []string{"ls", "-l"}}
	dt := r.DroneTask()
	dt.Arguments[0] = "rm"
	assert.Equal(t, "ls", r.Arguments[0])
	assert.Equal(t, SHELL, dt.Command)
}

func TestCommandValid(t *testing.T) {
	for _, c := range []Command{SHELL, RUN, RUNAS, UPLD} {
		assert.True(t, c.Valid(), c.String())
	}
	assert.False(t, Command(0x01).Valid())
	assert.Equal(t, "0x01", Command(0x01).String())
}
