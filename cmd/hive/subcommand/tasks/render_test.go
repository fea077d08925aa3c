package tasks

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackadi-io/hive/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestParseTable(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		columns     []string
		wantHeaders []string
		wantRows    [][]string
		wantOK      bool
	}{
		{
			name:        "json objects",
			in:          `[{"user":"root","uid":0},{"user":"svc","uid":1001,"shell":"/bin/false"}]`,
			wantHeaders: []string{"shell", "uid", "user"},
			wantRows:    [][]string{{"", "0", "root"}, {"/bin/false", "1001", "svc"}},
			wantOK:      true,
		},
		{
			name:        "nested values are rendered as json",
			in:          `[{"name":"eth0","addrs":["10.0.0.1"]}]`,
			wantHeaders: []string{"addrs", "name"},
			wantRows:    [][]string{{`["10.0.0.1"]`, "eth0"}},
			wantOK:      true,
		},
		{
			name:        "columns",
			in:          "PID USER COMMAND\n1 root /sbin/init splash\n42 www nginx\n",
			wantHeaders: []string{"PID", "USER", "COMMAND"},
			wantRows:    [][]string{{"1", "root", "/sbin/init splash"}, {"42", "www", "nginx"}},
			wantOK:      true,
		},
		{
			name:        "short rows are padded",
			in:          "A B C\n1\n",
			wantHeaders: []string{"A", "B", "C"},
			wantRows:    [][]string{{"1", "", ""}},
			wantOK:      true,
		},
		{
			name:        "json dotted columns",
			in:          `[{"name":"alice","owner":{"group":"admins"}},{"name":"bob","owner":{"group":"users"}}]`,
			columns:     []string{"name", "owner.group"},
			wantHeaders: []string{"name", "owner.group"},
			wantRows:    [][]string{{"alice", "admins"}, {"bob", "users"}},
			wantOK:      true,
		},
		{
			name:        "selected columns",
			in:          "PID USER COMMAND\n1 root init\n",
			columns:     []string{"COMMAND", "PID", "MISSING"},
			wantHeaders: []string{"COMMAND", "PID"},
			wantRows:    [][]string{{"init", "1"}},
			wantOK:      true,
		},
		{
			name:    "no selected column exists",
			in:      "PID USER\n1 root\n",
			columns: []string{"NOPE"},
			wantOK:  false,
		},
		{
			name:   "header only",
			in:     "PID USER\n",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers, rows, ok := parseTable(tt.in, tt.columns)
			if ok != tt.wantOK {
				t.Fatalf("parseTable() ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.wantHeaders, headers); diff != "" {
				t.Errorf("headers mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRows, rows); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderResult(t *testing.T) {
	assert.Contains(t, renderResult(task.Record{}, nil), "empty")
	assert.Contains(t, renderResult(task.Record{Result: "hello\n"}, nil), "hello")
	assert.Contains(t, renderResult(task.Record{ResultType: task.BINARY, Result: "\x00\x01\x02"}, nil), "3 bytes")

	table := renderResult(task.Record{ResultType: task.TABLE, Result: "NAME\nalpha\n"}, nil)
	assert.Contains(t, table, "NAME")
	assert.Contains(t, table, "alpha")
}

func TestPrettyTaskSprint(t *testing.T) {
	r := task.Record{
		TaskID:    "abc123",
		DroneID:   "web01",
		Issuer:    "alice",
		Command:   task.RUNAS,
		Alias:     "whoami",
		Arguments: []string{`CORP\svc-admin`, "Sup3rSecret", "whoami"},
		Status:    task.COMPLETE,
		Result:    "corp\\svc-admin\n",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	out := prettyTaskSprint(r, true, nil)
	for _, want := range []string{"abc123", "web01", "runas", "alice", "COMPLETE", "2026-03-01 10:00:00", "Sup3rSecret", "corp\\svc-admin"} {
		assert.Contains(t, out, want)
	}

	out = prettyTaskSprint(r, false, nil)
	assert.NotContains(t, out, "result")
}

func TestPrettyTaskListSprint(t *testing.T) {
	now := time.Now()
	records := []task.Record{
		{TaskID: "second", Command: task.RUN, CreatedAt: now},
		{TaskID: "first", Command: task.SHELL, CreatedAt: now.Add(-time.Minute)},
	}
	out := prettyTaskListSprint(records)
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
	assert.Contains(t, out, "shell")

	assert.Contains(t, prettyTaskListSprint(nil), "no task")
}
