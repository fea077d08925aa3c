// Package task holds the task record shared by the team server and drones, and its state machine.
package task

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID identifies a task. It is short, opaque and never reassigned.
type ID string

// DroneID identifies a drone.
type DroneID string

const idLength = 10

// NewID returns a fresh short identifier derived from a random UUID.
func NewID() ID {
	u := uuid.New()
	encoded := base64.RawURLEncoding.EncodeToString(u[:])
	return ID(encoded[:idLength])
}

type Status uint8

const (
	PENDING Status = iota
	RUNNING
	COMPLETE
	CANCELLED
)

var statusNames = []string{"PENDING", "RUNNING", "COMPLETE", "CANCELLED"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	i := slices.Index(statusNames, strings.ToUpper(string(text)))
	if i < 0 {
		return fmt.Errorf("invalid status %q", text)
	}
	*s = Status(i)
	return nil
}

// IsTerminal reports whether no transition can leave s.
func (s Status) IsTerminal() bool {
	return s == COMPLETE || s == CANCELLED
}

var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition reports whether a record may move from one status to another.
//
// A PENDING task may jump straight to a terminal status when the RUNNING frame was lost.
// RUNNING to RUNNING is accepted so output frames can be applied idempotently.
func CanTransition(from, to Status) bool {
	switch from {
	case PENDING:
		return to == RUNNING || to == COMPLETE || to == CANCELLED
	case RUNNING:
		return to == RUNNING || to == COMPLETE || to == CANCELLED
	default:
		return false
	}
}

type ResultType uint8

const (
	STRING ResultType = iota
	TABLE
	BINARY
)

var resultTypeNames = []string{"STRING", "TABLE", "BINARY"}

func (r ResultType) String() string {
	if int(r) < len(resultTypeNames) {
		return resultTypeNames[r]
	}
	return fmt.Sprintf("ResultType(%d)", uint8(r))
}

func (r ResultType) MarshalText() ([]byte, error) {
	if int(r) >= len(resultTypeNames) {
		return nil, fmt.Errorf("invalid result type %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *ResultType) UnmarshalText(text []byte) error {
	i := slices.Index(resultTypeNames, strings.ToUpper(string(text)))
	if i < 0 {
		return fmt.Errorf("invalid result type %q", text)
	}
	*r = ResultType(i)
	return nil
}

// Command is the opcode selecting the drone executor.
type Command byte

const (
	SHELL Command = 0x3A
	RUN   Command = 0x3B
	RUNAS Command = 0x3C
	UPLD  Command = 0x3D
)

var commandNames = map[Command]string{
	SHELL: "shell",
	RUN:   "run",
	RUNAS: "runas",
	UPLD:  "upload",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(c))
}

// Valid reports whether a drone handler exists for c.
func (c Command) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

// CommandNames lists the known command names, sorted.
func CommandNames() []string {
	names := make([]string, 0, len(commandNames))
	for _, name := range commandNames {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseCommand accepts a command name or a numeric opcode (decimal or 0x-prefixed).
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	for c, name := range commandNames {
		if strings.EqualFold(name, s) {
			return c, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", s)
	}
	return Command(n), nil
}

// Record is the team server view of a task.
type Record struct {
	TaskID       ID         `json:"task_id"`
	DroneID      DroneID    `json:"drone_id"`
	Issuer       string     `json:"issuer"`
	Command      Command    `json:"command"`
	Alias        string     `json:"alias"`
	Arguments    []string   `json:"arguments"`
	ArtefactPath string     `json:"artefact_path,omitempty"`
	Artefact     []byte     `json:"artefact,omitempty"`
	Status       Status     `json:"status"`
	ResultType   ResultType `json:"result_type"`
	Result       string     `json:"result,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
}

// Apply moves the record to status, enforcing the state machine.
func (r *Record) Apply(status Status, now time.Time) error {
	if !CanTransition(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
	}
	if status == RUNNING && r.StartTime.IsZero() {
		r.StartTime = now
	}
	if status.IsTerminal() {
		r.EndTime = now
	}
	r.Status = status
	return nil
}

// DroneTask returns the part of the record sent to the drone.
func (r *Record) DroneTask() DroneTask {
	return DroneTask{
		TaskID:    r.TaskID,
		Command:   r.Command,
		Arguments: slices.Clone(r.Arguments),
		Artefact:  r.Artefact,
	}
}

// DroneTask is the payload of a TASK frame.
type DroneTask struct {
	TaskID    ID       `json:"task_id"`
	Command   Command  `json:"command"`
	Arguments []string `json:"arguments"`
	Artefact  []byte   `json:"artefact,omitempty"`
}

// Output is the payload of a TASK_OUTPUT frame.
type Output struct {
	TaskID ID     `json:"task_id"`
	Status Status `json:"status"`
	Text   string `json:"text"`
}

// CheckIn is the payload of a CHECK_IN frame.
type CheckIn struct {
	Hostname string `json:"hostname"`
	Running  int    `json:"running"`
}
