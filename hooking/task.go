package hooking

import (
	"time"

	"github.com/rs/xid"
)

// Hook positions of task reports.
var (
	HookPosTaskStart = &HookPos{Name: "HookPosTaskStart"}
	HookPosTaskTag   = &HookPos{Name: "HookPosTaskTag"}
	HookPosTaskStep  = &HookPos{Name: "HookPosTaskStep"}
	HookPosTaskEnd   = &HookPos{Name: "HookPosTaskEnd"}
)

// TaskStart is passed to hooks when a task starts.
type TaskStart struct {
	ID       string
	ParentID string
	Kind     string
	What     string
	Where    string
}

// TaskTag attaches information to a running task.
type TaskTag struct {
	TaskID string
	What   string
	Detail string
}

// TaskStep is passed to hooks when a task makes progress.
type TaskStep struct {
	TaskID string
	StepID string
	Kind   string
	What   string
	Detail string
}

// TaskEnd is passed to hooks when a task ends.
type TaskEnd struct {
	ID string
}

// Step is a recorded step of a task.
type Step struct {
	ID     string  `json:"id"`
	Time   float64 `json:"time"`
	Kind   string  `json:"kind"`
	What   string  `json:"what"`
	Detail string  `json:"detail"`
}

// Tag is a recorded tag of a task.
type Tag struct {
	What   string `json:"what"`
	Detail string `json:"detail"`
}

// Task is a finished task, as handed to tracer backends.
type Task struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parent_id"`
	Kind      string  `json:"kind"`
	What      string  `json:"what"`
	Where     string  `json:"where"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Steps     []Step  `json:"steps"`
	Tags      []Tag   `json:"tags"`
}

// TaskFilter selects the tasks a tracer is interested in.
type TaskFilter func(t TaskStart) bool

// FilterKind returns a filter that accepts tasks of one kind.
func FilterKind(kind string) TaskFilter {
	return func(t TaskStart) bool {
		return t.Kind == kind
	}
}

// NewTaskID returns a unique task id.
func NewTaskID() string {
	return xid.New().String()
}

// A TimeTeller tells the current time in seconds.
type TimeTeller interface {
	Now() float64
}

// WallClock tells the seconds elapsed since it was created.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a clock that starts at 0.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the elapsed seconds.
func (c *WallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}
