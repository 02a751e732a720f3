package datarecording

import (
	"strings"

	"github.com/sarchlab/envelope/hooking"
)

// TaskTable holds the traced tasks.
const TaskTable = "tasks"

// TaskEntry is one row of the tasks table. Tags are joined as what=detail
// pairs separated by semicolons.
type TaskEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
	NumSteps  int
	Tags      string
}

// A TaskWriter stores the tasks finished under a DBTracer.
type TaskWriter struct {
	recorder DataRecorder
}

// NewTaskWriter creates the tasks table and returns a writer for it.
func NewTaskWriter(recorder DataRecorder) *TaskWriter {
	recorder.CreateTable(TaskTable, TaskEntry{})

	return &TaskWriter{recorder: recorder}
}

// Write buffers a task.
func (w *TaskWriter) Write(t hooking.Task) {
	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, tag.What+"="+tag.Detail)
	}

	w.recorder.InsertData(TaskTable, TaskEntry{
		ID:        t.ID,
		ParentID:  t.ParentID,
		Kind:      t.Kind,
		What:      t.What,
		Location:  t.Where,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		NumSteps:  len(t.Steps),
		Tags:      strings.Join(tags, ";"),
	})
}

// Flush writes the buffered tasks.
func (w *TaskWriter) Flush() {
	w.recorder.Flush()
}
