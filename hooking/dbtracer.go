package hooking

import (
	"sync"

	"github.com/tebeka/atexit"
)

// TracerBackend stores finished tasks.
type TracerBackend interface {
	// Write stores a task.
	Write(t Task)

	// Flush writes buffered tasks out.
	Flush()
}

// DBTracer collects tasks and hands them to a backend when they end.
type DBTracer struct {
	timeTeller TimeTeller
	backend    TracerBackend

	lock               sync.Mutex
	startTime, endTime float64
	tracingTasks       map[string]Task
	terminated         bool
}

// NewDBTracer creates a DBTracer. Tasks still running when the process exits
// are written with the exit time as their end time.
func NewDBTracer(
	timeTeller TimeTeller,
	backend TracerBackend,
) *DBTracer {
	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      backend,
		tracingTasks: make(map[string]Task),
	}

	atexit.Register(func() { t.Terminate() })

	return t
}

// SetTimeRange limits tracing to tasks inside [startTime, endTime]. A zero
// bound is open.
func (t *DBTracer) SetTimeRange(startTime, endTime float64) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// Func dispatches hook invocations.
func (t *DBTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(TaskStart))
	case HookPosTaskStep:
		t.StepTask(ctx.Item.(TaskStep))
	case HookPosTaskTag:
		t.TagTask(ctx.Item.(TaskTag))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// StartTask begins tracing a task.
func (t *DBTracer) StartTask(ts TaskStart) {
	startingTaskMustBeValid(ts)

	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.timeTeller.Now()
	if t.terminated || (t.endTime > 0 && now > t.endTime) {
		return
	}

	t.tracingTasks[ts.ID] = Task{
		ID:        ts.ID,
		ParentID:  ts.ParentID,
		Kind:      ts.Kind,
		What:      ts.What,
		Where:     ts.Where,
		StartTime: now,
	}
}

func startingTaskMustBeValid(ts TaskStart) {
	if ts.ID == "" {
		panic("task ID must be set")
	}

	if ts.Kind == "" {
		panic("task kind must be set")
	}

	if ts.What == "" {
		panic("task what must be set")
	}

	if ts.Where == "" {
		panic("task where must be set")
	}
}

// StepTask records a step of a running task.
func (t *DBTracer) StepTask(ts TaskStep) {
	t.lock.Lock()
	defer t.lock.Unlock()

	task, ok := t.tracingTasks[ts.TaskID]
	if !ok {
		return
	}

	task.Steps = append(task.Steps, Step{
		ID:     ts.StepID,
		Time:   t.timeTeller.Now(),
		Kind:   ts.Kind,
		What:   ts.What,
		Detail: ts.Detail,
	})

	t.tracingTasks[ts.TaskID] = task
}

// TagTask records a tag of a running task.
func (t *DBTracer) TagTask(tt TaskTag) {
	t.lock.Lock()
	defer t.lock.Unlock()

	task, ok := t.tracingTasks[tt.TaskID]
	if !ok {
		return
	}

	task.Tags = append(task.Tags, Tag{What: tt.What, Detail: tt.Detail})
	t.tracingTasks[tt.TaskID] = task
}

// EndTask finishes a task and writes it to the backend.
func (t *DBTracer) EndTask(te TaskEnd) {
	t.lock.Lock()
	defer t.lock.Unlock()

	task, ok := t.tracingTasks[te.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, te.ID)

	now := t.timeTeller.Now()
	if t.startTime > 0 && now < t.startTime {
		return
	}

	task.EndTime = now
	t.backend.Write(task)
}

// Terminate writes the running tasks and flushes the backend. Later calls do
// nothing.
func (t *DBTracer) Terminate() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.terminated {
		return
	}
	t.terminated = true

	now := t.timeTeller.Now()
	for _, task := range t.tracingTasks {
		task.EndTime = now
		t.backend.Write(task)
	}

	t.tracingTasks = make(map[string]Task)
	t.backend.Flush()
}
