package hooking

import "sync"

// TotalAvgTimeTracer sums the duration of a kind of task. Overlapping tasks
// are added up.
type TotalAvgTimeTracer struct {
	timeTeller TimeTeller
	filter     TaskFilter

	lock      sync.Mutex
	inflight  map[string]float64
	totalTime float64
	taskCount uint64
}

// NewAverageTimeTracer creates a TotalAvgTimeTracer. A nil filter accepts
// every task.
func NewAverageTimeTracer(
	timeTeller TimeTeller,
	filter TaskFilter,
) *TotalAvgTimeTracer {
	return &TotalAvgTimeTracer{
		timeTeller: timeTeller,
		filter:     filter,
		inflight:   make(map[string]float64),
	}
}

// Func records the start and end of tasks.
func (t *TotalAvgTimeTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(TaskStart))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// TotalTime returns the summed duration of the completed tasks.
func (t *TotalAvgTimeTracer) TotalTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// AverageTime returns the mean duration of the completed tasks, or 0 if none
// completed.
func (t *TotalAvgTimeTracer) AverageTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.taskCount == 0 {
		return 0
	}

	return t.totalTime / float64(t.taskCount)
}

// TotalCount returns the number of completed tasks.
func (t *TotalAvgTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the start of a task.
func (t *TotalAvgTimeTracer) StartTask(ts TaskStart) {
	if t.filter != nil && !t.filter(ts) {
		return
	}

	t.lock.Lock()
	t.inflight[ts.ID] = t.timeTeller.Now()
	t.lock.Unlock()
}

// EndTask records the end of a task.
func (t *TotalAvgTimeTracer) EndTask(te TaskEnd) {
	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.inflight[te.ID]
	if !ok {
		return
	}

	t.totalTime += t.timeTeller.Now() - start
	t.taskCount++

	delete(t.inflight, te.ID)
}
