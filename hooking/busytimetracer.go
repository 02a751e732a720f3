package hooking

import (
	"container/list"
	"sync"
)

type interval struct {
	start, end float64
	completed  bool
}

// BusyTimeTracer measures how long a component spends on a kind of task.
// Overlapping tasks count once, so concurrent tile solves report the wall time
// during which at least one solve was running.
type BusyTimeTracer struct {
	timeTeller TimeTeller
	filter     TaskFilter

	lock      sync.Mutex
	inflight  map[string]*list.Element
	intervals *list.List
	busyTime  float64
}

// NewBusyTimeTracer creates a BusyTimeTracer. A nil filter accepts every task.
func NewBusyTimeTracer(
	timeTeller TimeTeller,
	filter TaskFilter,
) *BusyTimeTracer {
	return &BusyTimeTracer{
		timeTeller: timeTeller,
		filter:     filter,
		inflight:   make(map[string]*list.Element),
		intervals:  list.New(),
	}
}

// Func records the start and end of tasks.
func (t *BusyTimeTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(TaskStart))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// BusyTime returns the busy time of the completed tasks.
func (t *BusyTimeTracer) BusyTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.busyTime
}

// TerminateAllTasks ends every running task now.
func (t *BusyTimeTracer) TerminateAllTasks() {
	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.timeTeller.Now()

	for e := t.intervals.Front(); e != nil; e = e.Next() {
		iv := e.Value.(*interval)
		if !iv.completed {
			iv.completed = true
			iv.end = now
		}
	}

	t.inflight = make(map[string]*list.Element)
	t.collapse(now)
}

// StartTask records the start of a task.
func (t *BusyTimeTracer) StartTask(ts TaskStart) {
	if t.filter != nil && !t.filter(ts) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	elem := t.intervals.PushBack(&interval{start: t.timeTeller.Now()})
	t.inflight[ts.ID] = elem
}

// EndTask records the end of a task.
func (t *BusyTimeTracer) EndTask(te TaskEnd) {
	t.lock.Lock()
	defer t.lock.Unlock()

	elem, ok := t.inflight[te.ID]
	if !ok {
		return
	}

	now := t.timeTeller.Now()

	iv := elem.Value.(*interval)
	iv.end = now
	iv.completed = true

	delete(t.inflight, te.ID)

	t.collapse(now)
}

// collapse folds the completed prefix of the interval list into the busy
// time. It waits while an earlier task is still running.
func (t *BusyTimeTracer) collapse(now float64) {
	if start, found := t.firstRunningStart(); found && start < now {
		return
	}

	var done []*interval

	var next *list.Element
	for e := t.intervals.Front(); e != nil; e = next {
		next = e.Next()

		iv := e.Value.(*interval)
		if !iv.completed {
			break
		}

		if iv.end <= now {
			done = append(done, iv)
			t.intervals.Remove(e)
		}
	}

	t.busyTime += unionLength(done)
}

func (t *BusyTimeTracer) firstRunningStart() (float64, bool) {
	for e := t.intervals.Front(); e != nil; e = e.Next() {
		iv := e.Value.(*interval)
		if !iv.completed {
			return iv.start, true
		}
	}

	return 0, false
}

func unionLength(intervals []*interval) float64 {
	total := 0.0
	covered := make([]bool, len(intervals))

	for i, a := range intervals {
		if covered[i] {
			continue
		}
		covered[i] = true

		ext := interval{start: a.start, end: a.end}

		for j, b := range intervals {
			if covered[j] || !overlaps(&ext, b) {
				continue
			}

			covered[j] = true
			ext.start = min(ext.start, b.start)
			ext.end = max(ext.end, b.end)
		}

		total += ext.end - ext.start
	}

	return total
}

func overlaps(a, b *interval) bool {
	return a.start <= b.end && b.start <= a.end
}
