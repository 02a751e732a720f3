package hooking

import "sync"

// TagCountTracer counts how often each tag is attached to tasks.
type TagCountTracer struct {
	lock     sync.Mutex
	tagNames []string
	tagCount map[string]uint64
}

// NewTagCountTracer creates a TagCountTracer.
func NewTagCountTracer() *TagCountTracer {
	return &TagCountTracer{
		tagCount: make(map[string]uint64),
	}
}

// Func counts tags.
func (t *TagCountTracer) Func(ctx HookCtx) {
	if ctx.Pos == HookPosTaskTag {
		t.TagTask(ctx.Item.(TaskTag))
	}
}

// TagNames returns the tags seen, in order of first appearance.
func (t *TagCountTracer) TagNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.tagNames...)
}

// TagCount returns how many times a tag was seen.
func (t *TagCountTracer) TagCount(name string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.tagCount[name]
}

// TagTask counts one tag.
func (t *TagCountTracer) TagTask(tt TaskTag) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.tagCount[tt.What]; !ok {
		t.tagNames = append(t.tagNames, tt.What)
	}

	t.tagCount[tt.What]++
}
