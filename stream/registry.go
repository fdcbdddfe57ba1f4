package stream

import "sync"

const DefaultRetain = 32

// Registry keeps the feeds of the most recent jobs so clients can attach
// to a job by id while it runs and shortly after.
type Registry struct {
	retain int

	mu    sync.Mutex
	feeds map[string]*Feed
	order []string
}

func NewRegistry(retain int) *Registry {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Registry{retain: retain, feeds: make(map[string]*Feed)}
}

// Put registers f under jobID, evicting the oldest feed beyond the limit.
func (r *Registry) Put(jobID string, f *Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.feeds[jobID]; !ok {
		r.order = append(r.order, jobID)
	}
	r.feeds[jobID] = f

	for len(r.order) > r.retain {
		delete(r.feeds, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *Registry) Get(jobID string) (*Feed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[jobID]
	return f, ok
}
