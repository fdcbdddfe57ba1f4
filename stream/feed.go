package stream

import (
	"sync"
)

type Kind string

const (
	KindChunk     Kind = "chunk"
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
)

// Event is one observer notification. Output is always the whole
// accumulated text, so a client that missed events loses nothing.
type Event struct {
	Kind   Kind   `json:"kind"`
	Output string `json:"output"`
	Detail string `json:"detail,omitempty"`
}

// Terminal reports whether no event follows this one.
func (e Event) Terminal() bool {
	return e.Kind == KindSucceeded || e.Kind == KindFailed
}

// Feed fans a job's observer callbacks out to any number of subscribers.
// Every subscriber has a single-slot buffer: an unread snapshot is
// replaced by the newer one, so publishing never blocks the job's worker.
type Feed struct {
	mu     sync.Mutex
	latest *Event
	done   bool
	subs   map[chan Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan Event]struct{})}
}

func (f *Feed) OnChunk(accumulated string) {
	f.publish(Event{Kind: KindChunk, Output: accumulated})
}

func (f *Feed) OnSucceeded(final string) {
	f.publish(Event{Kind: KindSucceeded, Output: final})
}

func (f *Feed) OnFailed(detail string) {
	f.mu.Lock()
	var output string
	if f.latest != nil {
		output = f.latest.Output
	}
	f.mu.Unlock()
	f.publish(Event{Kind: KindFailed, Output: output, Detail: detail})
}

func (f *Feed) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return
	}
	f.latest = &ev
	for ch := range f.subs {
		replace(ch, ev)
		if ev.Terminal() {
			close(ch)
		}
	}
	if ev.Terminal() {
		f.done = true
		f.subs = nil
	}
}

// Subscribe returns a channel that receives the latest event right away,
// if there is one, and every newer event after it. The channel is closed
// after the terminal event. cancel detaches the subscriber early.
func (f *Feed) Subscribe() (events <-chan Event, cancel func()) {
	ch := make(chan Event, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.latest != nil {
		ch <- *f.latest
	}
	if f.done {
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, ch)
	}
}

// Latest is the most recent event, if any.
func (f *Feed) Latest() (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return Event{}, false
	}
	return *f.latest, true
}

// replace drops an unread event and stores ev. Only the feed sends on ch,
// and only while holding its lock, so the send cannot block.
func replace(ch chan Event, ev Event) {
	select {
	case <-ch:
	default:
	}
	ch <- ev
}
