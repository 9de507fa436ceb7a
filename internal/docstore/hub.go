package docstore

import (
	"context"
	"log/slog"
	"sync"
)

// Runner evaluates a query against current storage.
type Runner func(ctx context.Context, q Query) ([]*Document, error)

// Hub tracks live subscriptions per collection and re-runs their queries
// when the collection changes. Backends embed a Hub and call Notify
// after every commit.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription is a live query. Its callback runs on a dedicated
// goroutine, one invocation at a time, always with the full result.
// Changes arriving while a callback runs are coalesced into one re-run.
type Subscription struct {
	hub     *Hub
	query   Query
	run     Runner
	fn      func([]*Document)
	dirty   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

// Subscribe registers q, runs it once and starts delivery with that
// first result. Registration happens before the first run, so a commit
// landing in between marks the subscription dirty and is delivered next.
// The subscription ends when ctx is done or Stop is called.
func (h *Hub) Subscribe(ctx context.Context, q Query, run Runner, fn func([]*Document)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		hub:     h,
		query:   q,
		run:     run,
		fn:      fn,
		dirty:   make(chan struct{}, 1),
		ctx:     subCtx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.subs[q.Collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[q.Collection] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	initial, err := run(ctx, q)
	if err != nil {
		h.remove(s)
		cancel()
		return nil, err
	}

	go s.loop(initial)
	go func() {
		select {
		case <-ctx.Done():
			s.halt()
		case <-s.stopped:
		}
	}()
	return s, nil
}

// Notify marks every subscription on collection as dirty.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[collection] {
		select {
		case s.dirty <- struct{}{}:
		default:
		}
	}
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Close stops every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()
	for _, s := range all {
		s.Stop()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.query.Collection]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.query.Collection)
	}
}

func (s *Subscription) loop(initial []*Document) {
	defer close(s.stopped)
	defer s.hub.remove(s)

	s.fn(initial)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.dirty:
		}
		docs, err := s.run(s.ctx, s.query)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			slog.Warn("Subscription query failed", "collection", s.query.Collection, "error", err)
			continue
		}
		if s.ctx.Err() != nil {
			return
		}
		s.fn(docs)
	}
}

func (s *Subscription) halt() {
	s.once.Do(s.cancel)
}

// Stop ends the subscription and waits until no callback is running.
// After Stop returns fn is never called again. Stop must not be called
// from inside the callback.
func (s *Subscription) Stop() {
	s.halt()
	<-s.stopped
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.stopped
}
