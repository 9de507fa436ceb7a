package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mmynk/studygroup/internal/apperr"
	"github.com/mmynk/studygroup/internal/clock"
)

// watchBuffer is the per-watcher queue length. Transitions are rare; a
// watcher that falls this far behind loses events.
const watchBuffer = 16

// Event is a transition of one registered session.
type Event struct {
	SessionID  string     `json:"sessionId"`
	UID        string     `json:"uid"`
	Transition Transition `json:"transition"`
}

type entry struct {
	uid      string
	monitor  *Monitor
	watchers map[int]chan Event
	nextID   int
	done     chan struct{}
}

// Registry holds one Monitor per mounted authenticated view.
type Registry struct {
	clock    clock.Clock
	defaults Config
	onEvent  func(Event)
	onExpire func(Event)

	mu       sync.Mutex
	sessions map[string]*entry
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEventHook registers a hook called for every transition of every
// session.
func WithEventHook(fn func(Event)) RegistryOption {
	return func(r *Registry) { r.onEvent = fn }
}

// WithExpireHook registers the sign-out hook for expired sessions.
func WithExpireHook(fn func(Event)) RegistryOption {
	return func(r *Registry) { r.onExpire = fn }
}

// NewRegistry creates a Registry whose sessions use defaults unless a
// mount overrides them.
func NewRegistry(clk clock.Clock, defaults Config, opts ...RegistryOption) (*Registry, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	r := &Registry{clock: clk, defaults: defaults, sessions: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start mounts a new session for uid and returns its id. Zero fields of
// override take the registry defaults.
func (r *Registry) Start(uid string, override Config) (string, Snapshot, error) {
	if uid == "" {
		return "", Snapshot{}, apperr.Invalid("uid", "is required")
	}
	cfg := r.defaults
	if override.Timeout > 0 {
		cfg.Timeout = override.Timeout
	}
	if override.WarningWindow > 0 {
		cfg.WarningWindow = override.WarningWindow
	}

	id := uuid.New().String()
	e := &entry{uid: uid, watchers: make(map[int]chan Event), done: make(chan struct{})}

	// Register before the monitor exists so a transition cannot miss
	// the entry.
	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	m, err := NewMonitor(r.clock, cfg, OnChange(func(t Transition) {
		r.dispatch(id, t)
	}))
	if err != nil {
		r.remove(id)
		return "", Snapshot{}, err
	}

	r.mu.Lock()
	e.monitor = m
	r.mu.Unlock()

	slog.Info("Session started", "session_id", id, "uid", uid, "timeout", cfg.Timeout)
	return id, m.Snapshot(), nil
}

// dispatch fans a transition out to watchers and hooks. An expired
// session is unregistered.
func (r *Registry) dispatch(id string, t Transition) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	ev := Event{SessionID: id, UID: e.uid, Transition: t}
	for _, ch := range e.watchers {
		select {
		case ch <- ev:
		default:
			slog.Warn("Session watcher is full, dropping event", "session_id", id, "to", t.To)
		}
	}
	if t.To == StateExpired {
		delete(r.sessions, id)
		retire(e)
	}
	r.mu.Unlock()

	if r.onEvent != nil {
		r.onEvent(ev)
	}
	if t.To == StateExpired {
		slog.Info("Session expired", "session_id", id, "uid", e.uid, "reason", t.Reason)
		if r.onExpire != nil {
			r.onExpire(ev)
		}
	}
}

// retire closes the watcher channels of an entry that has just been
// removed from the registry. Callers hold mu.
func retire(e *entry) {
	for wid, ch := range e.watchers {
		close(ch)
		delete(e.watchers, wid)
	}
	close(e.done)
}

func (r *Registry) lookup(id, uid string) (*Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.uid != uid || e.monitor == nil {
		return nil, apperr.ErrNotFound
	}
	return e.monitor, nil
}

// Activity forwards user input to the session.
func (r *Registry) Activity(id, uid string, src Source, insideWarning bool) (State, error) {
	m, err := r.lookup(id, uid)
	if err != nil {
		return 0, err
	}
	return m.Activity(src, insideWarning)
}

// StayLoggedIn forwards the explicit stay-logged-in action.
func (r *Registry) StayLoggedIn(id, uid string) (State, error) {
	m, err := r.lookup(id, uid)
	if err != nil {
		return 0, err
	}
	return m.StayLoggedIn(), nil
}

// Logout expires the session.
func (r *Registry) Logout(id, uid string) error {
	m, err := r.lookup(id, uid)
	if err != nil {
		return err
	}
	m.Logout()
	return nil
}

// End unmounts the session without signing the user out.
func (r *Registry) End(id, uid string) error {
	m, err := r.lookup(id, uid)
	if err != nil {
		return err
	}
	m.Stop()
	r.remove(id)
	slog.Info("Session ended", "session_id", id, "uid", uid)
	return nil
}

// Snapshot returns the session's current state.
func (r *Registry) Snapshot(id, uid string) (Snapshot, error) {
	m, err := r.lookup(id, uid)
	if err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// Watch returns a channel of the session's transitions. The channel is
// closed when ctx is done or the session ends or expires.
func (r *Registry) Watch(ctx context.Context, id, uid string) (<-chan Event, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok || e.uid != uid {
		r.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	wid := e.nextID
	e.nextID++
	ch := make(chan Event, watchBuffer)
	e.watchers[wid] = ch
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-e.done:
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := e.watchers[wid]; ok {
			close(c)
			delete(e.watchers, wid)
		}
	}()
	return ch, nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	monitors := make([]*Monitor, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.monitor != nil {
			monitors = append(monitors, e.monitor)
		}
		retire(e)
	}
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		retire(e)
	}
}
