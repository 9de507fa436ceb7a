// Package session tracks user activity per authenticated view and signs
// the user out after a period of inactivity, with a warning phase first.
//
// A Monitor keeps a single deadline timer armed for its next transition
// instead of re-evaluating elapsed time on a tick.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/mmynk/studygroup/internal/apperr"
	"github.com/mmynk/studygroup/internal/clock"
)

const (
	// DefaultTimeout is the inactivity period after which a session expires.
	DefaultTimeout = 30 * time.Minute
	// DefaultWarningWindow is how long before expiry the warning appears.
	DefaultWarningWindow = 60 * time.Second
	// RedirectTarget is where an expired session is sent.
	RedirectTarget = "/"
)

// State is the monitor state.
type State int

const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateWarning:
		return "WARNING"
	case StateExpired:
		return "EXPIRED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ACTIVE":
		*s = StateActive
	case "WARNING":
		*s = StateWarning
	case "EXPIRED":
		*s = StateExpired
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// Source is a kind of user input that counts as activity.
type Source string

const (
	SourcePointerDown Source = "pointerdown"
	SourcePointerMove Source = "pointermove"
	SourceKeyDown     Source = "keydown"
	SourceScroll      Source = "scroll"
	SourceTouchStart  Source = "touchstart"
	SourceClick       Source = "click"
)

// Valid reports whether s is a qualifying activity source.
func (s Source) Valid() bool {
	switch s {
	case SourcePointerDown, SourcePointerMove, SourceKeyDown, SourceScroll, SourceTouchStart, SourceClick:
		return true
	}
	return false
}

// Reason explains a transition.
type Reason string

const (
	ReasonIdle         Reason = "idle"
	ReasonActivity     Reason = "activity"
	ReasonStayLoggedIn Reason = "stay_logged_in"
	ReasonLogout       Reason = "logout"
)

// Transition is one state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason Reason    `json:"reason"`
	At     time.Time `json:"at"`
}

// Config holds the monitor timings.
type Config struct {
	Timeout       time.Duration
	WarningWindow time.Duration
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, WarningWindow: DefaultWarningWindow}
}

// Validate checks that both durations are positive and the warning
// window is shorter than the timeout.
func (c Config) Validate() error {
	switch {
	case c.Timeout <= 0:
		return apperr.Invalid("timeout", "must be positive")
	case c.WarningWindow <= 0:
		return apperr.Invalid("warningWindow", "must be positive")
	case c.WarningWindow >= c.Timeout:
		return apperr.Invalid("warningWindow", "must be shorter than the timeout")
	}
	return nil
}

// Snapshot is the observable state of a Monitor.
type Snapshot struct {
	State        State     `json:"state"`
	LastActivity time.Time `json:"lastActivity"`
	WarnAt       time.Time `json:"warnAt"`
	ExpireAt     time.Time `json:"expireAt"`
}

// Monitor is the activity state machine of one session.
//
// Transition hooks run synchronously, in transition order, on the
// goroutine that caused the transition (the caller of Activity,
// StayLoggedIn or Logout, or the timer). Hooks must not call back into
// the Monitor.
type Monitor struct {
	clock    clock.Clock
	cfg      Config
	onChange func(Transition)
	onExpire func(Transition)

	// emitMu is taken before mu is released so hooks observe transitions
	// in order.
	emitMu sync.Mutex

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	timer        *clock.Timer
	gen          uint64
	stopped      bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// OnChange registers a hook called on every transition.
func OnChange(fn func(Transition)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// OnExpire registers the sign-out hook, called once when the session
// reaches EXPIRED.
func OnExpire(fn func(Transition)) Option {
	return func(m *Monitor) { m.onExpire = fn }
}

// NewMonitor starts a monitor in ACTIVE with the activity clock reset.
func NewMonitor(clk clock.Clock, cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	m := &Monitor{clock: clk, cfg: cfg, state: StateActive}
	for _, opt := range opts {
		opt(m)
	}

	m.mu.Lock()
	m.lastActivity = clk.Now()
	m.armLocked(cfg.Timeout - cfg.WarningWindow)
	m.mu.Unlock()
	return m, nil
}

// Activity records user input from src. insideWarning marks input that
// originated within the warning dialog; it is ignored while the warning
// is shown. Activity after expiry is ignored.
func (m *Monitor) Activity(src Source, insideWarning bool) (State, error) {
	if !src.Valid() {
		return 0, apperr.Invalid("source", fmt.Sprintf("%q is not an activity source", src))
	}
	m.mu.Lock()
	if m.stopped || m.state == StateExpired || (m.state == StateWarning && insideWarning) {
		state := m.state
		m.mu.Unlock()
		return state, nil
	}
	return m.resetLocked(ReasonActivity), nil
}

// StayLoggedIn is the explicit "stay logged in" action of the warning
// dialog. It resets the activity clock unless the session has expired.
func (m *Monitor) StayLoggedIn() State {
	m.mu.Lock()
	if m.stopped || m.state == StateExpired {
		state := m.state
		m.mu.Unlock()
		return state
	}
	return m.resetLocked(ReasonStayLoggedIn)
}

// Logout expires the session immediately.
func (m *Monitor) Logout() {
	m.mu.Lock()
	if m.stopped || m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	m.expireLocked(ReasonLogout)
}

// Stop tears the monitor down without a transition, as on unmount.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current state and deadlines.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:        m.state,
		LastActivity: m.lastActivity,
		WarnAt:       m.lastActivity.Add(m.cfg.Timeout - m.cfg.WarningWindow),
		ExpireAt:     m.lastActivity.Add(m.cfg.Timeout),
	}
}

// resetLocked restarts the activity clock and returns the new state.
// It releases mu.
func (m *Monitor) resetLocked(reason Reason) State {
	now := m.clock.Now()
	m.lastActivity = now
	m.armLocked(m.cfg.Timeout - m.cfg.WarningWindow)
	if state := m.state; state != StateWarning {
		m.mu.Unlock()
		return state
	}
	t := Transition{From: StateWarning, To: StateActive, Reason: reason, At: now}
	m.state = StateActive
	m.emitLocked(t)
	return StateActive
}

// expireLocked moves to EXPIRED and fires the hooks. It releases mu.
func (m *Monitor) expireLocked(reason Reason) {
	t := Transition{From: m.state, To: StateExpired, Reason: reason, At: m.clock.Now()}
	m.state = StateExpired
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.emitLocked(t)
}

// emitLocked hands the transition to the hooks after releasing mu.
func (m *Monitor) emitLocked(t Transition) {
	m.emitMu.Lock()
	m.mu.Unlock()
	defer m.emitMu.Unlock()

	if m.onChange != nil {
		m.onChange(t)
	}
	if t.To == StateExpired && m.onExpire != nil {
		m.onExpire(t)
	}
}

func (m *Monitor) armLocked(d time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timer = m.clock.AfterFunc(d, func() { m.fire(gen) })
}

// fire evaluates the elapsed time when a deadline passes. Boundaries are
// inclusive.
func (m *Monitor) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.stopped {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	elapsed := now.Sub(m.lastActivity)
	warnAfter := m.cfg.Timeout - m.cfg.WarningWindow

	switch {
	case elapsed >= m.cfg.Timeout:
		m.expireLocked(ReasonIdle)
	case m.state == StateActive && elapsed >= warnAfter:
		t := Transition{From: StateActive, To: StateWarning, Reason: ReasonIdle, At: now}
		m.state = StateWarning
		m.armLocked(m.cfg.Timeout - elapsed)
		m.emitLocked(t)
	case m.state == StateActive:
		m.armLocked(warnAfter - elapsed)
		m.mu.Unlock()
	default:
		m.armLocked(m.cfg.Timeout - elapsed)
		m.mu.Unlock()
	}
}
