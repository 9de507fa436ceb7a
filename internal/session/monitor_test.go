package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/studygroup/internal/apperr"
	"github.com/mmynk/studygroup/internal/clock"
)

type recorder struct {
	mu          sync.Mutex
	transitions []Transition
	expired     int
}

func (r *recorder) options() []Option {
	return []Option{
		OnChange(func(t Transition) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.transitions = append(r.transitions, t)
		}),
		OnExpire(func(Transition) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.expired++
		}),
	}
}

func (r *recorder) expiredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

func newTestMonitor(t *testing.T) (*Monitor, *clock.FakeClock, *recorder) {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	rec := &recorder{}
	m, err := NewMonitor(clk, DefaultConfig(), rec.options()...)
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, clk, rec
}

func TestMonitorTimings(t *testing.T) {
	m, clk, rec := newTestMonitor(t)

	clk.Advance(29*time.Minute + time.Second)
	if got := m.State(); got != StateWarning {
		t.Fatalf("state after 29m1s = %v, want WARNING", got)
	}
	clk.Advance(60 * time.Second)
	if got := m.State(); got != StateExpired {
		t.Fatalf("state after another 60s = %v, want EXPIRED", got)
	}
	if rec.expiredCount() != 1 {
		t.Errorf("sign-out hook called %d times, want 1", rec.expiredCount())
	}
	if len(rec.transitions) != 2 || rec.transitions[1].Reason != ReasonIdle {
		t.Errorf("transitions = %+v", rec.transitions)
	}
	if clk.PendingCount() != 0 {
		t.Errorf("%d timers still armed after expiry", clk.PendingCount())
	}
}

func TestMonitorBeforeWarning(t *testing.T) {
	m, clk, _ := newTestMonitor(t)
	clk.Advance(28*time.Minute + 59*time.Second)
	if got := m.State(); got != StateActive {
		t.Errorf("state = %v, want ACTIVE", got)
	}
}

func TestMonitorActivity(t *testing.T) {
	t.Run("activity resets the clock", func(t *testing.T) {
		m, clk, _ := newTestMonitor(t)
		clk.Advance(20 * time.Minute)
		if _, err := m.Activity(SourceKeyDown, false); err != nil {
			t.Fatalf("Activity failed: %v", err)
		}
		clk.Advance(20 * time.Minute)
		if got := m.State(); got != StateActive {
			t.Errorf("state = %v, want ACTIVE", got)
		}
	})

	t.Run("activity during warning returns to active", func(t *testing.T) {
		m, clk, rec := newTestMonitor(t)
		clk.Advance(29*time.Minute + time.Second)
		state, err := m.Activity(SourcePointerMove, false)
		if err != nil {
			t.Fatalf("Activity failed: %v", err)
		}
		if state != StateActive {
			t.Fatalf("state = %v, want ACTIVE", state)
		}
		if snap := m.Snapshot(); !snap.LastActivity.Equal(clk.Now()) {
			t.Errorf("elapsed not reset: last activity %v, now %v", snap.LastActivity, clk.Now())
		}

		// A full warning window later the session must still be active.
		clk.Advance(60 * time.Second)
		if got := m.State(); got != StateActive {
			t.Errorf("state = %v, want ACTIVE", got)
		}
		clk.Advance(29 * time.Minute)
		if got := m.State(); got != StateWarning {
			t.Errorf("state = %v, want WARNING again", got)
		}
		if rec.expiredCount() != 0 {
			t.Errorf("sign-out hook called %d times", rec.expiredCount())
		}
	})

	t.Run("warning dialog clicks are ignored", func(t *testing.T) {
		m, clk, rec := newTestMonitor(t)
		clk.Advance(29*time.Minute + time.Second)
		state, err := m.Activity(SourceClick, true)
		if err != nil {
			t.Fatalf("Activity failed: %v", err)
		}
		if state != StateWarning {
			t.Fatalf("state = %v, want WARNING", state)
		}
		clk.Advance(60 * time.Second)
		if got := m.State(); got != StateExpired {
			t.Errorf("state = %v, want EXPIRED", got)
		}
		if rec.expiredCount() != 1 {
			t.Errorf("sign-out hook called %d times, want 1", rec.expiredCount())
		}
	})

	t.Run("stay logged in", func(t *testing.T) {
		m, clk, rec := newTestMonitor(t)
		clk.Advance(29*time.Minute + 30*time.Second)
		if got := m.StayLoggedIn(); got != StateActive {
			t.Fatalf("StayLoggedIn = %v, want ACTIVE", got)
		}
		if last := rec.transitions[len(rec.transitions)-1]; last.Reason != ReasonStayLoggedIn {
			t.Errorf("last transition = %+v", last)
		}
		clk.Advance(time.Minute)
		if got := m.State(); got != StateActive {
			t.Errorf("state = %v, want ACTIVE", got)
		}
	})

	t.Run("expired is terminal", func(t *testing.T) {
		m, clk, _ := newTestMonitor(t)
		clk.Advance(31 * time.Minute)
		if got, _ := m.Activity(SourceScroll, false); got != StateExpired {
			t.Errorf("Activity after expiry = %v, want EXPIRED", got)
		}
		if got := m.StayLoggedIn(); got != StateExpired {
			t.Errorf("StayLoggedIn after expiry = %v, want EXPIRED", got)
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		m, _, _ := newTestMonitor(t)
		if _, err := m.Activity("mouseover", false); !apperr.IsValidation(err) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})
}

func TestMonitorLogoutAndStop(t *testing.T) {
	t.Run("logout", func(t *testing.T) {
		m, _, rec := newTestMonitor(t)
		m.Logout()
		m.Logout()
		if m.State() != StateExpired || rec.expiredCount() != 1 {
			t.Errorf("state = %v, sign-out calls = %d", m.State(), rec.expiredCount())
		}
	})

	t.Run("stop disarms the timer", func(t *testing.T) {
		m, clk, rec := newTestMonitor(t)
		m.Stop()
		clk.Advance(time.Hour)
		if m.State() != StateActive || rec.expiredCount() != 0 {
			t.Errorf("state = %v, sign-out calls = %d", m.State(), rec.expiredCount())
		}
	})
}

func TestConfigValidate(t *testing.T) {
	if _, err := NewMonitor(clock.Real(), Config{Timeout: time.Minute, WarningWindow: time.Minute}); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	clk := clock.Fake(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	var mu sync.Mutex
	var expired []string
	reg, err := NewRegistry(clk, DefaultConfig(), WithExpireHook(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, ev.SessionID)
	}))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	defer reg.Close()

	t.Run("watch sees warning and expiry", func(t *testing.T) {
		id, snap, err := reg.Start("A", Config{Timeout: 10 * time.Minute})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if snap.State != StateActive || !snap.ExpireAt.Equal(clk.Now().Add(10*time.Minute)) {
			t.Errorf("unexpected snapshot: %+v", snap)
		}

		events, err := reg.Watch(context.Background(), id, "A")
		if err != nil {
			t.Fatalf("Watch failed: %v", err)
		}

		clk.Advance(9 * time.Minute)
		ev := <-events
		if ev.Transition.To != StateWarning {
			t.Errorf("first event = %v, want WARNING", ev.Transition.To)
		}
		clk.Advance(time.Minute)
		ev = <-events
		if ev.Transition.To != StateExpired {
			t.Errorf("second event = %v, want EXPIRED", ev.Transition.To)
		}
		if _, ok := <-events; ok {
			t.Error("channel not closed after expiry")
		}

		if _, err := reg.Snapshot(id, "A"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expired session still registered: %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if len(expired) != 1 || expired[0] != id {
			t.Errorf("expire hook calls = %v", expired)
		}
	})

	t.Run("sessions are scoped to their user", func(t *testing.T) {
		id, _, err := reg.Start("A", Config{})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if _, err := reg.Activity(id, "B", SourceClick, false); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound for another user, got %v", err)
		}
		if _, err := reg.Activity(id, "A", SourceClick, false); err != nil {
			t.Errorf("Activity failed: %v", err)
		}
		if err := reg.End(id, "A"); err != nil {
			t.Fatalf("End failed: %v", err)
		}
		if reg.Len() != 0 {
			t.Errorf("Len = %d after End, want 0", reg.Len())
		}
	})

	t.Run("watch ends with context", func(t *testing.T) {
		id, _, err := reg.Start("A", Config{})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer reg.End(id, "A")

		ctx, cancel := context.WithCancel(context.Background())
		events, err := reg.Watch(ctx, id, "A")
		if err != nil {
			t.Fatalf("Watch failed: %v", err)
		}
		cancel()
		select {
		case _, ok := <-events:
			if ok {
				t.Error("unexpected event")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("channel not closed after cancel")
		}
	})
}
