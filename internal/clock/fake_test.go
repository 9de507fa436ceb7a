package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeAfterFunc(t *testing.T) {
	t.Run("fires at deadline with clock at deadline", func(t *testing.T) {
		c := Fake(epoch)
		var firedAt time.Time
		c.AfterFunc(10*time.Second, func() { firedAt = c.Now() })

		c.Advance(9 * time.Second)
		if !firedAt.IsZero() {
			t.Fatal("fired early")
		}
		c.Advance(5 * time.Second)
		if want := epoch.Add(10 * time.Second); !firedAt.Equal(want) {
			t.Errorf("fired at %v, want %v", firedAt, want)
		}
		if got := c.Now(); !got.Equal(epoch.Add(14 * time.Second)) {
			t.Errorf("Now = %v after advance", got)
		}
	})

	t.Run("stop cancels", func(t *testing.T) {
		c := Fake(epoch)
		fired := false
		timer := c.AfterFunc(time.Second, func() { fired = true })
		if !timer.Stop() {
			t.Fatal("Stop returned false for pending timer")
		}
		c.Advance(time.Minute)
		if fired {
			t.Error("stopped timer fired")
		}
		if timer.Stop() {
			t.Error("second Stop returned true")
		}
	})

	t.Run("callbacks may re-arm within the same advance", func(t *testing.T) {
		c := Fake(epoch)
		var order []int
		c.AfterFunc(time.Second, func() {
			order = append(order, 1)
			c.AfterFunc(time.Second, func() { order = append(order, 2) })
		})
		c.Advance(3 * time.Second)
		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("order = %v, want [1 2]", order)
		}
		if c.PendingCount() != 0 {
			t.Errorf("PendingCount = %d, want 0", c.PendingCount())
		}
	})
}
