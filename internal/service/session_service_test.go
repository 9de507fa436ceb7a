package service

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/studygroup/internal/session"
	"github.com/mmynk/studygroup/pkg/api"
)

func TestSessionLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	a := ts.client(t, alice)

	start, err := a.StartSession(ctx, &api.StartSessionRequest{})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if start.SessionID == "" || start.Session.State != session.StateActive {
		t.Fatalf("unexpected start: %+v", start)
	}
	if got := start.Session.ExpireAt.Sub(start.Session.LastActivity); got != session.DefaultTimeout {
		t.Errorf("timeout = %v, want %v", got, session.DefaultTimeout)
	}
	req := &api.SessionRequest{SessionID: start.SessionID}

	t.Run("warning then activity", func(t *testing.T) {
		ts.sessionClock.Advance(29*time.Minute + time.Second)
		got, err := a.GetSession(ctx, req)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.Session.State != session.StateWarning {
			t.Fatalf("state = %v, want WARNING", got.Session.State)
		}

		resp, err := a.RecordActivity(ctx, &api.RecordActivityRequest{SessionID: start.SessionID, Source: "click", InsideWarning: true})
		if err != nil {
			t.Fatalf("RecordActivity failed: %v", err)
		}
		if resp.State != session.StateWarning {
			t.Errorf("warning dialog click changed state to %v", resp.State)
		}

		resp, err = a.RecordActivity(ctx, &api.RecordActivityRequest{SessionID: start.SessionID, Source: "keydown"})
		if err != nil {
			t.Fatalf("RecordActivity failed: %v", err)
		}
		if resp.State != session.StateActive {
			t.Errorf("state = %v, want ACTIVE", resp.State)
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := a.RecordActivity(ctx, &api.RecordActivityRequest{SessionID: start.SessionID, Source: "hover"})
		assertCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("stay logged in", func(t *testing.T) {
		ts.sessionClock.Advance(29*time.Minute + 30*time.Second)
		resp, err := a.StayLoggedIn(ctx, req)
		if err != nil {
			t.Fatalf("StayLoggedIn failed: %v", err)
		}
		if resp.State != session.StateActive {
			t.Errorf("state = %v, want ACTIVE", resp.State)
		}
	})

	t.Run("other users cannot see the session", func(t *testing.T) {
		_, err := ts.client(t, bob).GetSession(ctx, req)
		assertCode(t, err, connect.CodeNotFound)
	})

	t.Run("logout redirects home", func(t *testing.T) {
		resp, err := a.Logout(ctx, req)
		if err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		if resp.RedirectTo != "/" {
			t.Errorf("RedirectTo = %q, want /", resp.RedirectTo)
		}
		_, err = a.GetSession(ctx, req)
		assertCode(t, err, connect.CodeNotFound)
	})
}

func TestStartSession_RecordsProfile(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	a := ts.client(t, alice)
	group := createGroup(t, a, "Genetics")

	if _, err := a.StartSession(ctx, &api.StartSessionRequest{}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	resp, err := a.ListMembers(ctx, &api.GroupRequest{GroupID: group.ID})
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(resp.Members) != 1 || resp.Members[0].Name != "Alice" || resp.Members[0].Email != alice.Email {
		t.Errorf("members = %+v", resp.Members)
	}
}

func TestStartSession_InvalidTimings(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.client(t, alice)

	_, err := a.StartSession(context.Background(), &api.StartSessionRequest{TimeoutSeconds: 30, WarningWindowSeconds: 60})
	assertCode(t, err, connect.CodeInvalidArgument)

	_, err = a.StartSession(context.Background(), &api.StartSessionRequest{TimeoutSeconds: -1})
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestWatchSession(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.client(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start, err := a.StartSession(ctx, &api.StartSessionRequest{TimeoutSeconds: 600, WarningWindowSeconds: 60})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	stream, err := a.WatchSession(ctx, &api.SessionRequest{SessionID: start.SessionID})
	if err != nil {
		t.Fatalf("WatchSession failed: %v", err)
	}
	defer stream.Close()

	// The first event is the current state; after it the watch is live.
	if !stream.Receive() {
		t.Fatalf("no initial event: %v", stream.Err())
	}
	if snap := stream.Msg().Session; snap == nil || snap.State != session.StateActive {
		t.Fatalf("initial event = %+v", stream.Msg())
	}

	ts.sessionClock.Advance(9 * time.Minute)
	if !stream.Receive() {
		t.Fatalf("no warning event: %v", stream.Err())
	}
	if tr := stream.Msg().Transition; tr == nil || tr.To != session.StateWarning || stream.Msg().RedirectTo != "" {
		t.Fatalf("warning event = %+v", stream.Msg())
	}

	ts.sessionClock.Advance(time.Minute)
	if !stream.Receive() {
		t.Fatalf("no expiry event: %v", stream.Err())
	}
	msg := stream.Msg()
	if msg.Transition == nil || msg.Transition.To != session.StateExpired || msg.Transition.Reason != session.ReasonIdle {
		t.Errorf("expiry event = %+v", msg)
	}
	if msg.RedirectTo != "/" {
		t.Errorf("RedirectTo = %q, want /", msg.RedirectTo)
	}

	if stream.Receive() {
		t.Errorf("unexpected event after expiry: %+v", stream.Msg())
	}
	if err := stream.Err(); err != nil {
		t.Errorf("stream ended with %v", err)
	}
	if got := testutil.ToFloat64(ts.metrics.SignOuts.WithLabelValues("idle")); got != 1 {
		t.Errorf("idle sign-outs = %v, want 1", got)
	}
}
