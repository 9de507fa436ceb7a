package service

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/studygroup/internal/models"
	"github.com/mmynk/studygroup/pkg/api"
)

func TestSendMessage(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	a, b := ts.client(t, alice), ts.client(t, bob)
	group := createGroup(t, a, "Discrete Math")

	t.Run("text", func(t *testing.T) {
		resp, err := a.SendMessage(ctx, &api.SendMessageRequest{GroupID: group.ID, Text: "hello"})
		if err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
		if resp.Message.Text != "hello" || resp.Message.SenderName != "Alice" || resp.Message.Attachment != nil {
			t.Errorf("unexpected message: %+v", resp.Message)
		}
	})

	t.Run("attachment", func(t *testing.T) {
		resp, err := a.SendMessage(ctx, &api.SendMessageRequest{
			GroupID:    group.ID,
			Attachment: &models.FileInput{Name: "notes.txt", Data: []byte("graph theory")},
		})
		if err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
		if resp.Message.Attachment == nil || resp.Message.Attachment.URL == "" {
			t.Errorf("unexpected attachment: %+v", resp.Message.Attachment)
		}
	})

	t.Run("oversized attachment", func(t *testing.T) {
		_, err := a.SendMessage(ctx, &api.SendMessageRequest{
			GroupID:    group.ID,
			Attachment: &models.FileInput{Name: "big.bin", Data: make([]byte, models.MaxAttachmentSize+1)},
		})
		assertCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("non-member", func(t *testing.T) {
		_, err := b.SendMessage(ctx, &api.SendMessageRequest{GroupID: group.ID, Text: "let me in"})
		assertCode(t, err, connect.CodePermissionDenied)
	})

	t.Run("list groups by day", func(t *testing.T) {
		resp, err := a.ListMessages(ctx, &api.GroupRequest{GroupID: group.ID})
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(resp.Messages) != 2 {
			t.Fatalf("got %d messages, want 2", len(resp.Messages))
		}
		if len(resp.Days) != 1 || resp.Days[0].Label != "Today" || len(resp.Days[0].Messages) != 2 {
			t.Errorf("days = %+v", resp.Days)
		}

		_, err = b.ListMessages(ctx, &api.GroupRequest{GroupID: group.ID})
		assertCode(t, err, connect.CodePermissionDenied)
	})

	text := ts.metrics.MessagesSent.WithLabelValues("text")
	attachment := ts.metrics.MessagesSent.WithLabelValues("attachment")
	if testutil.ToFloat64(text) != 1 || testutil.ToFloat64(attachment) != 1 {
		t.Errorf("messages sent: text %v, attachment %v", testutil.ToFloat64(text), testutil.ToFloat64(attachment))
	}
}

func TestSubscribeStream(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.client(t, alice)
	group := createGroup(t, a, "Thermodynamics")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := a.Subscribe(ctx, &api.GroupRequest{GroupID: group.ID})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	if !stream.Receive() {
		t.Fatalf("no initial batch: %v", stream.Err())
	}
	if n := len(stream.Msg().Messages); n != 0 {
		t.Fatalf("initial batch has %d messages, want 0", n)
	}

	for _, text := range []string{"entropy", "enthalpy"} {
		if _, err := a.SendMessage(ctx, &api.SendMessageRequest{GroupID: group.ID, Text: text}); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	// Batches may be coalesced; wait for the list holding both.
	for stream.Receive() {
		msgs := stream.Msg().Messages
		if len(msgs) < 2 {
			continue
		}
		if msgs[0].Text != "entropy" || msgs[1].Text != "enthalpy" {
			t.Errorf("messages out of order: %q, %q", msgs[0].Text, msgs[1].Text)
		}
		return
	}
	t.Fatalf("stream ended before both messages arrived: %v", stream.Err())
}

func TestSubscribe_NotMember(t *testing.T) {
	ts := setupTestServer(t)
	group := createGroup(t, ts.client(t, alice), "Ecology")

	stream, err := ts.client(t, bob).Subscribe(context.Background(), &api.GroupRequest{GroupID: group.ID})
	if err != nil {
		assertCode(t, err, connect.CodePermissionDenied)
		return
	}
	defer stream.Close()
	if stream.Receive() {
		t.Fatal("non-member received a batch")
	}
	assertCode(t, stream.Err(), connect.CodePermissionDenied)
}
