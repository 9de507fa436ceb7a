// Package chat implements a group's append-only message stream: live
// subscriptions ordered by store timestamp, and sending text or a single
// file attachment.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/studygroup/internal/apperr"
	"github.com/mmynk/studygroup/internal/blobstore"
	"github.com/mmynk/studygroup/internal/clock"
	"github.com/mmynk/studygroup/internal/docstore"
	"github.com/mmynk/studygroup/internal/models"
)

// FilesPrefix is the blob path prefix for chat attachments.
const FilesPrefix = "chat-files"

// MaxTextLength bounds a text message.
const MaxTextLength = 4000

// Stream reads and appends group messages.
type Stream struct {
	store docstore.Store
	blobs blobstore.Store
	clock clock.Clock

	// OnSent, if set, is called after each committed message.
	OnSent func(gid string, withAttachment bool)
}

// NewStream creates a Stream.
func NewStream(store docstore.Store, blobs blobstore.Store, clk clock.Clock) *Stream {
	if clk == nil {
		clk = clock.Real()
	}
	return &Stream{store: store, blobs: blobs, clock: clk}
}

func messagesQuery(gid string) docstore.Query {
	return docstore.Query{Collection: models.MessagesPath(gid)}.Ordered("timestamp", false)
}

// List returns the group's messages in timestamp order.
func (s *Stream) List(ctx context.Context, gid string) ([]*models.Message, error) {
	docs, err := s.store.Query(ctx, messagesQuery(gid))
	if err != nil {
		return nil, docstore.Classify("list messages", err)
	}
	return decodeMessages(docs), nil
}

// Subscribe delivers the full ordered message list to onBatch now and
// after every change. Calls are serialized; a burst of changes may be
// delivered as one batch. Stop the returned subscription to end delivery.
func (s *Stream) Subscribe(ctx context.Context, gid string, onBatch func([]*models.Message)) (*docstore.Subscription, error) {
	sub, err := s.store.Subscribe(ctx, messagesQuery(gid), func(docs []*docstore.Document) {
		onBatch(decodeMessages(docs))
	})
	if err != nil {
		return nil, docstore.Classify("subscribe to messages", err)
	}
	return sub, nil
}

func decodeMessages(docs []*docstore.Document) []*models.Message {
	out := make([]*models.Message, 0, len(docs))
	for _, doc := range docs {
		m, err := models.MessageFromDocument(doc)
		if err != nil {
			slog.Warn("Skipping undecodable message", "path", doc.Path, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Send appends a message from sender, who must be a group member.
// Exactly one of text and attachment must be given. An attachment is
// validated before anything is uploaded, and the message is written only
// after the upload has succeeded.
func (s *Stream) Send(ctx context.Context, gid string, sender models.Identity, text string, attachment *models.FileInput) (*models.Message, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "" && attachment == nil:
		return nil, apperr.Invalid("message", "text or attachment is required")
	case text != "" && attachment != nil:
		return nil, apperr.Invalid("message", "text and attachment are mutually exclusive")
	case len(text) > MaxTextLength:
		return nil, apperr.Invalid("text", fmt.Sprintf("must be at most %d characters", MaxTextLength))
	}
	if attachment != nil {
		if err := models.Validate(attachment); err != nil {
			return nil, err
		}
		if len(attachment.Data) > models.MaxAttachmentSize {
			return nil, apperr.Invalid("attachment", fmt.Sprintf("exceeds %d bytes", models.MaxAttachmentSize))
		}
		if s.blobs == nil {
			return nil, apperr.Invalid("attachment", "uploads are not enabled")
		}
	}

	if err := s.RequireMember(ctx, gid, sender.UID); err != nil {
		return nil, err
	}

	msg := models.Message{
		Text:       text,
		UserID:     sender.UID,
		SenderName: senderName(sender),
	}
	if attachment != nil {
		att, err := s.upload(ctx, gid, attachment)
		if err != nil {
			return nil, err
		}
		msg.Attachment = att
	}

	doc, err := s.store.Add(ctx, models.MessagesPath(gid), msg,
		docstore.Update{Field: "timestamp", Value: docstore.ServerTimestamp})
	if err != nil {
		slog.Error("Message write failed", "group_id", gid, "error", err)
		return nil, docstore.Classify("write message", err)
	}
	if s.OnSent != nil {
		s.OnSent(gid, attachment != nil)
	}
	return models.MessageFromDocument(doc)
}

func (s *Stream) upload(ctx context.Context, gid string, f *models.FileInput) (*models.Attachment, error) {
	objectPath := blobstore.ObjectPath(FilesPrefix, gid, s.clock.Now(), f.Name)
	ref, err := s.blobs.Upload(ctx, objectPath, f.Data)
	if err != nil {
		slog.Error("Attachment upload failed", "group_id", gid, "path", objectPath, "error", err)
		return nil, apperr.Remote("upload attachment", err)
	}
	url, err := s.blobs.URL(ctx, ref)
	if err != nil {
		return nil, apperr.Remote("resolve attachment URL", err)
	}
	return &models.Attachment{Name: f.Name, URL: url, Type: blobstore.ContentType(f.MimeType, f.Data)}, nil
}

// RequireMember returns apperr.ErrNotMember unless uid belongs to the
// group.
func (s *Stream) RequireMember(ctx context.Context, gid, uid string) error {
	doc, err := s.store.Get(ctx, models.GroupPath(gid))
	if err != nil {
		return docstore.Classify("get group", err)
	}
	group, err := models.GroupFromDocument(doc)
	if err != nil {
		return err
	}
	if !group.HasMember(uid) {
		return apperr.ErrNotMember
	}
	return nil
}

func senderName(id models.Identity) string {
	switch {
	case id.DisplayName != "":
		return id.DisplayName
	case id.Email != "":
		return id.Email
	}
	return "Anonymous"
}
