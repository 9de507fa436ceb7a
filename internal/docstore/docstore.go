// Package docstore provides abstractions for a remote document database.
//
// Documents are JSON objects addressed by slash-separated paths that
// alternate collection and document ids ("groups/g1",
// "groups/g1/messages/m1"). A document's collection is its path without
// the last segment.
//
// Writes to a single document are atomic: field transforms (ArrayUnion,
// ArrayRemove, Increment, ServerTimestamp) and preconditions are applied
// inside one commit. Multi-step read-modify-write goes through Transact,
// which compares the document version on commit and retries on conflict.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/studygroup/internal/apperr"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrPreconditionFailed is returned when a write's precondition does
	// not hold. Nothing is written.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrConflict is returned by Transact when every attempt lost the
	// version compare-and-swap.
	ErrConflict = errors.New("transaction conflict")
)

// Store defines the document operations consumed by the group components.
// This abstraction allows swapping storage backends without changing the
// component layer.
type Store interface {
	// Get reads one document. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, path string) (*Document, error)

	// Set creates or replaces a document with data (a struct or map that
	// encodes to a JSON object). Updates are applied on top of data in
	// the same commit, typically ServerTimestamp fields.
	Set(ctx context.Context, path string, data any, updates ...Update) (*Document, error)

	// Add creates a document with a generated id in collection.
	Add(ctx context.Context, collection string, data any, updates ...Update) (*Document, error)

	// Update applies field updates to an existing document atomically.
	// Returns ErrNotFound if the document does not exist and
	// ErrPreconditionFailed if any precondition does not hold.
	Update(ctx context.Context, path string, updates []Update, preconditions ...Precondition) (*Document, error)

	// Delete removes a document. Returns ErrNotFound if it does not exist
	// and ErrPreconditionFailed if any precondition does not hold.
	Delete(ctx context.Context, path string, preconditions ...Precondition) error

	// DeleteCollection removes every document directly inside collection
	// and returns how many were removed.
	DeleteCollection(ctx context.Context, collection string) (int, error)

	// Collections lists the distinct collections that currently hold at
	// least one document and whose path starts with prefix.
	Collections(ctx context.Context, prefix string) ([]string, error)

	// Query returns the documents of q.Collection matching q.
	Query(ctx context.Context, q Query) ([]*Document, error)

	// Subscribe runs q now and again after every change to q.Collection,
	// passing the full result to fn each time. See Subscription.
	Subscribe(ctx context.Context, q Query, fn func([]*Document)) (*Subscription, error)

	// Transact reads the document at path, passes it to fn and writes the
	// returned fields back if the document version is unchanged. On a
	// version mismatch the cycle restarts; fn must therefore be free of
	// side effects. A nil map from fn commits nothing.
	Transact(ctx context.Context, path string, fn func(*Document) (map[string]any, error)) (*Document, error)

	// Close releases any resources held by the store.
	Close() error
}

// Document is a snapshot of one stored document.
type Document struct {
	Path       string
	Data       map[string]any
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time
}

// ID returns the last path segment.
func (d *Document) ID() string {
	return LastSegment(d.Path)
}

// DataTo decodes the document data into v.
func (d *Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.Path, err)
	}
	return nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Parent returns the collection that contains the document at path.
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// LastSegment returns the final segment of path.
func LastSegment(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// ValidatePath checks that path names a document: non-empty segments,
// an even count of them.
func ValidatePath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return fmt.Errorf("path %q does not name a document", path)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("path %q has an empty segment", path)
		}
	}
	return nil
}

// Classify maps store errors onto the shared taxonomy: missing documents
// become apperr.ErrNotFound, exhausted transactions apperr.ErrConflict,
// and anything else an apperr.RemoteError for op.
func Classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.ErrNotFound
	case errors.Is(err, ErrConflict):
		return apperr.ErrConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return apperr.Remote(op, err)
}

// Encode converts a struct or map into the normalized map form stored in
// documents (JSON numbers as float64, nested objects as map[string]any).
func Encode(data any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document data: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("document data must encode to an object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// normalize gives a value the same shape it will have after a storage
// round trip, so comparisons against stored values are meaningful.
func normalize(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return FormatTime(t), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// FormatTime renders t the way timestamps are stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
