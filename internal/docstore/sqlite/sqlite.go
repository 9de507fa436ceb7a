// Package sqlite provides a SQLite-backed implementation of docstore.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/studygroup/internal/clock"
	"github.com/mmynk/studygroup/internal/docstore"
)

// Ensure Store implements docstore.Store
var _ docstore.Store = (*Store)(nil)

// DefaultMaxAttempts bounds Transact retries.
const DefaultMaxAttempts = 16

// Publisher forwards local change notifications to other processes
// sharing the same database.
type Publisher interface {
	Publish(ctx context.Context, collection string) error
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for commit timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithMaxAttempts sets how many compare-and-swap attempts Transact makes.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithConflictHook registers a callback invoked on every lost
// compare-and-swap in Transact.
func WithConflictHook(fn func(path string)) Option {
	return func(s *Store) { s.onConflict = fn }
}

// WithPublisher forwards change notifications through p.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// Store implements docstore.Store using SQLite.
type Store struct {
	db          *sql.DB
	hub         *docstore.Hub
	clock       clock.Clock
	maxAttempts int
	onConflict  func(path string)
	publisher   Publisher

	mu   sync.Mutex
	last time.Time
}

// New creates a new Store with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string, opts ...Option) (*Store, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes commits; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{
		db:          db,
		hub:         docstore.NewHub(),
		clock:       clock.Real(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close stops all subscriptions and closes the database connection.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	return s.hub.Count()
}

// NotifyRemote wakes local subscribers of collection after a write made
// by another process.
func (s *Store) NotifyRemote(collection string) {
	s.hub.Notify(collection)
}

// now returns a commit time strictly after the previous one.
func (s *Store) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.clock.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *Store) notify(collection string) {
	s.hub.Notify(collection)
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, collection); err != nil {
		slog.Warn("Failed to publish change", "collection", collection, "error", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*docstore.Document, error) {
	var (
		path, raw            string
		version              int64
		createNano, updateNs int64
	)
	if err := row.Scan(&path, &raw, &version, &createNano, &updateNs); err != nil {
		return nil, err
	}
	data := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return &docstore.Document{
		Path:       path,
		Data:       data,
		Version:    version,
		CreateTime: time.Unix(0, createNano).UTC(),
		UpdateTime: time.Unix(0, updateNs).UTC(),
	}, nil
}

const selectDocument = "SELECT path, data, version, create_time, update_time FROM documents"

// Get retrieves a document by path.
func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, selectDocument+" WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Set creates or replaces a document.
func (s *Store) Set(ctx context.Context, path string, data any, updates ...docstore.Update) (*docstore.Document, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, err
	}
	fields, err := docstore.Encode(data)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := docstore.Apply(fields, updates, now); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	doc := &docstore.Document{Path: path, Data: fields, UpdateTime: now}
	var createNano int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO documents (path, parent, data, version, create_time, update_time)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			version = documents.version + 1,
			update_time = excluded.update_time
		RETURNING version, create_time`,
		path, docstore.Parent(path), string(raw), now.UnixNano(), now.UnixNano(),
	).Scan(&doc.Version, &createNano)
	if err != nil {
		return nil, fmt.Errorf("failed to set document: %w", err)
	}
	doc.CreateTime = time.Unix(0, createNano).UTC()

	s.notify(docstore.Parent(path))
	return doc, nil
}

// Add creates a document with a generated id.
func (s *Store) Add(ctx context.Context, collection string, data any, updates ...docstore.Update) (*docstore.Document, error) {
	return s.Set(ctx, docstore.Join(collection, uuid.New().String()), data, updates...)
}

// Update applies field updates atomically.
func (s *Store) Update(ctx context.Context, path string, updates []docstore.Update, preconditions ...docstore.Precondition) (*docstore.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := scanDocument(tx.QueryRowContext(ctx, selectDocument+" WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if err := docstore.Check(doc.Data, preconditions); err != nil {
		return nil, err
	}

	now := s.now()
	if err := docstore.Apply(doc.Data, updates, now); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET data = ?, version = version + 1, update_time = ? WHERE path = ?",
		string(raw), now.UnixNano(), path,
	); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	doc.Version++
	doc.UpdateTime = now
	s.notify(docstore.Parent(path))
	return doc, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, path string, preconditions ...docstore.Precondition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := scanDocument(tx.QueryRowContext(ctx, selectDocument+" WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if err := docstore.Check(doc.Data, preconditions); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(docstore.Parent(path))
	return nil
}

// DeleteCollection removes every document directly in collection.
func (s *Store) DeleteCollection(ctx context.Context, collection string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE parent = ?", collection)
	if err != nil {
		return 0, fmt.Errorf("failed to delete collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted documents: %w", err)
	}
	if n > 0 {
		s.notify(collection)
	}
	return int(n), nil
}

// Collections lists non-empty collections under prefix.
func (s *Store) Collections(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT parent FROM documents ORDER BY parent")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		if strings.HasPrefix(parent, prefix) {
			out = append(out, parent)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return out, nil
}

// Query loads the collection and evaluates q in memory.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx, selectDocument+" WHERE parent = ? ORDER BY path", q.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	defer rows.Close()

	var docs []*docstore.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docstore.Run(q, docs)
}

// Subscribe starts a live query.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func([]*docstore.Document)) (*docstore.Subscription, error) {
	return s.hub.Subscribe(ctx, q, s.Query, fn)
}

// Transact runs an optimistic read-modify-write on one document.
func (s *Store) Transact(ctx context.Context, path string, fn func(*docstore.Document) (map[string]any, error)) (*docstore.Document, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := s.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		readVersion := doc.Version

		fields, err := fn(doc)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			return doc, nil
		}

		// fn may have mutated doc.Data; start from a fresh copy.
		fresh, err := s.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if fresh.Version != readVersion {
			s.conflict(path, attempt)
			continue
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		updates := make([]docstore.Update, len(keys))
		for i, k := range keys {
			updates[i] = docstore.Update{Field: k, Value: fields[k]}
		}

		now := s.now()
		if err := docstore.Apply(fresh.Data, updates, now); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(fresh.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}

		res, err := s.db.ExecContext(ctx,
			"UPDATE documents SET data = ?, version = version + 1, update_time = ? WHERE path = ? AND version = ?",
			string(raw), now.UnixNano(), path, readVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check update: %w", err)
		}
		if n == 0 {
			s.conflict(path, attempt)
			continue
		}

		fresh.Version = readVersion + 1
		fresh.UpdateTime = now
		s.notify(docstore.Parent(path))
		return fresh, nil
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", docstore.ErrConflict, path, s.maxAttempts)
}

func (s *Store) conflict(path string, attempt int) {
	slog.Debug("Transaction conflict, retrying", "path", path, "attempt", attempt+1)
	if s.onConflict != nil {
		s.onConflict(path)
	}
}
