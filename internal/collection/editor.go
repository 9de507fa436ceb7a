// Package collection edits the two embedded collections of a group
// document, resources and events.
//
// Every mutation is a read-modify-write of the whole array run through
// docstore.Store.Transact, so a concurrent edit by another member causes a
// retry instead of a lost update. Authorization is checked inside the
// transaction against the version being committed.
package collection

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/studygroup/internal/apperr"
	"github.com/mmynk/studygroup/internal/blobstore"
	"github.com/mmynk/studygroup/internal/clock"
	"github.com/mmynk/studygroup/internal/docstore"
	"github.com/mmynk/studygroup/internal/models"
)

// ResourcesPrefix is the blob path prefix for uploaded resources.
const ResourcesPrefix = "resources"

// Editor mutates group resources and events.
type Editor struct {
	store docstore.Store
	blobs blobstore.Store
	clock clock.Clock
	loc   *time.Location
}

// NewEditor creates an Editor. Event dates and times are interpreted in
// loc (time.Local when nil).
func NewEditor(store docstore.Store, blobs blobstore.Store, clk clock.Clock, loc *time.Location) *Editor {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Editor{store: store, blobs: blobs, clock: clk, loc: loc}
}

// mutate runs fn against the current group inside a transaction, after
// checking that requester is a member. fn returns the fields to write, or
// nil to commit nothing.
func (e *Editor) mutate(ctx context.Context, op, gid, requester string, fn func(g *models.Group) (map[string]any, error)) (*models.Group, error) {
	doc, err := e.store.Transact(ctx, models.GroupPath(gid), func(doc *docstore.Document) (map[string]any, error) {
		g, err := models.GroupFromDocument(doc)
		if err != nil {
			return nil, err
		}
		if requester != "" && !g.HasMember(requester) {
			return nil, apperr.ErrNotMember
		}
		return fn(g)
	})
	if err != nil {
		return nil, docstore.Classify(op, err)
	}
	return models.GroupFromDocument(doc)
}

// AddResource appends a link resource.
func (e *Editor) AddResource(ctx context.Context, gid string, requester models.Identity, in models.ResourceInput) (*models.Resource, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	r := models.Resource{
		ID:          uuid.New().String(),
		Name:        in.Name,
		URL:         in.URL,
		MimeType:    in.MimeType,
		AddedBy:     requester.UID,
		AddedByName: displayName(requester),
		AddedAt:     e.clock.Now().UTC(),
	}
	if err := e.appendResource(ctx, gid, requester.UID, r); err != nil {
		return nil, err
	}
	slog.Info("Resource added", "group_id", gid, "resource_id", r.ID)
	return &r, nil
}

// UploadResource stores the file in the blob store, then appends it as a
// resource. The upload happens only after the size check and a membership
// check.
func (e *Editor) UploadResource(ctx context.Context, gid string, requester models.Identity, file models.FileInput) (*models.Resource, error) {
	if err := models.Validate(file); err != nil {
		return nil, err
	}
	if len(file.Data) > models.MaxAttachmentSize {
		return nil, apperr.Invalid("file", "exceeds the 5 MiB limit")
	}
	if e.blobs == nil {
		return nil, apperr.Invalid("file", "uploads are not enabled")
	}

	doc, err := e.store.Get(ctx, models.GroupPath(gid))
	if err != nil {
		return nil, docstore.Classify("get group", err)
	}
	g, err := models.GroupFromDocument(doc)
	if err != nil {
		return nil, err
	}
	if !g.HasMember(requester.UID) {
		return nil, apperr.ErrNotMember
	}

	now := e.clock.Now()
	ref, err := e.blobs.Upload(ctx, blobstore.ObjectPath(ResourcesPrefix, gid, now, file.Name), file.Data)
	if err != nil {
		slog.Error("Resource upload failed", "group_id", gid, "error", err)
		return nil, apperr.Remote("upload resource", err)
	}
	url, err := e.blobs.URL(ctx, ref)
	if err != nil {
		return nil, apperr.Remote("resolve resource URL", err)
	}

	r := models.Resource{
		ID:          uuid.New().String(),
		Name:        file.Name,
		URL:         url,
		MimeType:    blobstore.ContentType(file.MimeType, file.Data),
		AddedBy:     requester.UID,
		AddedByName: displayName(requester),
		AddedAt:     now.UTC(),
	}
	if err := e.appendResource(ctx, gid, requester.UID, r); err != nil {
		return nil, err
	}
	slog.Info("Resource uploaded", "group_id", gid, "resource_id", r.ID, "path", ref.Path)
	return &r, nil
}

func (e *Editor) appendResource(ctx context.Context, gid, uid string, r models.Resource) error {
	_, err := e.mutate(ctx, "add resource", gid, uid, func(g *models.Group) (map[string]any, error) {
		return map[string]any{"resources": append(g.Resources, r)}, nil
	})
	return err
}

// RemoveResource deletes resource rid. Only its uploader may do this.
func (e *Editor) RemoveResource(ctx context.Context, gid, uid, rid string) error {
	_, err := e.mutate(ctx, "remove resource", gid, uid, func(g *models.Group) (map[string]any, error) {
		i := indexOf(g.Resources, rid)
		if i < 0 {
			return nil, apperr.ErrNotFound
		}
		if !CanDeleteResource(uid, g.Resources[i]) {
			return nil, apperr.ErrForbidden
		}
		return map[string]any{"resources": removeAt(g.Resources, i)}, nil
	})
	if err != nil {
		return err
	}
	slog.Info("Resource removed", "group_id", gid, "resource_id", rid)
	return nil
}

// AddEvent appends an event. Events already in the past are accepted;
// the next sweep removes them.
func (e *Editor) AddEvent(ctx context.Context, gid string, requester models.Identity, in models.EventInput) (*models.Event, error) {
	if err := e.validateEvent(in); err != nil {
		return nil, err
	}
	ev := models.Event{
		ID:            uuid.New().String(),
		Title:         in.Title,
		Date:          in.Date,
		Time:          in.Time,
		CreatedBy:     requester.UID,
		CreatedByName: displayName(requester),
		CreatedAt:     e.clock.Now().UTC(),
	}
	_, err := e.mutate(ctx, "add event", gid, requester.UID, func(g *models.Group) (map[string]any, error) {
		events := append(g.Events, ev)
		models.SortEvents(events, e.loc)
		return map[string]any{"events": events}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Event added", "group_id", gid, "event_id", ev.ID)
	return &ev, nil
}

// EditEvent replaces the title, date and time of event eid.
func (e *Editor) EditEvent(ctx context.Context, gid, uid, eid string, in models.EventInput) (*models.Event, error) {
	if err := e.validateEvent(in); err != nil {
		return nil, err
	}
	var edited models.Event
	_, err := e.mutate(ctx, "edit event", gid, uid, func(g *models.Group) (map[string]any, error) {
		i := indexOf(g.Events, eid)
		if i < 0 {
			return nil, apperr.ErrNotFound
		}
		if !CanModifyEvent(uid, g) {
			return nil, apperr.ErrForbidden
		}
		events := append([]models.Event(nil), g.Events...)
		events[i].Title = in.Title
		events[i].Date = in.Date
		events[i].Time = in.Time
		edited = events[i]
		models.SortEvents(events, e.loc)
		return map[string]any{"events": events}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Event edited", "group_id", gid, "event_id", eid)
	return &edited, nil
}

// RemoveEvent deletes event eid.
func (e *Editor) RemoveEvent(ctx context.Context, gid, uid, eid string) error {
	_, err := e.mutate(ctx, "remove event", gid, uid, func(g *models.Group) (map[string]any, error) {
		i := indexOf(g.Events, eid)
		if i < 0 {
			return nil, apperr.ErrNotFound
		}
		if !CanModifyEvent(uid, g) {
			return nil, apperr.ErrForbidden
		}
		return map[string]any{"events": removeAt(g.Events, i)}, nil
	})
	if err != nil {
		return err
	}
	slog.Info("Event removed", "group_id", gid, "event_id", eid)
	return nil
}

// SweepExpired removes events whose start is strictly before now and
// returns the group as committed, with events sorted by start.
func (e *Editor) SweepExpired(ctx context.Context, gid string) (*models.Group, int, error) {
	return e.sweep(ctx, gid, "")
}

func (e *Editor) sweep(ctx context.Context, gid, requester string) (*models.Group, int, error) {
	removed := 0
	g, err := e.mutate(ctx, "sweep events", gid, requester, func(g *models.Group) (map[string]any, error) {
		now := e.clock.Now()
		kept := make([]models.Event, 0, len(g.Events))
		for _, ev := range g.Events {
			if start, err := ev.StartsAt(e.loc); err == nil && start.Before(now) {
				continue
			}
			kept = append(kept, ev)
		}
		removed = len(g.Events) - len(kept)
		if removed == 0 {
			return nil, nil
		}
		return map[string]any{"events": kept}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	models.SortEvents(g.Events, e.loc)
	if removed > 0 {
		slog.Info("Expired events removed", "group_id", gid, "count", removed)
	}
	return g, removed, nil
}

// Load returns the group after removing expired events. uid must be a
// member of the group.
func (e *Editor) Load(ctx context.Context, gid, uid string) (*models.Group, error) {
	g, _, err := e.sweep(ctx, gid, uid)
	return g, err
}

func (e *Editor) validateEvent(in models.EventInput) error {
	if err := models.Validate(in); err != nil {
		return err
	}
	ev := models.Event{Date: in.Date, Time: in.Time}
	if _, err := ev.StartsAt(e.loc); err != nil {
		return apperr.Invalid("date", err.Error())
	}
	return nil
}

type item interface {
	ItemID() string
}

func indexOf[T item](items []T, id string) int {
	for i, it := range items {
		if it.ItemID() == id {
			return i
		}
	}
	return -1
}

func removeAt[T any](items []T, i int) []T {
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

func displayName(id models.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return id.Email
}
