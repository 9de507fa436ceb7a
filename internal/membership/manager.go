// Package membership manages the group lifecycle: creation, joining,
// leaving with cascading deletion of emptied groups, settings, and
// discovery.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/studygroup/internal/apperr"
	"github.com/mmynk/studygroup/internal/blobstore"
	"github.com/mmynk/studygroup/internal/clock"
	"github.com/mmynk/studygroup/internal/docstore"
	"github.com/mmynk/studygroup/internal/models"
)

// MaxAvailable caps the "available groups" list returned by Discover.
const MaxAvailable = 6

// GroupImagesPrefix is the blob path prefix for group pictures.
const GroupImagesPrefix = "groupImages"

// Manager implements membership operations on top of a document store.
type Manager struct {
	store docstore.Store
	blobs blobstore.Store
	clock clock.Clock
}

// NewManager creates a Manager. blobs may be nil if group images are not
// supported.
func NewManager(store docstore.Store, blobs blobstore.Store, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{store: store, blobs: blobs, clock: clk}
}

// Create stores a new group owned by owner, who becomes its only member.
func (m *Manager) Create(ctx context.Context, owner models.Identity, in models.GroupInput) (*models.Group, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	if owner.UID == "" {
		return nil, apperr.Invalid("owner", "is required")
	}

	group := models.Group{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Owner:       owner.UID,
		Users:       []string{owner.UID},
		MemberCount: 1,
		Resources:   []models.Resource{},
		Events:      []models.Event{},
		MeetingDays: in.MeetingDays,
		MeetingTime: in.MeetingTime,
		Topics:      in.Topics,
		Privacy:     in.Privacy,
	}
	doc, err := m.store.Set(ctx, models.GroupPath(group.ID), group,
		docstore.Update{Field: "createdAt", Value: docstore.ServerTimestamp})
	if err != nil {
		return nil, docstore.Classify("create group", err)
	}
	slog.Info("Group created", "group_id", group.ID, "owner", owner.UID)
	return models.GroupFromDocument(doc)
}

// Get reads one group.
func (m *Manager) Get(ctx context.Context, gid string) (*models.Group, error) {
	doc, err := m.store.Get(ctx, models.GroupPath(gid))
	if err != nil {
		return nil, docstore.Classify("get group", err)
	}
	return models.GroupFromDocument(doc)
}

// Join adds uid to the group. The array union and the count increment
// commit together, and only if uid is not already a member, so
// memberCount always equals len(users). Joining twice is a no-op.
func (m *Manager) Join(ctx context.Context, gid, uid string) error {
	if uid == "" {
		return apperr.Invalid("uid", "is required")
	}
	_, err := m.store.Update(ctx, models.GroupPath(gid), []docstore.Update{
		{Field: "users", Value: docstore.ArrayUnion(uid)},
		{Field: "memberCount", Value: docstore.Increment(1)},
	}, docstore.NotContains("users", uid))
	switch {
	case errors.Is(err, docstore.ErrPreconditionFailed):
		slog.Debug("Join skipped, already a member", "group_id", gid, "uid", uid)
		return nil
	case err != nil:
		return docstore.Classify("join group", err)
	}
	slog.Info("User joined group", "group_id", gid, "uid", uid)
	return nil
}

// Leave removes uid from the group. When the last member leaves the
// group document is deleted, unless a concurrent join raised the count
// again first. Leaving a group that no longer exists, or that uid is not
// a member of, succeeds.
//
// The group's message sub-collection is not deleted here; see
// worker.OrphanCollector.
func (m *Manager) Leave(ctx context.Context, gid, uid string) error {
	if uid == "" {
		return apperr.Invalid("uid", "is required")
	}
	path := models.GroupPath(gid)
	doc, err := m.store.Update(ctx, path, []docstore.Update{
		{Field: "users", Value: docstore.ArrayRemove(uid)},
		{Field: "memberCount", Value: docstore.Increment(-1)},
	}, docstore.Contains("users", uid))
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrPreconditionFailed):
		return nil
	case err != nil:
		return docstore.Classify("leave group", err)
	}
	slog.Info("User left group", "group_id", gid, "uid", uid)

	if count, _ := doc.Data["memberCount"].(float64); count > 0 {
		return nil
	}
	err = m.store.Delete(ctx, path, docstore.Equals("memberCount", 0))
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return nil
	case errors.Is(err, docstore.ErrPreconditionFailed):
		slog.Info("Empty group rejoined before deletion", "group_id", gid)
		return nil
	case err != nil:
		return docstore.Classify("delete group", err)
	}
	slog.Info("Empty group deleted", "group_id", gid)
	return nil
}

// UpdateSettings changes the group's editable fields. Only the owner may
// do this; the check is repeated as a write precondition. image is
// optional.
func (m *Manager) UpdateSettings(ctx context.Context, gid, uid string, in models.GroupInput, image *models.FileInput) (*models.Group, error) {
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	if image != nil {
		if err := checkFile(image); err != nil {
			return nil, err
		}
		if m.blobs == nil {
			return nil, apperr.Invalid("image", "uploads are not enabled")
		}
	}

	group, err := m.Get(ctx, gid)
	if err != nil {
		return nil, err
	}
	if group.Owner != uid {
		return nil, apperr.ErrForbidden
	}

	updates := []docstore.Update{
		{Field: "name", Value: strings.TrimSpace(in.Name)},
		{Field: "description", Value: in.Description},
		{Field: "meetingDays", Value: in.MeetingDays},
		{Field: "meetingTime", Value: in.MeetingTime},
		{Field: "topics", Value: in.Topics},
		{Field: "privacy", Value: in.Privacy},
	}
	if image != nil {
		objectPath := blobstore.ObjectPath(GroupImagesPrefix, gid, m.clock.Now(), image.Name)
		ref, err := m.blobs.Upload(ctx, objectPath, image.Data)
		if err != nil {
			slog.Error("Group image upload failed", "group_id", gid, "error", err)
			return nil, apperr.Remote("upload group image", err)
		}
		url, err := m.blobs.URL(ctx, ref)
		if err != nil {
			return nil, apperr.Remote("resolve group image URL", err)
		}
		updates = append(updates, docstore.Update{Field: "groupImage", Value: url})
	}

	doc, err := m.store.Update(ctx, models.GroupPath(gid), updates, docstore.Equals("owner", uid))
	switch {
	case errors.Is(err, docstore.ErrPreconditionFailed):
		return nil, apperr.ErrForbidden
	case err != nil:
		return nil, docstore.Classify("update group settings", err)
	}
	slog.Info("Group settings updated", "group_id", gid)
	return models.GroupFromDocument(doc)
}

// Discover returns the groups uid belongs to and up to MaxAvailable
// groups they could join, both ordered by name.
func (m *Manager) Discover(ctx context.Context, uid string) (joined, available []*models.Group, err error) {
	all, err := m.list(ctx)
	if err != nil {
		return nil, nil, err
	}
	joined = []*models.Group{}
	available = []*models.Group{}
	for _, g := range all {
		switch {
		case g.HasMember(uid):
			joined = append(joined, g)
		case len(available) < MaxAvailable:
			available = append(available, g)
		}
	}
	return joined, available, nil
}

// Search returns groups whose name contains term, ignoring case. An empty
// term matches every group.
func (m *Manager) Search(ctx context.Context, term string) ([]*models.Group, error) {
	all, err := m.list(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	out := []*models.Group{}
	for _, g := range all {
		if strings.Contains(strings.ToLower(g.Name), needle) {
			out = append(out, g)
		}
	}
	return out, nil
}

// RecordProfile stores the display record of the signed-in user.
func (m *Manager) RecordProfile(ctx context.Context, id models.Identity) error {
	if id.UID == "" {
		return apperr.Invalid("uid", "is required")
	}
	name := id.DisplayName
	if name == "" {
		name = id.Email
	}
	profile := models.Profile{UID: id.UID, Name: name, Email: id.Email}
	if _, err := m.store.Set(ctx, models.UserPath(id.UID), profile); err != nil {
		return docstore.Classify("record profile", err)
	}
	return nil
}

// Members returns the profiles of the group's members, in membership
// order. Users without a stored profile are listed by id.
func (m *Manager) Members(ctx context.Context, gid string) ([]models.Profile, error) {
	group, err := m.Get(ctx, gid)
	if err != nil {
		return nil, err
	}
	out := make([]models.Profile, 0, len(group.Users))
	for _, uid := range group.Users {
		doc, err := m.store.Get(ctx, models.UserPath(uid))
		if errors.Is(err, docstore.ErrNotFound) {
			out = append(out, models.Profile{UID: uid, Name: uid})
			continue
		}
		if err != nil {
			return nil, docstore.Classify("get profile", err)
		}
		var p models.Profile
		if err := doc.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode profile %s: %w", uid, err)
		}
		p.UID = uid
		out = append(out, p)
	}
	return out, nil
}

func (m *Manager) list(ctx context.Context) ([]*models.Group, error) {
	docs, err := m.store.Query(ctx, docstore.Query{Collection: models.GroupsCollection})
	if err != nil {
		return nil, docstore.Classify("list groups", err)
	}
	groups := make([]*models.Group, 0, len(docs))
	for _, doc := range docs {
		g, err := models.GroupFromDocument(doc)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
	return groups, nil
}

func checkFile(f *models.FileInput) error {
	if err := models.Validate(f); err != nil {
		return err
	}
	if len(f.Data) > models.MaxAttachmentSize {
		return apperr.Invalid("file", fmt.Sprintf("exceeds %d bytes", models.MaxAttachmentSize))
	}
	return nil
}
