// Package worker holds background jobs of the server.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/studygroup/internal/docstore"
	"github.com/mmynk/studygroup/internal/models"
)

// OrphanCollector deletes the message collections of groups that no
// longer exist. Leaving a group removes only the group document, so its
// messages are collected here.
type OrphanCollector struct {
	store    docstore.Store
	interval time.Duration

	// OnCollected, if set, is called with the number of messages deleted
	// from each orphaned collection.
	OnCollected func(gid string, n int)
}

// NewOrphanCollector creates a collector that runs every interval.
func NewOrphanCollector(store docstore.Store, interval time.Duration) *OrphanCollector {
	return &OrphanCollector{store: store, interval: interval}
}

// Start collects once immediately and then on every tick until ctx is
// done.
func (c *OrphanCollector) Start(ctx context.Context) {
	slog.Info("Starting orphan collector", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if _, err := c.Collect(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Orphan collection failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("Stopping orphan collector")
			return
		}
	}
}

// Collect runs one pass and returns the number of messages deleted.
func (c *OrphanCollector) Collect(ctx context.Context) (int, error) {
	collections, err := c.store.Collections(ctx, models.GroupsCollection+"/")
	if err != nil {
		return 0, fmt.Errorf("failed to list collections: %w", err)
	}

	total := 0
	for _, coll := range collections {
		if docstore.LastSegment(coll) != models.MessagesCollection {
			continue
		}
		groupPath := docstore.Parent(coll)
		_, err := c.store.Get(ctx, groupPath)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, docstore.ErrNotFound):
			return total, fmt.Errorf("failed to check %s: %w", groupPath, err)
		}

		n, err := c.store.DeleteCollection(ctx, coll)
		if err != nil {
			return total, fmt.Errorf("failed to delete %s: %w", coll, err)
		}
		gid := docstore.LastSegment(groupPath)
		slog.Info("Orphaned messages deleted", "group_id", gid, "count", n)
		if c.OnCollected != nil {
			c.OnCollected(gid, n)
		}
		total += n
	}
	return total, nil
}
