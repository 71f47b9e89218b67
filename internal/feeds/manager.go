package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// ManageStore is the persistence a Manager writes through.
type ManageStore interface {
	CountStore
	FeedLister
	GetFolderByID(ctx context.Context, folderID int64) (*model.Folder, error)
	DeleteFolder(ctx context.Context, folderID int64) error
	CreateFeed(ctx context.Context, feed *model.Feed) (int64, error)
	DeleteFeed(ctx context.Context, feedID int64) error
	UpdateFeedTitle(ctx context.Context, feedID int64, title string) error
	MoveFeedToFolder(ctx context.Context, feedID int64, folderID *int64) error
	UpdateFeedAutoUpdate(ctx context.Context, feedID int64, mode model.AutoUpdateMode, interval time.Duration) error
	SetAutoUpdateInterval(ctx context.Context, interval time.Duration) error
	MarkMessagesRead(ctx context.Context, messageIDs []int64, read bool) ([]int64, error)
	MoveMessagesToRecycleBin(ctx context.Context, messageIDs []int64) ([]int64, error)
	RestoreMessages(ctx context.Context, messageIDs []int64) ([]int64, error)
	CleanFeedMessages(ctx context.Context, feedID, accountID int64, onlyRead bool) (int64, error)
}

// Manager applies user-driven changes to both the store and the live
// feeds, keeping counts and statuses current.
type Manager struct {
	store    ManageStore
	registry *Registry
	tracker  *Tracker
	sched    *Scheduler
	logger   *slog.Logger
}

// NewManager creates a manager over the given registry.
func NewManager(store ManageStore, registry *Registry, tracker *Tracker, sched *Scheduler, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		tracker:  tracker,
		sched:    sched,
		logger:   logger.With("component", "manager"),
	}
}

// AddFeed stores a new feed and registers it.
func (m *Manager) AddFeed(ctx context.Context, record model.Feed) (*Feed, error) {
	record.URL = strings.TrimSpace(record.URL)
	if !ValidURL(record.URL) {
		return nil, model.ErrInvalidFeedURL
	}
	if record.AutoUpdateMode == model.AutoUpdateOwn && record.AutoUpdateInterval < time.Minute {
		return nil, model.ErrInvalidInterval
	}
	if strings.TrimSpace(record.Title) == "" {
		record.Title = record.URL
	}
	if _, err := m.store.CreateFeed(ctx, &record); err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}
	f := m.registry.Add(record, m.sched)
	m.logger.Info("Feed added", "feed_id", record.ID, "url", record.URL)
	return f, nil
}

// Adopt registers feeds that were created directly in the store, such as
// by an OPML import.
func (m *Manager) Adopt(ctx context.Context, records []model.Feed) {
	for _, rec := range records {
		f := m.registry.Add(rec, m.sched)
		if err := m.tracker.RefreshCounts(ctx, f, true); err != nil {
			m.logger.Warn("Failed to count messages", "feed_id", rec.ID, "error", err)
		}
	}
}

// RemoveFeed deletes a feed and its messages. A fetch in flight for it is
// discarded when it finishes.
func (m *Manager) RemoveFeed(ctx context.Context, feedID int64) error {
	if err := m.store.DeleteFeed(ctx, feedID); err != nil {
		return err
	}
	m.registry.Remove(feedID)
	m.logger.Info("Feed removed", "feed_id", feedID)
	return nil
}

// Rename changes a feed's title.
func (m *Manager) Rename(ctx context.Context, feedID int64, title string) error {
	f, err := m.feed(feedID)
	if err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if err := m.store.UpdateFeedTitle(ctx, feedID, title); err != nil {
		return err
	}
	f.SetTitle(title)
	return nil
}

// Move places a feed in a folder, or at the top level when folderID is nil.
func (m *Manager) Move(ctx context.Context, feedID int64, folderID *int64) error {
	f, err := m.feed(feedID)
	if err != nil {
		return err
	}
	if err := m.store.MoveFeedToFolder(ctx, feedID, folderID); err != nil {
		return err
	}
	f.SetFolder(folderID)
	return nil
}

// DeleteFolder removes a folder and its subfolders. Feeds inside become
// unfiled.
func (m *Manager) DeleteFolder(ctx context.Context, folderID int64) error {
	if _, err := m.store.GetFolderByID(ctx, folderID); err != nil {
		return err
	}
	if err := m.store.DeleteFolder(ctx, folderID); err != nil {
		return err
	}
	records, err := m.store.GetAllFeeds(ctx)
	if err != nil {
		return fmt.Errorf("reload feeds: %w", err)
	}
	for _, rec := range records {
		if f, ok := m.registry.Get(rec.ID); ok {
			f.SetFolder(rec.FolderID)
		}
	}
	m.logger.Info("Folder deleted", "folder_id", folderID)
	return nil
}

// SetAutoUpdate changes a feed's auto-update mode and own interval.
func (m *Manager) SetAutoUpdate(ctx context.Context, feedID int64, mode model.AutoUpdateMode, own time.Duration) error {
	f, err := m.feed(feedID)
	if err != nil {
		return err
	}
	if mode == model.AutoUpdateOwn && own < time.Minute {
		return model.ErrInvalidInterval
	}
	if mode != model.AutoUpdateOwn {
		own = f.Record().AutoUpdateInterval
	}
	if err := m.store.UpdateFeedAutoUpdate(ctx, feedID, mode, own); err != nil {
		return err
	}
	return m.sched.SetAutoUpdate(f, mode, own)
}

// SetGlobalInterval stores the global interval and restarts every feed
// that uses it.
func (m *Manager) SetGlobalInterval(ctx context.Context, d time.Duration) error {
	if d < time.Minute {
		return model.ErrInvalidInterval
	}
	if err := m.store.SetAutoUpdateInterval(ctx, d); err != nil {
		return err
	}
	return m.sched.SetGlobalInterval(d, m.registry.All())
}

// MarkRead sets the read flag of messages and refreshes the unread counts
// of the feeds they belong to.
func (m *Manager) MarkRead(ctx context.Context, messageIDs []int64, read bool) error {
	feedIDs, err := m.store.MarkMessagesRead(ctx, messageIDs, read)
	if err != nil {
		return err
	}
	m.refresh(ctx, feedIDs, false)
	return nil
}

// Delete moves messages to the recycle bin.
func (m *Manager) Delete(ctx context.Context, messageIDs []int64) error {
	feedIDs, err := m.store.MoveMessagesToRecycleBin(ctx, messageIDs)
	if err != nil {
		return err
	}
	m.refresh(ctx, feedIDs, true)
	return nil
}

// Restore takes messages back out of the recycle bin.
func (m *Manager) Restore(ctx context.Context, messageIDs []int64) error {
	feedIDs, err := m.store.RestoreMessages(ctx, messageIDs)
	if err != nil {
		return err
	}
	m.refresh(ctx, feedIDs, true)
	return nil
}

// Clean moves all of a feed's messages, or only the read ones, to the
// recycle bin.
func (m *Manager) Clean(ctx context.Context, feedID int64, onlyRead bool) (int64, error) {
	f, err := m.feed(feedID)
	if err != nil {
		return 0, err
	}
	n, err := m.store.CleanFeedMessages(ctx, feedID, f.AccountID(), onlyRead)
	if err != nil {
		return 0, err
	}
	m.refresh(ctx, []int64{feedID}, true)
	return n, nil
}

func (m *Manager) feed(feedID int64) (*Feed, error) {
	f, ok := m.registry.Get(feedID)
	if !ok {
		return nil, model.ErrFeedNotFound
	}
	return f, nil
}

func (m *Manager) refresh(ctx context.Context, feedIDs []int64, includeTotal bool) {
	for _, id := range feedIDs {
		f, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		if err := m.tracker.RefreshCounts(ctx, f, includeTotal); err != nil {
			m.logger.Warn("Failed to refresh counts", "feed_id", id, "error", err)
		}
	}
}

// ValidURL reports whether raw is an absolute http or https URL.
func ValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
