// Package feeds holds the live state of configured feeds: status, message
// counts and auto-update timing. That state changes only through the
// Tracker and Scheduler so its transition rules always hold.
package feeds

import (
	"sync"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// Feed is a configured feed plus its derived state.
type Feed struct {
	mu     sync.RWMutex
	record model.Feed

	status      model.Status
	totalCount  int
	unreadCount int
	remaining   time.Duration
}

// State is a consistent copy of a feed's derived fields.
type State struct {
	ID                 int64                `json:"id"`
	AccountID          int64                `json:"account_id"`
	FolderID           *int64               `json:"folder_id,omitempty"`
	Title              string               `json:"title"`
	URL                string               `json:"url"`
	Format             string               `json:"format"`
	Status             model.Status         `json:"status"`
	TotalCount         int                  `json:"total_count"`
	UnreadCount        int                  `json:"unread_count"`
	AutoUpdateMode     model.AutoUpdateMode `json:"auto_update_mode"`
	AutoUpdateInterval time.Duration        `json:"auto_update_interval"`
	Remaining          time.Duration        `json:"remaining"`
	LastFetched        time.Time            `json:"last_fetched"`
	LastError          string               `json:"last_error,omitempty"`
}

// newFeed wraps a stored record. The remaining interval starts at the
// interval the mode selects.
func newFeed(record model.Feed, global time.Duration) *Feed {
	f := &Feed{record: record, status: record.Status}
	f.remaining = f.intervalLocked(global)
	return f
}

// ID returns the feed's identifier.
func (f *Feed) ID() int64 {
	return f.record.ID
}

// AccountID returns the owning account.
func (f *Feed) AccountID() int64 {
	return f.record.AccountID
}

// Record returns a copy of the configuration with the current status.
func (f *Feed) Record() model.Feed {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r := f.record
	r.Status = f.status
	return r
}

// Snapshot returns the derived state under one read lock.
func (f *Feed) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return State{
		ID:                 f.record.ID,
		AccountID:          f.record.AccountID,
		FolderID:           f.record.FolderID,
		Title:              f.record.Title,
		URL:                f.record.URL,
		Format:             f.record.Format,
		Status:             f.status,
		TotalCount:         f.totalCount,
		UnreadCount:        f.unreadCount,
		AutoUpdateMode:     f.record.AutoUpdateMode,
		AutoUpdateInterval: f.record.AutoUpdateInterval,
		Remaining:          f.remaining,
		LastFetched:        f.record.LastFetched,
		LastError:          f.record.LastError,
	}
}

// Status returns the current status.
func (f *Feed) Status() model.Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// SetTitle updates the display title.
func (f *Feed) SetTitle(title string) {
	f.mu.Lock()
	f.record.Title = title
	f.mu.Unlock()
}

// SetFolder moves the feed to another folder.
func (f *Feed) SetFolder(folderID *int64) {
	f.mu.Lock()
	f.record.FolderID = folderID
	f.mu.Unlock()
}

// intervalLocked returns the interval the current mode selects.
func (f *Feed) intervalLocked(global time.Duration) time.Duration {
	switch f.record.AutoUpdateMode {
	case model.AutoUpdateGlobal:
		return global
	case model.AutoUpdateOwn:
		return f.record.AutoUpdateInterval
	}
	return 0
}
