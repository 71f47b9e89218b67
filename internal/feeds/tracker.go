package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// CountStore provides the counts and status persistence the tracker needs.
type CountStore interface {
	CountMessages(ctx context.Context, feedID, accountID int64, onlyUnread bool) (int, error)
	UpdateFeedStatus(ctx context.Context, feedID int64, status model.Status, lastError string, fetched time.Time) error
}

// Tracker owns the status transitions of feeds.
//
//	merge with updates    -> HasNewMessages
//	merge without updates -> Normal
//	unread count drops    -> Normal (only from Normal or HasNewMessages)
//	failed fetch          -> NetworkError, ParsingError or OtherError
type Tracker struct {
	store  CountStore
	logger *slog.Logger
}

// NewTracker creates a status tracker.
func NewTracker(store CountStore, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger.With("component", "tracker")}
}

// ApplyMerge records a successful fetch whose merge updated the given
// number of messages, then refreshes the feed's counts.
func (t *Tracker) ApplyMerge(ctx context.Context, f *Feed, updated int, fetched time.Time) error {
	status := model.StatusNormal
	if updated > 0 {
		status = model.StatusHasNewMessages
	}
	f.mu.Lock()
	f.status = status
	f.record.LastFetched = fetched
	f.record.LastError = ""
	f.mu.Unlock()

	if err := t.store.UpdateFeedStatus(ctx, f.ID(), status, "", fetched); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	return t.RefreshCounts(ctx, f, true)
}

// ApplyFailure records a failed fetch. Counts are left alone because no
// merge happened.
func (t *Tracker) ApplyFailure(ctx context.Context, f *Feed, kind model.ErrorKind, detail string, fetched time.Time) error {
	status := kind.Status()
	f.mu.Lock()
	f.status = status
	f.record.LastFetched = fetched
	f.record.LastError = detail
	f.mu.Unlock()

	t.logger.Warn("Feed fetch failed", "feed_id", f.ID(), "kind", kind, "detail", detail)
	if err := t.store.UpdateFeedStatus(ctx, f.ID(), status, detail, fetched); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	return nil
}

// SetUnreadCount stores a new unread count. A drop while the feed shows
// new messages means the user has been reading, so the status returns
// to Normal. Error statuses are kept.
func (t *Tracker) SetUnreadCount(f *Feed, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == model.StatusHasNewMessages && n < f.unreadCount {
		f.status = model.StatusNormal
	}
	f.unreadCount = n
}

// SetTotalCount stores a new total message count.
func (t *Tracker) SetTotalCount(f *Feed, n int) {
	f.mu.Lock()
	f.totalCount = n
	f.mu.Unlock()
}

// RefreshCounts reloads the unread count, and the total when includeTotal
// is set, from the store.
func (t *Tracker) RefreshCounts(ctx context.Context, f *Feed, includeTotal bool) error {
	if includeTotal {
		total, err := t.store.CountMessages(ctx, f.ID(), f.AccountID(), false)
		if err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		t.SetTotalCount(f, total)
	}
	unread, err := t.store.CountMessages(ctx, f.ID(), f.AccountID(), true)
	if err != nil {
		return fmt.Errorf("count unread messages: %w", err)
	}
	before := f.Status()
	t.SetUnreadCount(f, unread)
	if after := f.Status(); after != before {
		if err := t.store.UpdateFeedStatus(ctx, f.ID(), after, "", f.Record().LastFetched); err != nil {
			return fmt.Errorf("persist status: %w", err)
		}
	}
	return nil
}
