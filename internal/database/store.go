// Package database provides storage backends for the feed reader.
package database

import (
	"context"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL backends satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Folder operations
	GetFolders(ctx context.Context) ([]model.Folder, error)
	CreateFolder(ctx context.Context, name string, parentID *int64) (int64, error)
	GetOrCreateFolder(ctx context.Context, name string, parentID *int64) (int64, error)
	GetFolderByID(ctx context.Context, folderID int64) (*model.Folder, error)
	DeleteFolder(ctx context.Context, folderID int64) error

	// Feed operations
	GetAllFeeds(ctx context.Context) ([]model.Feed, error)
	GetFeedByID(ctx context.Context, feedID int64) (*model.Feed, error)
	FeedExists(ctx context.Context, feedID int64) (bool, error)
	CreateFeed(ctx context.Context, feed *model.Feed) (int64, error)
	GetOrCreateFeed(ctx context.Context, feed *model.Feed) (int64, bool, error)
	UpdateFeedTitle(ctx context.Context, feedID int64, title string) error
	UpdateFeedAutoUpdate(ctx context.Context, feedID int64, mode model.AutoUpdateMode, interval time.Duration) error
	UpdateFeedStatus(ctx context.Context, feedID int64, status model.Status, lastError string, fetched time.Time) error
	MoveFeedToFolder(ctx context.Context, feedID int64, folderID *int64) error
	DeleteFeed(ctx context.Context, feedID int64) error

	// Message operations
	ApplyMessageBatch(ctx context.Context, feedID, accountID int64, fn func(MessageBatch) error) error
	GetMessages(ctx context.Context, feedID, accountID int64, onlyUnread bool) ([]model.Message, error)
	CountMessages(ctx context.Context, feedID, accountID int64, onlyUnread bool) (int, error)
	MarkMessagesRead(ctx context.Context, messageIDs []int64, read bool) ([]int64, error)
	CleanFeedMessages(ctx context.Context, feedID, accountID int64, onlyRead bool) (int64, error)

	// Recycle bin operations
	MoveMessagesToRecycleBin(ctx context.Context, messageIDs []int64) ([]int64, error)
	RestoreMessages(ctx context.Context, messageIDs []int64) ([]int64, error)
	GetRecycleBin(ctx context.Context, accountID int64) ([]model.Message, error)
	CountRecycleBin(ctx context.Context, accountID int64, onlyUnread bool) (int, error)
	EmptyRecycleBin(ctx context.Context, accountID int64) (int64, error)

	// Settings operations
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetAutoUpdateInterval(ctx context.Context, fallback time.Duration) (time.Duration, error)
	SetAutoUpdateInterval(ctx context.Context, interval time.Duration) error
}

// MessageBatch is the view of one feed+account scope inside an atomic batch.
// Every call runs in the same transaction, so lookups see earlier inserts.
type MessageBatch interface {
	// Lookup returns the stored message with the dedup key, or nil.
	Lookup(ctx context.Context, dedupKey string) (*model.Message, error)
	// Insert stores a new message and its enclosures and sets msg.ID.
	Insert(ctx context.Context, msg *model.Message) error
	// Update rewrites the content fields of msg.ID. Read and deleted flags
	// are left as stored.
	Update(ctx context.Context, msg *model.Message) error
}
