// Package model defines shared data structures.
package model

import "time"

// DefaultAccountID owns every feed until multiple accounts are configured.
const DefaultAccountID int64 = 1

// Folder represents a hierarchical folder for organizing feeds.
type Folder struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"` // nullable for root folders
}

// Feed is the persisted configuration of a feed subscription. The live
// derived state (counts, remaining interval) is kept by feeds.Feed.
type Feed struct {
	ID                 int64          `json:"id"`
	AccountID          int64          `json:"account_id"`
	FolderID           *int64         `json:"folder_id,omitempty"` // nullable if not in a folder
	Title              string         `json:"title"`
	URL                string         `json:"url"`
	Format             string         `json:"format"`
	Status             Status         `json:"status"`
	AutoUpdateMode     AutoUpdateMode `json:"auto_update_mode"`
	AutoUpdateInterval time.Duration  `json:"auto_update_interval"`
	LastFetched        time.Time      `json:"last_fetched"`
	LastError          string         `json:"last_error,omitempty"`
}

// Enclosure is a media attachment of a message.
type Enclosure struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Draft is a parsed entry that has not been merged into the store yet.
type Draft struct {
	Title           string      `json:"title"`
	Contents        string      `json:"contents"`
	Author          string      `json:"author"`
	URL             string      `json:"url"`
	Enclosures      []Enclosure `json:"enclosures,omitempty"`
	Created         time.Time   `json:"created"`
	CreatedFromFeed bool        `json:"created_from_feed"`
}

// Message is a stored syndicated item.
type Message struct {
	ID              int64       `json:"id"`
	FeedID          int64       `json:"feed_id"`
	AccountID       int64       `json:"account_id"`
	DedupKey        string      `json:"-"`
	Fingerprint     string      `json:"-"`
	Title           string      `json:"title"`
	Contents        string      `json:"contents"`
	Author          string      `json:"author"`
	URL             string      `json:"url"`
	Enclosures      []Enclosure `json:"enclosures"`
	Created         time.Time   `json:"created"`
	CreatedFromFeed bool        `json:"created_from_feed"`
	IsRead          bool        `json:"is_read"`
	IsDeleted       bool        `json:"is_deleted"`
	IsPurged        bool        `json:"-"`
}

// FromDraft builds an unsaved message for the given scope.
func FromDraft(d Draft, feedID, accountID int64) Message {
	return Message{
		FeedID:          feedID,
		AccountID:       accountID,
		Title:           d.Title,
		Contents:        d.Contents,
		Author:          d.Author,
		URL:             d.URL,
		Enclosures:      append([]Enclosure(nil), d.Enclosures...),
		Created:         d.Created,
		CreatedFromFeed: d.CreatedFromFeed,
	}
}

// FolderWithFeeds represents a folder containing its feeds.
type FolderWithFeeds struct {
	Folder
	Feeds []Feed `json:"feeds"`
}

// Settings key constants.
const (
	SettingAutoUpdateInterval = "auto_update_interval_minutes"
)
