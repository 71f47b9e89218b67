package opml

import (
	"context"
	"fmt"

	"github.com/bryan-buckman/feedkeeper/internal/feeds"
	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// Store is the subset of the database the import and export need.
type Store interface {
	GetFolders(ctx context.Context) ([]model.Folder, error)
	GetOrCreateFolder(ctx context.Context, name string, parentID *int64) (int64, error)
	GetAllFeeds(ctx context.Context) ([]model.Feed, error)
	GetOrCreateFeed(ctx context.Context, feed *model.Feed) (int64, bool, error)
}

// ImportResult lists what an import did.
type ImportResult struct {
	Created []model.Feed
	Skipped int
	Invalid []string
}

// Import creates the folders and feeds of entries. Feeds that already
// exist are counted as skipped; entries with unusable URLs are reported.
func Import(ctx context.Context, store Store, entries []FeedEntry, mode model.AutoUpdateMode) (ImportResult, error) {
	var res ImportResult
	for _, e := range entries {
		if !feeds.ValidURL(e.URL) {
			res.Invalid = append(res.Invalid, e.URL)
			continue
		}
		var folderID *int64
		for _, name := range e.FolderPath {
			id, err := store.GetOrCreateFolder(ctx, name, folderID)
			if err != nil {
				return res, fmt.Errorf("create folder %q: %w", name, err)
			}
			folderID = &id
		}
		title := e.Title
		if title == "" {
			title = e.URL
		}
		feed := model.Feed{
			AccountID:      model.DefaultAccountID,
			FolderID:       folderID,
			Title:          title,
			URL:            e.URL,
			Format:         e.Format,
			AutoUpdateMode: mode,
		}
		_, created, err := store.GetOrCreateFeed(ctx, &feed)
		if err != nil {
			return res, fmt.Errorf("create feed %s: %w", e.URL, err)
		}
		if created {
			res.Created = append(res.Created, feed)
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// Collect builds export entries from the stored folders and feeds.
func Collect(ctx context.Context, store Store) ([]FeedEntry, error) {
	folders, err := store.GetFolders(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	pathOf := func(id *int64) []string {
		var path []string
		for seen := 0; id != nil && seen < len(folders); seen++ {
			f, ok := byID[*id]
			if !ok {
				break
			}
			path = append([]string{f.Name}, path...)
			id = f.ParentID
		}
		return path
	}

	all, err := store.GetAllFeeds(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]FeedEntry, 0, len(all))
	for _, f := range all {
		entries = append(entries, FeedEntry{
			FolderPath: pathOf(f.FolderID),
			Title:      f.Title,
			URL:        f.URL,
			Format:     f.Format,
		})
	}
	return entries, nil
}
