// Package merge applies parsed drafts to the stored history of a feed.
package merge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/bryan-buckman/feedkeeper/internal/database"
	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// BatchStore is the part of the store the engine needs.
type BatchStore interface {
	ApplyMessageBatch(ctx context.Context, feedID, accountID int64, fn func(database.MessageBatch) error) error
}

// Result summarizes one merge.
type Result struct {
	Inserted int
	Modified int
	Skipped  int
}

// UpdatedCount is the number of drafts that were inserted or changed.
func (r Result) UpdatedCount() int { return r.Inserted + r.Modified }

// AnyChanged reports whether the store was modified.
func (r Result) AnyChanged() bool { return r.UpdatedCount() > 0 }

// Engine decides insert, update or skip for each draft.
type Engine struct {
	store  BatchStore
	logger *slog.Logger
}

// NewEngine creates a merge engine over the given store.
func NewEngine(store BatchStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger.With("component", "merge")}
}

// Merge applies drafts, in order, to one feed+account scope as a single
// atomic batch. On error nothing is applied and the result is zero.
func (e *Engine) Merge(ctx context.Context, feedID, accountID int64, drafts []model.Draft) (Result, error) {
	var res Result
	err := e.store.ApplyMessageBatch(ctx, feedID, accountID, func(batch database.MessageBatch) error {
		res = Result{}
		seen := make(map[string]bool, len(drafts))
		for i := range drafts {
			key := DedupKey(drafts[i])
			// The first entry with a key wins; later copies in the same
			// payload are ignored.
			if seen[key] {
				res.Skipped++
				continue
			}
			seen[key] = true
			if err := e.apply(ctx, batch, feedID, accountID, key, drafts[i], &res); err != nil {
				return fmt.Errorf("draft %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("merge feed %d: %w", feedID, err)
	}
	e.logger.Debug("Merged drafts", "feed_id", feedID, "inserted", res.Inserted, "modified", res.Modified, "skipped", res.Skipped)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, batch database.MessageBatch, feedID, accountID int64, key string, d model.Draft, res *Result) error {
	existing, err := batch.Lookup(ctx, key)
	if err != nil {
		return err
	}

	if existing == nil {
		msg := model.FromDraft(d, feedID, accountID)
		msg.DedupKey = key
		msg.Fingerprint = Fingerprint(d)
		if err := batch.Insert(ctx, &msg); err != nil {
			return err
		}
		res.Inserted++
		return nil
	}

	if existing.IsPurged {
		res.Skipped++
		return nil
	}

	// An undated entry keeps the time it was first seen.
	if !d.CreatedFromFeed {
		d.Created = existing.Created
	}
	fp := Fingerprint(d)
	if fp == existing.Fingerprint {
		res.Skipped++
		return nil
	}

	updated := model.FromDraft(d, feedID, accountID)
	updated.ID = existing.ID
	updated.DedupKey = key
	updated.Fingerprint = fp
	updated.IsRead = existing.IsRead
	updated.IsDeleted = existing.IsDeleted
	if err := batch.Update(ctx, &updated); err != nil {
		return err
	}
	res.Modified++
	return nil
}

// DedupKey identifies a draft within its feed: the url when present,
// otherwise title and author.
func DedupKey(d model.Draft) string {
	if d.URL != "" {
		return digest("url", d.URL)
	}
	return digest("content", d.Title, d.Author)
}

// Fingerprint covers every field shown to the reader, so any visible
// difference counts as a change. Fetch-time stamps are excluded.
func Fingerprint(d model.Draft) string {
	parts := []string{d.Title, d.Contents, d.Author, d.URL}
	for _, enc := range d.Enclosures {
		parts = append(parts, enc.URL, enc.MimeType)
	}
	if d.CreatedFromFeed {
		parts = append(parts, strconv.FormatInt(d.Created.UnixMilli(), 10))
	}
	return digest("v1", parts...)
}

func digest(kind string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		// Length prefixes keep ("ab","c") and ("a","bc") apart.
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
