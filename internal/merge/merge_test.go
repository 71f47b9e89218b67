package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/database"
	"github.com/bryan-buckman/feedkeeper/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, *database.DB, model.Feed) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "merge.db"))
	if err != nil {
		t.Fatalf("database.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	feed := model.Feed{Title: "f", URL: "http://example.com/feed"}
	if _, err := db.CreateFeed(context.Background(), &feed); err != nil {
		t.Fatalf("CreateFeed failed: %v", err)
	}
	return NewEngine(db, slog.New(slog.NewTextHandler(io.Discard, nil))), db, feed
}

func sampleDrafts() []model.Draft {
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return []model.Draft{
		{Title: "one", Contents: "first", URL: "http://x/1", Created: day, CreatedFromFeed: true},
		{Title: "two", Contents: "second", URL: "http://x/2", Created: day.Add(time.Hour), CreatedFromFeed: true,
			Enclosures: []model.Enclosure{{URL: "http://x/2.mp3", MimeType: "audio/mpeg"}}},
		{Title: "no link", Author: "bob", Created: time.Now()},
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, db, feed := newTestEngine(t)

	first, err := engine.Merge(ctx, feed.ID, feed.AccountID, sampleDrafts())
	if err != nil {
		t.Fatalf("first Merge failed: %v", err)
	}
	if first.UpdatedCount() != 3 || !first.AnyChanged() {
		t.Fatalf("first merge = %+v", first)
	}

	// Undated drafts get a new fetch time on every run.
	again := sampleDrafts()
	again[2].Created = time.Now().Add(time.Hour)
	second, err := engine.Merge(ctx, feed.ID, feed.AccountID, again)
	if err != nil {
		t.Fatalf("second Merge failed: %v", err)
	}
	if second.UpdatedCount() != 0 || second.AnyChanged() || second.Skipped != 3 {
		t.Fatalf("second merge = %+v", second)
	}
	if n, _ := db.CountMessages(ctx, feed.ID, feed.AccountID, false); n != 3 {
		t.Errorf("stored %d messages, want 3", n)
	}
}

func TestMergeUpdatesChangedDraftAndKeepsFlags(t *testing.T) {
	ctx := context.Background()
	engine, db, feed := newTestEngine(t)
	if _, err := engine.Merge(ctx, feed.ID, feed.AccountID, sampleDrafts()); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	msgs, _ := db.GetMessages(ctx, feed.ID, feed.AccountID, false)
	var target int64
	for _, m := range msgs {
		if m.URL == "http://x/1" {
			target = m.ID
		}
	}
	if _, err := db.MarkMessagesRead(ctx, []int64{target}, true); err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}

	changed := sampleDrafts()
	changed[0].Title = "one (edited)"
	res, err := engine.Merge(ctx, feed.ID, feed.AccountID, changed)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if res.Modified != 1 || res.Inserted != 0 || res.UpdatedCount() != 1 {
		t.Fatalf("merge = %+v", res)
	}

	msgs, _ = db.GetMessages(ctx, feed.ID, feed.AccountID, false)
	for _, m := range msgs {
		if m.ID != target {
			continue
		}
		if m.Title != "one (edited)" {
			t.Errorf("title = %q", m.Title)
		}
		if !m.IsRead {
			t.Error("read flag was lost on update")
		}
	}
	if n, _ := db.CountMessages(ctx, feed.ID, feed.AccountID, false); n != 3 {
		t.Errorf("stored %d messages, want 3", n)
	}
}

func TestMergeDetectsEnclosureChange(t *testing.T) {
	ctx := context.Background()
	engine, _, feed := newTestEngine(t)
	engine.Merge(ctx, feed.ID, feed.AccountID, sampleDrafts())

	changed := sampleDrafts()
	changed[1].Enclosures = append(changed[1].Enclosures, model.Enclosure{URL: "http://x/2.ogg", MimeType: "audio/ogg"})
	res, err := engine.Merge(ctx, feed.ID, feed.AccountID, changed)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if res.Modified != 1 {
		t.Fatalf("merge = %+v", res)
	}
}

func TestMergeDuplicateKeysInOneBatch(t *testing.T) {
	ctx := context.Background()
	engine, db, feed := newTestEngine(t)
	drafts := []model.Draft{
		{Title: "first copy", URL: "http://x/same"},
		{Title: "second copy", URL: "http://x/same"},
	}
	res, err := engine.Merge(ctx, feed.ID, feed.AccountID, drafts)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 1 {
		t.Fatalf("merge = %+v", res)
	}
	res, _ = engine.Merge(ctx, feed.ID, feed.AccountID, drafts)
	if res.AnyChanged() {
		t.Fatalf("rerun changed the store: %+v", res)
	}
	msgs, _ := db.GetMessages(ctx, feed.ID, feed.AccountID, false)
	if len(msgs) != 1 || msgs[0].Title != "first copy" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestMergeKeepsPurgedMessagesHidden(t *testing.T) {
	ctx := context.Background()
	engine, db, feed := newTestEngine(t)
	if _, err := engine.Merge(ctx, feed.ID, feed.AccountID, sampleDrafts()); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	msgs, _ := db.GetMessages(ctx, feed.ID, feed.AccountID, false)
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if _, err := db.MoveMessagesToRecycleBin(ctx, ids); err != nil {
		t.Fatalf("MoveMessagesToRecycleBin failed: %v", err)
	}
	if n, err := db.EmptyRecycleBin(ctx, feed.AccountID); err != nil || n != 3 {
		t.Fatalf("EmptyRecycleBin = %d, %v", n, err)
	}

	// The feed still serves the same entries, some of them edited.
	again := sampleDrafts()
	again[0].Contents = "first, edited"
	res, err := engine.Merge(ctx, feed.ID, feed.AccountID, again)
	if err != nil {
		t.Fatalf("Merge after purge failed: %v", err)
	}
	if res.Inserted != 0 || res.Modified != 0 || res.AnyChanged() {
		t.Errorf("merge after purge = %+v", res)
	}
	if n, _ := db.CountMessages(ctx, feed.ID, feed.AccountID, true); n != 0 {
		t.Errorf("unread after purge = %d, want 0", n)
	}
	if n, _ := db.CountRecycleBin(ctx, feed.AccountID, false); n != 0 {
		t.Errorf("recycle bin after purge = %d, want 0", n)
	}
}

type failingStore struct {
	calls int
}

func (s *failingStore) ApplyMessageBatch(ctx context.Context, feedID, accountID int64, fn func(database.MessageBatch) error) error {
	s.calls++
	return errors.New("disk full")
}

func TestMergeStoreFailureReturnsZeroResult(t *testing.T) {
	store := &failingStore{}
	engine := NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	res, err := engine.Merge(context.Background(), 1, 1, sampleDrafts())
	if err == nil {
		t.Fatal("expected error")
	}
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero", res)
	}
	if store.calls != 1 {
		t.Errorf("calls = %d", store.calls)
	}
}

func TestDedupKey(t *testing.T) {
	withURL := model.Draft{Title: "a", URL: "http://x/1"}
	sameURL := model.Draft{Title: "b", URL: "http://x/1"}
	if DedupKey(withURL) != DedupKey(sameURL) {
		t.Error("drafts with the same url should share a key")
	}
	noURL := model.Draft{Title: "a", Author: "bob"}
	otherAuthor := model.Draft{Title: "a", Author: "alice"}
	if DedupKey(noURL) == DedupKey(otherAuthor) {
		t.Error("author should be part of the fallback key")
	}
	if DedupKey(model.Draft{Title: "ab", Author: "c"}) == DedupKey(model.Draft{Title: "a", Author: "bc"}) {
		t.Error("field boundaries must not collide")
	}
}

func TestFingerprintIgnoresFetchTime(t *testing.T) {
	a := model.Draft{Title: "t", Created: time.Unix(100, 0)}
	b := model.Draft{Title: "t", Created: time.Unix(200, 0)}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("fetch-time stamps should not change the fingerprint")
	}
	a.CreatedFromFeed, b.CreatedFromFeed = true, true
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("feed dates should change the fingerprint")
	}
}
