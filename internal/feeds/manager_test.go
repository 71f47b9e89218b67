package feeds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

type fakeManageStore struct {
	fakeCounts
	nextID      int64
	deleted     []int64
	modes       map[int64]model.AutoUpdateMode
	global      time.Duration
	readFeeds   []int64
	cleanedRead bool
	stored      []model.Feed
}

func (s *fakeManageStore) GetAllFeeds(ctx context.Context) ([]model.Feed, error) {
	return s.stored, nil
}

func (s *fakeManageStore) GetFolderByID(ctx context.Context, folderID int64) (*model.Folder, error) {
	if folderID != 3 {
		return nil, model.ErrFolderNotFound
	}
	return &model.Folder{ID: 3, Name: "News"}, nil
}

func (s *fakeManageStore) DeleteFolder(ctx context.Context, folderID int64) error {
	for i := range s.stored {
		if s.stored[i].FolderID != nil && *s.stored[i].FolderID == folderID {
			s.stored[i].FolderID = nil
		}
	}
	return nil
}

func (s *fakeManageStore) CreateFeed(ctx context.Context, feed *model.Feed) (int64, error) {
	s.nextID++
	feed.ID = s.nextID
	if feed.AccountID == 0 {
		feed.AccountID = model.DefaultAccountID
	}
	s.stored = append(s.stored, *feed)
	return feed.ID, nil
}

func (s *fakeManageStore) DeleteFeed(ctx context.Context, feedID int64) error {
	s.deleted = append(s.deleted, feedID)
	return nil
}

func (s *fakeManageStore) UpdateFeedTitle(ctx context.Context, feedID int64, title string) error {
	return nil
}

func (s *fakeManageStore) MoveFeedToFolder(ctx context.Context, feedID int64, folderID *int64) error {
	return nil
}

func (s *fakeManageStore) UpdateFeedAutoUpdate(ctx context.Context, feedID int64, mode model.AutoUpdateMode, interval time.Duration) error {
	if s.modes == nil {
		s.modes = make(map[int64]model.AutoUpdateMode)
	}
	s.modes[feedID] = mode
	return nil
}

func (s *fakeManageStore) SetAutoUpdateInterval(ctx context.Context, interval time.Duration) error {
	s.global = interval
	return nil
}

func (s *fakeManageStore) MarkMessagesRead(ctx context.Context, messageIDs []int64, read bool) ([]int64, error) {
	return s.readFeeds, nil
}

func (s *fakeManageStore) MoveMessagesToRecycleBin(ctx context.Context, messageIDs []int64) ([]int64, error) {
	return s.readFeeds, nil
}

func (s *fakeManageStore) RestoreMessages(ctx context.Context, messageIDs []int64) ([]int64, error) {
	return s.readFeeds, nil
}

func (s *fakeManageStore) CleanFeedMessages(ctx context.Context, feedID, accountID int64, onlyRead bool) (int64, error) {
	s.cleanedRead = onlyRead
	return 4, nil
}

func newTestManager(store *fakeManageStore) (*Manager, *Registry, *Scheduler) {
	reg := NewRegistry()
	sched := NewScheduler(30 * time.Minute)
	tracker := NewTracker(store, discardLogger())
	return NewManager(store, reg, tracker, sched, discardLogger()), reg, sched
}

func TestManagerAddFeed(t *testing.T) {
	store := &fakeManageStore{}
	m, reg, _ := newTestManager(store)

	f, err := m.AddFeed(context.Background(), model.Feed{URL: " https://example.com/feed.xml "})
	if err != nil {
		t.Fatalf("AddFeed: %v", err)
	}
	st := f.Snapshot()
	if st.ID != 1 || st.Title != "https://example.com/feed.xml" {
		t.Fatalf("unexpected snapshot %+v", st)
	}
	if _, ok := reg.Get(1); !ok {
		t.Fatal("feed not registered")
	}

	if _, err := m.AddFeed(context.Background(), model.Feed{URL: "ftp://example.com/x"}); !errors.Is(err, model.ErrInvalidFeedURL) {
		t.Fatalf("expected ErrInvalidFeedURL, got %v", err)
	}
	if _, err := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/a", AutoUpdateMode: model.AutoUpdateOwn}); !errors.Is(err, model.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestManagerRemoveFeed(t *testing.T) {
	store := &fakeManageStore{}
	m, reg, _ := newTestManager(store)
	f, err := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/feed"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveFeed(context.Background(), f.ID()); err != nil {
		t.Fatalf("RemoveFeed: %v", err)
	}
	if reg.Len() != 0 || len(store.deleted) != 1 {
		t.Fatalf("feed not removed: len=%d deleted=%v", reg.Len(), store.deleted)
	}
}

func TestManagerSetAutoUpdate(t *testing.T) {
	store := &fakeManageStore{}
	m, _, _ := newTestManager(store)
	f, _ := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/feed"})

	if err := m.SetAutoUpdate(context.Background(), f.ID(), model.AutoUpdateOwn, 10*time.Minute); err != nil {
		t.Fatalf("SetAutoUpdate: %v", err)
	}
	st := f.Snapshot()
	if st.AutoUpdateMode != model.AutoUpdateOwn || st.Remaining != 10*time.Minute {
		t.Fatalf("unexpected state %+v", st)
	}
	if store.modes[f.ID()] != model.AutoUpdateOwn {
		t.Fatal("mode not persisted")
	}
	if err := m.SetAutoUpdate(context.Background(), 99, model.AutoUpdateGlobal, 0); !errors.Is(err, model.ErrFeedNotFound) {
		t.Fatalf("expected ErrFeedNotFound, got %v", err)
	}
}

func TestManagerSetGlobalInterval(t *testing.T) {
	store := &fakeManageStore{}
	m, _, sched := newTestManager(store)
	f, _ := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/feed", AutoUpdateMode: model.AutoUpdateGlobal})

	if err := m.SetGlobalInterval(context.Background(), 5*time.Minute); err != nil {
		t.Fatalf("SetGlobalInterval: %v", err)
	}
	if sched.GlobalInterval() != 5*time.Minute || store.global != 5*time.Minute {
		t.Fatalf("interval not applied: sched=%v store=%v", sched.GlobalInterval(), store.global)
	}
	if f.Snapshot().Remaining != 5*time.Minute {
		t.Fatalf("countdown not restarted: %v", f.Snapshot().Remaining)
	}
	if err := m.SetGlobalInterval(context.Background(), time.Second); !errors.Is(err, model.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestManagerMarkReadClearsNewMessages(t *testing.T) {
	store := &fakeManageStore{}
	store.total, store.unread = 3, 3
	m, _, _ := newTestManager(store)
	f, _ := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/feed"})
	tracker := NewTracker(store, discardLogger())
	if err := tracker.ApplyMerge(context.Background(), f, 3, time.Now()); err != nil {
		t.Fatal(err)
	}
	if f.Status() != model.StatusHasNewMessages {
		t.Fatalf("status = %v", f.Status())
	}

	store.unread = 1
	store.readFeeds = []int64{f.ID()}
	if err := m.MarkRead(context.Background(), []int64{10, 11}, true); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	st := f.Snapshot()
	if st.Status != model.StatusNormal || st.UnreadCount != 1 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestManagerClean(t *testing.T) {
	store := &fakeManageStore{}
	m, _, _ := newTestManager(store)
	f, _ := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/feed"})
	n, err := m.Clean(context.Background(), f.ID(), true)
	if err != nil || n != 4 || !store.cleanedRead {
		t.Fatalf("Clean = %d, %v (onlyRead=%v)", n, err, store.cleanedRead)
	}
}

func TestManagerRenameAndMove(t *testing.T) {
	store := &fakeManageStore{}
	m, _, _ := newTestManager(store)
	f, _ := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/feed"})

	if err := m.Rename(context.Background(), f.ID(), "  Renamed "); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	folder := int64(3)
	if err := m.Move(context.Background(), f.ID(), &folder); err != nil {
		t.Fatalf("Move: %v", err)
	}
	st := f.Snapshot()
	if st.Title != "Renamed" || st.FolderID == nil || *st.FolderID != 3 {
		t.Fatalf("unexpected state %+v", st)
	}
	if err := m.Rename(context.Background(), 42, "x"); !errors.Is(err, model.ErrFeedNotFound) {
		t.Fatalf("expected ErrFeedNotFound, got %v", err)
	}
}

func TestManagerDeleteFolderUnfilesFeeds(t *testing.T) {
	store := &fakeManageStore{}
	m, _, _ := newTestManager(store)
	folder := int64(3)
	f, err := m.AddFeed(context.Background(), model.Feed{URL: "https://example.com/feed", FolderID: &folder})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteFolder(context.Background(), 3); err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if st := f.Snapshot(); st.FolderID != nil {
		t.Fatalf("feed still filed: %+v", st)
	}
	if err := m.DeleteFolder(context.Background(), 9); !errors.Is(err, model.ErrFolderNotFound) {
		t.Fatalf("expected ErrFolderNotFound, got %v", err)
	}
}
