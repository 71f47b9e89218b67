package feeds

import (
	"context"
	"sort"
	"sync"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// FeedLister loads the configured feeds.
type FeedLister interface {
	GetAllFeeds(ctx context.Context) ([]model.Feed, error)
}

// Registry is the set of live feeds keyed by ID.
type Registry struct {
	mu    sync.RWMutex
	feeds map[int64]*Feed
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[int64]*Feed)}
}

// Load replaces the registry contents with the stored feeds.
func (r *Registry) Load(ctx context.Context, store FeedLister, sched *Scheduler) error {
	records, err := store.GetAllFeeds(ctx)
	if err != nil {
		return err
	}
	feeds := make(map[int64]*Feed, len(records))
	for _, rec := range records {
		feeds[rec.ID] = newFeed(rec, sched.GlobalInterval())
	}
	r.mu.Lock()
	r.feeds = feeds
	r.mu.Unlock()
	return nil
}

// Add registers a stored feed and returns its live entity.
func (r *Registry) Add(record model.Feed, sched *Scheduler) *Feed {
	f := newFeed(record, sched.GlobalInterval())
	r.mu.Lock()
	r.feeds[record.ID] = f
	r.mu.Unlock()
	return f
}

// Remove forgets a feed. In-flight fetches for it are discarded.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	delete(r.feeds, id)
	r.mu.Unlock()
}

// Get returns the live feed with the given ID.
func (r *Registry) Get(id int64) (*Feed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[id]
	return f, ok
}

// All returns every feed ordered by ID.
func (r *Registry) All() []*Feed {
	r.mu.RLock()
	out := make([]*Feed, 0, len(r.feeds))
	for _, f := range r.feeds {
		out = append(out, f)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered feeds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.feeds)
}
