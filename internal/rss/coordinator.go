package rss

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/feedkeeper/internal/database"
	"github.com/bryan-buckman/feedkeeper/internal/feeds"
	"github.com/bryan-buckman/feedkeeper/internal/merge"
	"github.com/bryan-buckman/feedkeeper/internal/model"
	"github.com/bryan-buckman/feedkeeper/internal/parser"
	"github.com/bryan-buckman/feedkeeper/internal/textnorm"
)

// Concurrency settings
const (
	// MaxConcurrencyPostgres is the number of parallel pipelines for PostgreSQL
	MaxConcurrencyPostgres = 10
	// MaxConcurrencySQLite is the number of parallel pipelines for SQLite.
	// Fetches overlap; merges queue on the single connection.
	MaxConcurrencySQLite = 4
	// DefaultTickPeriod is how often the scheduler counts down.
	DefaultTickPeriod = time.Minute
)

// Env carries everything a pipeline run needs. It is passed explicitly
// instead of being reached through globals.
type Env struct {
	Store     database.Store
	Registry  *feeds.Registry
	Tracker   *feeds.Tracker
	Scheduler *feeds.Scheduler
	Merger    *merge.Engine
	Source    Source
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Options tunes the coordinator.
type Options struct {
	// Workers bounds the number of concurrent pipelines. Zero picks a
	// default based on the store.
	Workers int
	// TickPeriod is the scheduler tick. Zero means DefaultTickPeriod.
	TickPeriod time.Duration
	// OnOutcome, when set, is called on the coordinating goroutine after
	// every run. It must not block.
	OnOutcome func(Outcome)
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	RunID     string          `json:"run_id"`
	FeedID    int64           `json:"feed_id"`
	Messages  []model.Message `json:"messages,omitempty"`
	Updated   int             `json:"updated"`
	Status    model.Status    `json:"status"`
	ErrorKind model.ErrorKind `json:"error_kind"`
	Detail    string          `json:"detail,omitempty"`
	// Discarded is set when the feed was removed during the run.
	Discarded bool `json:"discarded,omitempty"`
}

type job struct {
	runID string
	feed  *feeds.Feed
}

type triggerRequest struct {
	feedID int64
	reply  chan (<-chan Outcome)
}

// Coordinator guarantees at most one pipeline per feed. Dispatch, the
// in-flight set and scheduler ticks all live on one goroutine; pipelines
// run on a bounded worker pool and report back over a channel.
type Coordinator struct {
	env    Env
	opts   Options
	logger *slog.Logger

	triggers chan triggerRequest
	jobs     chan job
	results  chan Outcome
	queries  chan chan int

	// owned by the loop goroutine
	inFlight map[int64]chan Outcome

	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator. Call Start to run it.
func NewCoordinator(env Env, opts Options) *Coordinator {
	if env.Clock == nil {
		env.Clock = time.Now
	}
	if opts.Workers <= 0 {
		opts.Workers = MaxConcurrencySQLite
		if env.Store != nil && env.Store.SupportsHighConcurrency() {
			opts.Workers = MaxConcurrencyPostgres
		}
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}
	return &Coordinator{
		env:      env,
		opts:     opts,
		logger:   env.Logger.With("component", "coordinator"),
		triggers: make(chan triggerRequest),
		jobs:     make(chan job),
		results:  make(chan Outcome),
		queries:  make(chan chan int),
		inFlight: make(map[int64]chan Outcome),
		stopChan: make(chan struct{}),
	}
}

// Start launches the coordinating loop and the workers.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting feed coordinator", "workers", c.opts.Workers, "tick", c.opts.TickPeriod)
	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop cancels running pipelines and waits for every goroutine to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("Feed coordinator stopped")
}

// Trigger asks for a run of the feed. It returns false, and no channel,
// when the feed is unknown or already in flight. The channel receives
// exactly one outcome.
func (c *Coordinator) Trigger(ctx context.Context, feedID int64) (<-chan Outcome, bool) {
	req := triggerRequest{feedID: feedID, reply: make(chan (<-chan Outcome), 1)}
	select {
	case c.triggers <- req:
	case <-c.stopChan:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
	ch := <-req.reply
	return ch, ch != nil
}

// InFlight returns the number of feeds with a pipeline in progress.
func (c *Coordinator) InFlight() int {
	reply := make(chan int, 1)
	select {
	case c.queries <- reply:
		return <-reply
	case <-c.stopChan:
		return 0
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.stopChan)

	ticker := time.NewTicker(c.opts.TickPeriod)
	defer ticker.Stop()

	var queue []job
	for {
		var jobs chan job
		var next job
		if len(queue) > 0 {
			jobs, next = c.jobs, queue[0]
		}

		select {
		case <-ctx.Done():
			return
		case jobs <- next:
			queue = queue[1:]
		case req := <-c.triggers:
			j, ch := c.dispatch(req.feedID)
			if ch != nil {
				queue = append(queue, j)
			}
			req.reply <- ch
		case out := <-c.results:
			c.finish(out)
		case <-ticker.C:
			for _, f := range c.env.Scheduler.Tick(c.env.Registry.All(), c.opts.TickPeriod) {
				if j, ch := c.dispatch(f.ID()); ch != nil {
					queue = append(queue, j)
				}
			}
		case reply := <-c.queries:
			reply <- len(c.inFlight)
		}
	}
}

// dispatch marks a feed in flight. It returns a nil channel when the feed
// is unknown or already running.
func (c *Coordinator) dispatch(feedID int64) (job, chan Outcome) {
	if _, busy := c.inFlight[feedID]; busy {
		c.logger.Debug("Feed already in flight", "feed_id", feedID)
		return job{}, nil
	}
	f, ok := c.env.Registry.Get(feedID)
	if !ok {
		return job{}, nil
	}
	done := make(chan Outcome, 1)
	c.inFlight[feedID] = done
	return job{runID: uuid.NewString(), feed: f}, done
}

func (c *Coordinator) finish(out Outcome) {
	if done, ok := c.inFlight[out.FeedID]; ok {
		done <- out
		delete(c.inFlight, out.FeedID)
	}
	if c.opts.OnOutcome != nil {
		c.opts.OnOutcome(out)
	}
}

func (c *Coordinator) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.jobs:
			out := c.run(ctx, j)
			select {
			case c.results <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

// run executes fetch, parse, normalize, merge and status update for one
// feed. It never returns an error; failures become the outcome's kind.
func (c *Coordinator) run(ctx context.Context, j job) Outcome {
	rec := j.feed.Record()
	logger := c.logger.With("feed_id", rec.ID, "run_id", j.runID)
	started := c.env.Clock()
	out := Outcome{RunID: j.runID, FeedID: rec.ID}

	raw, err := c.env.Source.Fetch(ctx, rec.URL)
	if err != nil {
		return c.fail(ctx, j, out, model.ErrorNetwork, err, started)
	}

	format, err := parser.ParseFormat(rec.Format)
	if err != nil {
		return c.fail(ctx, j, out, model.ErrorParsing, err, started)
	}
	drafts, err := parser.Parse(raw, format, started)
	if err != nil {
		return c.fail(ctx, j, out, model.ErrorParsing, err, started)
	}
	drafts = textnorm.Drafts(drafts)

	if !c.stillExists(ctx, rec.ID) {
		logger.Info("Feed removed during fetch, discarding result")
		out.Discarded = true
		return out
	}

	res, err := c.env.Merger.Merge(ctx, rec.ID, rec.AccountID, drafts)
	if errors.Is(err, model.ErrFeedNotFound) {
		logger.Info("Feed removed before merge, discarding result")
		out.Discarded = true
		return out
	}
	if err != nil {
		return c.fail(ctx, j, out, model.ErrorOther, err, started)
	}
	if err := c.env.Tracker.ApplyMerge(ctx, j.feed, res.UpdatedCount(), started); err != nil {
		logger.Warn("Failed to update feed status", "error", err)
	}
	c.adoptTitle(ctx, j.feed, raw, logger)

	out.Messages = make([]model.Message, 0, len(drafts))
	for _, d := range drafts {
		out.Messages = append(out.Messages, model.FromDraft(d, rec.ID, rec.AccountID))
	}
	out.Updated = res.UpdatedCount()
	out.Status = j.feed.Status()
	logger.Info("Feed updated", "drafts", len(drafts), "inserted", res.Inserted, "modified", res.Modified,
		"elapsed", c.env.Clock().Sub(started).Round(time.Millisecond))
	return out
}

func (c *Coordinator) stillExists(ctx context.Context, feedID int64) bool {
	if _, ok := c.env.Registry.Get(feedID); !ok {
		return false
	}
	exists, err := c.env.Store.FeedExists(ctx, feedID)
	return err == nil && exists
}

func (c *Coordinator) fail(ctx context.Context, j job, out Outcome, kind model.ErrorKind, err error, at time.Time) Outcome {
	out.ErrorKind = kind
	out.Detail = err.Error()
	if _, ok := c.env.Registry.Get(out.FeedID); !ok {
		out.Discarded = true
		return out
	}
	if ferr := c.env.Tracker.ApplyFailure(ctx, j.feed, kind, out.Detail, at); ferr != nil && !errors.Is(ferr, model.ErrFeedNotFound) {
		c.logger.Warn("Failed to record feed error", "feed_id", out.FeedID, "error", ferr)
	}
	out.Status = j.feed.Status()
	return out
}

// adoptTitle replaces a placeholder title (the feed URL) with the title
// the feed announces.
func (c *Coordinator) adoptTitle(ctx context.Context, f *feeds.Feed, raw []byte, logger *slog.Logger) {
	rec := f.Record()
	if rec.Title != "" && rec.Title != rec.URL {
		return
	}
	info, err := parser.Probe(raw)
	if err != nil || info.Title == "" {
		return
	}
	if err := c.env.Store.UpdateFeedTitle(ctx, rec.ID, info.Title); err != nil {
		logger.Warn("Error updating feed title", "error", err)
		return
	}
	f.SetTitle(info.Title)
	logger.Info("Updated feed title", "url", rec.URL, "title", info.Title)
}
