package rss

import (
	"context"
)

// RefreshAll triggers every registered feed and waits for the outcomes.
// Feeds that are already in flight are skipped.
func (c *Coordinator) RefreshAll(ctx context.Context) (map[int64]Outcome, error) {
	all := c.env.Registry.All()
	c.logger.Info("Refreshing feeds", "count", len(all), "workers", c.opts.Workers)

	pending := make(map[int64]<-chan Outcome, len(all))
	for _, f := range all {
		if ch, ok := c.Trigger(ctx, f.ID()); ok {
			pending[f.ID()] = ch
		}
	}

	results := make(map[int64]Outcome, len(pending))
	for id, ch := range pending {
		select {
		case out := <-ch:
			results[id] = out
			// Progress logging every 50 feeds
			if len(results)%50 == 0 {
				c.logger.Info("Refresh progress", "done", len(results), "total", len(pending))
			}
		case <-ctx.Done():
			c.logger.Warn("Refresh cancelled", "done", len(results), "total", len(pending))
			return results, ctx.Err()
		}
	}

	updated := 0
	for _, out := range results {
		updated += out.Updated
	}
	c.logger.Info("Refresh finished", "feeds", len(results), "updated_messages", updated)
	return results, nil
}
