package feeds

import (
	"fmt"
	"sync"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// Scheduler counts down each feed's remaining interval on every global
// tick and reports which feeds are due.
type Scheduler struct {
	mu     sync.RWMutex
	global time.Duration
}

// NewScheduler creates a scheduler with the global default interval.
func NewScheduler(global time.Duration) *Scheduler {
	return &Scheduler{global: global}
}

// GlobalInterval returns the interval used by feeds in global mode.
func (s *Scheduler) GlobalInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global
}

// SetGlobalInterval changes the global interval and restarts the countdown
// of every feed that uses it.
func (s *Scheduler) SetGlobalInterval(d time.Duration, feeds []*Feed) error {
	if d < time.Minute {
		return model.ErrInvalidInterval
	}
	s.mu.Lock()
	s.global = d
	s.mu.Unlock()
	for _, f := range feeds {
		f.mu.Lock()
		if f.record.AutoUpdateMode == model.AutoUpdateGlobal {
			f.remaining = d
		}
		f.mu.Unlock()
	}
	return nil
}

// SetAutoUpdate changes a feed's mode and own interval. The countdown
// restarts at the newly selected interval.
func (s *Scheduler) SetAutoUpdate(f *Feed, mode model.AutoUpdateMode, own time.Duration) error {
	if mode == model.AutoUpdateOwn && own < time.Minute {
		return model.ErrInvalidInterval
	}
	global := s.GlobalInterval()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record.AutoUpdateMode = mode
	if mode == model.AutoUpdateOwn {
		f.record.AutoUpdateInterval = own
	}
	f.remaining = f.intervalLocked(global)
	return nil
}

// Tick advances every feed by elapsed and returns the feeds that became
// due, in input order. Due feeds restart at their configured interval.
func (s *Scheduler) Tick(feeds []*Feed, elapsed time.Duration) []*Feed {
	global := s.GlobalInterval()
	var due []*Feed
	for _, f := range feeds {
		f.mu.Lock()
		if f.record.AutoUpdateMode != model.AutoUpdateDisabled {
			f.remaining -= elapsed
			if f.remaining <= 0 {
				due = append(due, f)
				f.remaining = f.intervalLocked(global)
			}
		}
		f.mu.Unlock()
	}
	return due
}

// Description explains the feed's auto-update settings to the user.
func (s *Scheduler) Description(f *Feed) string {
	st := f.Snapshot()
	minutes := int(st.Remaining.Round(time.Minute) / time.Minute)
	switch st.AutoUpdateMode {
	case model.AutoUpdateGlobal:
		return fmt.Sprintf("uses global settings (%s to next auto-update)", pluralMinutes(minutes))
	case model.AutoUpdateOwn:
		return fmt.Sprintf("uses specific settings (%s to next auto-update)", pluralMinutes(minutes))
	}
	return "does not use auto-update"
}

func pluralMinutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}
