package presence

import (
	"log/slog"
	"sync"
	"time"
)

// Janitor periodically calls Tracker.CleanupInactiveSessions so that playlists
// nobody is querying do not keep stale buckets around.
type Janitor struct {
	tracker  *Tracker
	interval time.Duration
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewJanitor returns a stopped janitor. An interval of zero or less uses half
// the tracker's timeout.
func NewJanitor(tracker *Tracker, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = tracker.Timeout() / 2
	}
	return &Janitor{
		tracker:  tracker,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Subsequent calls are no-ops.
func (j *Janitor) Start() {
	j.startOnce.Do(func() {
		j.logger.Info("starting presence janitor", slog.Duration("interval", j.interval))
		j.wg.Add(1)
		go j.run()
	})
}

// Stop ends the loop and waits for an in-progress sweep to finish.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		j.logger.Info("presence janitor stopped")
	})
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			if n := j.tracker.CleanupInactiveSessions(); n > 0 {
				j.logger.Debug("evicted inactive presence entries", slog.Int("count", n))
			}
		}
	}
}
