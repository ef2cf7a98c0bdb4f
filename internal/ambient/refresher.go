package ambient

import (
	"time"

	"chronotask/internal/domain"
	"chronotask/internal/logging"
)

// DefaultRefreshInterval is how often displayed elapsed time is redrawn.
const DefaultRefreshInterval = time.Second

// RenderFunc draws the current tasks at the given instant.
type RenderFunc func(tasks []domain.Task, now time.Time)

// Refresher redraws elapsed time once per interval while any task runs.
type Refresher struct {
	ticker *gatedTicker
	logger *logging.Logger
}

// NewRefresher creates a Refresher. A non-positive interval uses DefaultRefreshInterval.
func NewRefresher(src Source, interval time.Duration, render RenderFunc, logger *logging.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Refresher{
		ticker: newGatedTicker(src, interval, render),
		logger: logger.WithComponent("refresher"),
	}
}

// Start begins following the source's running signal.
func (r *Refresher) Start() {
	r.logger.Debugw("refresher started", "interval", r.ticker.interval)
	r.ticker.start()
}

// Active reports whether the refresher is currently ticking.
func (r *Refresher) Active() bool {
	return r.ticker.active()
}

// Close stops ticking and detaches from the source.
func (r *Refresher) Close() {
	r.ticker.close()
	r.logger.Debugw("refresher stopped")
}

// Title formats a window title for the first running task, or returns
// defaultTitle when nothing runs.
func Title(tasks []domain.Task, now time.Time, defaultTitle string) string {
	for _, t := range tasks {
		if t.IsRunning {
			return domain.FormatClock(domain.Elapsed(t, now)) + " - " + t.Name
		}
	}
	return defaultTitle
}
