package ambient

import (
	"fmt"
	"sync"
	"time"

	"chronotask/internal/domain"
	"chronotask/internal/logging"
)

const (
	// DefaultCheckInterval is how often running tasks are inspected.
	DefaultCheckInterval = time.Minute
	// DefaultNotifyEvery is the block of running time between notifications.
	DefaultNotifyEvery = 30 * time.Minute
)

// Notification describes one long-running reminder.
type Notification struct {
	Key     domain.Key
	Title   string
	Body    string
	Elapsed time.Duration
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) error {
	return f(n)
}

// LongRunningNotifier reminds the user once per completed block of
// displayed time on each running task.
type LongRunningNotifier struct {
	sink    Notifier
	every   time.Duration
	enabled bool
	logger  *logging.Logger
	ticker  *gatedTicker

	mu       sync.Mutex
	notified map[domain.Key]int64
}

// NotifierOptions tunes a LongRunningNotifier. Zero durations use the defaults.
type NotifierOptions struct {
	Enabled       bool
	CheckInterval time.Duration
	NotifyEvery   time.Duration
	Logger        *logging.Logger
}

// NewLongRunningNotifier creates a notifier delivering to sink.
func NewLongRunningNotifier(src Source, sink Notifier, opts NotifierOptions) *LongRunningNotifier {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.NotifyEvery <= 0 {
		opts.NotifyEvery = DefaultNotifyEvery
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	n := &LongRunningNotifier{
		sink:     sink,
		every:    opts.NotifyEvery,
		enabled:  opts.Enabled,
		logger:   opts.Logger.WithComponent("notifier"),
		notified: make(map[domain.Key]int64),
	}
	n.ticker = newGatedTicker(src, opts.CheckInterval, func(tasks []domain.Task, now time.Time) {
		n.Check(tasks, now)
	})
	return n
}

// Start begins checking while tasks run. A disabled notifier never starts.
func (n *LongRunningNotifier) Start() {
	if !n.enabled {
		return
	}
	n.ticker.start()
}

// Close stops checking.
func (n *LongRunningNotifier) Close() {
	n.ticker.close()
}

// Check notifies for every running task that crossed a new block since the
// last notification and forgets tasks that are no longer running. It
// returns the number of notifications sent.
func (n *LongRunningNotifier) Check(tasks []domain.Task, now time.Time) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	sent := 0
	for _, t := range tasks {
		key := t.Key()
		if !t.IsRunning {
			delete(n.notified, key)
			continue
		}

		elapsed := domain.Elapsed(t, now)
		blocks := int64(elapsed / n.every)
		if blocks <= n.notified[key] {
			continue
		}

		note := Notification{
			Key:     key,
			Title:   fmt.Sprintf("Task %q has been running for %d minutes", t.Name, blocks*int64(n.every/time.Minute)),
			Body:    "Take a moment to check your progress!",
			Elapsed: elapsed,
		}
		if err := n.sink.Notify(note); err != nil {
			n.logger.WithError(err).Warnw("notification failed", "key", string(key))
			continue
		}
		n.notified[key] = blocks
		sent++
	}
	return sent
}
