package ambient

import (
	"context"
	"sync"
	"time"

	"chronotask/internal/domain"
	"chronotask/internal/engine"
)

// Source is the read side of the engine the observers need.
type Source interface {
	Subscribe(fn func(engine.Event)) (unsubscribe func())
	Tasks() []domain.Task
	HasRunningTasks() bool
	Now() time.Time
}

// gatedTicker calls tick every interval while the source has running
// tasks. It follows RunningChanged events and never writes to the source.
type gatedTicker struct {
	src      Source
	interval time.Duration
	tick     func(tasks []domain.Task, now time.Time)

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	closed      bool
}

func newGatedTicker(src Source, interval time.Duration, tick func([]domain.Task, time.Time)) *gatedTicker {
	return &gatedTicker{src: src, interval: interval, tick: tick}
}

// start subscribes and begins ticking if something already runs.
func (g *gatedTicker) start() {
	g.mu.Lock()
	if g.closed || g.unsubscribe != nil {
		g.mu.Unlock()
		return
	}
	g.unsubscribe = g.src.Subscribe(g.handle)
	g.mu.Unlock()

	g.set(g.src.HasRunningTasks())
}

func (g *gatedTicker) handle(ev engine.Event) {
	if ev.Type == engine.EventRunningChanged {
		g.set(ev.Running)
	}
}

func (g *gatedTicker) set(running bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	if !running {
		if g.cancel != nil {
			g.cancel()
			g.cancel = nil
		}
		return
	}
	if g.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.wg.Add(1)
	go g.loop(ctx)
}

func (g *gatedTicker) loop(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.tick(g.src.Tasks(), g.src.Now())
		case <-ctx.Done():
			return
		}
	}
}

// active reports whether the ticker loop is currently scheduled.
func (g *gatedTicker) active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancel != nil
}

// close unsubscribes and waits for the loop to exit.
func (g *gatedTicker) close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.mu.Unlock()

	g.wg.Wait()
}
