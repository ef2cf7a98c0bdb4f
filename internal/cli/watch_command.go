package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chronotask/internal/ambient"
	"chronotask/internal/domain"
)

// WatchCommand keeps the running timers on screen until the context ends
type WatchCommand struct {
	app *App
	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string
	// Duration stops watching after the given time; zero watches until interrupted.
	Duration time.Duration
}

// NewWatchCommand creates a new watch command handler
func NewWatchCommand(app *App) *WatchCommand {
	return &WatchCommand{app: app}
}

// Execute runs the watch command
func (c *WatchCommand) Execute(ctx context.Context, args []string) error {
	if err := c.app.load(ctx); err != nil {
		return c.app.errors.Handle("watch tasks", err)
	}

	if c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	if c.MetricsAddr != "" {
		stop, err := c.serveMetrics(c.MetricsAddr)
		if err != nil {
			return c.app.errors.Handle("serve metrics", err)
		}
		defer stop()
	}

	cfg := c.app.config.Ambient
	title := cfg.DefaultTitle
	render := func(tasks []domain.Task, now time.Time) {
		next := ambient.Title(tasks, now, cfg.DefaultTitle)
		if next != title {
			fmt.Fprintf(c.app.out, "%s\n", next)
			title = next
		}
	}
	render(c.app.engine.Tasks(), c.app.engine.Now())

	refresher := ambient.NewRefresher(c.app.engine, cfg.RefreshInterval, render, c.app.logger)
	refresher.Start()
	defer refresher.Close()

	notifier := ambient.NewLongRunningNotifier(c.app.engine, c.app.notifier, ambient.NotifierOptions{
		Enabled:       cfg.NotificationsEnabled,
		CheckInterval: cfg.NotifyCheckInterval,
		NotifyEvery:   cfg.NotifyEvery,
		Logger:        c.app.logger,
	})
	notifier.Start()
	defer notifier.Close()

	<-ctx.Done()
	return nil
}

// serveMetrics starts the metrics listener and returns its shutdown function.
func (c *WatchCommand) serveMetrics(addr string) (func(), error) {
	if c.app.gatherer == nil {
		return nil, fmt.Errorf("metrics are not enabled")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.app.gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.app.logger.WithError(err).Warnw("metrics server stopped")
		}
	}()
	c.app.logger.Infow("serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
