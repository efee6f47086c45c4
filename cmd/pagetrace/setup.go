package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/pagetrace/pkg/browser"
	"github.com/entrhq/pagetrace/pkg/browser/static"
	"github.com/entrhq/pagetrace/pkg/config"
	"github.com/entrhq/pagetrace/pkg/logging"
	"github.com/entrhq/pagetrace/pkg/session"
	"github.com/entrhq/pagetrace/pkg/snapshot"
)

const staticFetchTimeout = 30 * time.Second

// commonFlags are shared by every command that drives a browser.
type commonFlags struct {
	configPath  string
	browser     string
	metricsAddr string
	headed      bool
	jsonOutput  bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to configuration file (default ~/.pagetrace/config.json)")
	fs.StringVar(&c.browser, "browser", "chromium", "Browser provider: chromium or static")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	fs.BoolVar(&c.headed, "headed", false, "Show the browser window")
	fs.BoolVar(&c.jsonOutput, "json", false, "Print the report as JSON")
}

// env is the wiring a command needs: settings, a launcher, a logger and metrics.
type env struct {
	exec     config.ExecutionSettings
	browser  config.BrowserSettings
	launcher browser.Launcher
	log      *logging.Logger
	metrics  *session.Metrics
	closers  []func() error
}

func (c *commonFlags) setup(ctx context.Context, component string) (*env, error) {
	if err := config.Initialize(c.configPath); err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	if c.headed {
		config.GetBrowser().SetHeadless(false)
	}
	e := &env{
		exec:    config.GetExecution().Snapshot(),
		browser: config.GetBrowser().Snapshot(),
	}

	log, err := logging.NewLogger(component)
	if err != nil {
		// fallback logger already writes to stderr
		log.Warnf("file logging unavailable: %v", err)
	}
	e.log = log
	e.closers = append(e.closers, log.Close)

	switch c.browser {
	case "chromium", "playwright":
		pl := browser.NewPlaywrightLauncher()
		e.launcher = pl
		e.closers = append(e.closers, pl.Shutdown)
	case "static":
		e.launcher = static.NewLauncher().WithClient(&http.Client{Timeout: staticFetchTimeout})
	default:
		return nil, fmt.Errorf("unknown browser provider %q (want chromium or static)", c.browser)
	}

	reg := prometheus.NewRegistry()
	e.metrics = session.NewMetrics(reg)
	if c.metricsAddr != "" {
		stop, err := serveMetrics(ctx, c.metricsAddr, reg)
		if err != nil {
			e.close()
			return nil, err
		}
		e.log.Infof("serving metrics on %s", c.metricsAddr)
		e.closers = append(e.closers, stop)
	}
	return e, nil
}

// close runs closers in reverse order.
func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && e.log != nil {
			e.log.Warnf("shutdown: %v", err)
		}
	}
	e.closers = nil
}

// sessionOptions maps configuration onto session options.
func (e *env) sessionOptions() session.Options {
	return session.Options{
		Profile:           session.Profile(e.exec.Profile),
		MaxActionAttempts: e.exec.MaxActionAttempts,
		RetryBackoff:      e.exec.RetryBackoff,
		Screenshots:       e.exec.Screenshots,
		ScreenshotDir:     e.exec.ScreenshotDir,
		Annotate:          e.exec.Annotate,
		Launch: browser.LaunchOptions{
			Headless:    e.browser.Headless,
			Viewport:    snapshot.Viewport{Width: e.browser.ViewportWidth, Height: e.browser.ViewportHeight},
			Determinism: e.browser.Determinism,
			Timeout:     e.exec.ActionTimeout,
		},
		Logger:  e.log.With("session"),
		Metrics: e.metrics,
	}
}

// serveMetrics exposes reg over HTTP until the returned stop func is called.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) (func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Println(errorStyle.Render("metrics server: " + err.Error()))
		}
	}()
	return func() error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}, nil
}
