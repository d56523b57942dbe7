// Command domrelay watches a live page and prints every dispatched node
// as a JSON line. It is the daemon shell around the domrelay library:
// Chrome via CDP as the primary change source, embedded-frame monitors,
// reconciliation rescans, and an HTTP introspection surface.
//
// Usage:
//
//	domrelay -url https://example.com              # watch a single URL
//	domrelay -url https://example.com -config domrelay.yaml
//	domrelay -url https://example.com -listen :9137
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/domrelay"
	"github.com/hazyhaar/domrelay/cdp"
	"github.com/hazyhaar/domrelay/internal/browser"
	"github.com/hazyhaar/domrelay/tree"
)

func main() {
	pageURL := flag.String("url", "", "URL to watch")
	remote := flag.String("remote", "", "WebSocket URL of an external Chrome (empty launches one)")
	configPath := flag.String("config", "", "path to domrelay.yaml")
	listen := flag.String("listen", "", "address for /metrics and /status (empty disables)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *pageURL, *remote, *configPath, *listen); err != nil {
		logger.Error("domrelay: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, pageURL, remote, configPath, listen string) error {
	if pageURL == "" {
		fmt.Fprintln(os.Stderr, "usage: domrelay -url <url> [-config <file>] [-listen <addr>]")
		os.Exit(1)
	}

	cfg := domrelay.DefaultConfig()
	if configPath != "" {
		loaded, err := domrelay.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	mgr := browser.NewManager(browser.Config{RemoteURL: remote, Logger: logger})
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	page, err := mgr.OpenPage(ctx, pageURL)
	if err != nil {
		return err
	}

	mirror := cdp.NewTree(page)
	primary := cdp.NewSource(cdp.SourceConfig{
		Tree:      mirror,
		Intercept: true,
		Logger:    logger,
	})

	reg := prometheus.NewRegistry()
	relay, err := domrelay.New(mirror, primary, cfg,
		domrelay.WithLogger(logger),
		domrelay.WithRegionFactory(cdp.NewFactory(page, logger)),
		domrelay.WithPrometheus(reg),
	)
	if err != nil {
		return err
	}
	defer relay.Destroy()

	if err := relay.Start(ctx); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	_, err = relay.Register(domrelay.Registration{
		Selector: "*",
		Priority: domrelay.PriorityImmediate,
		Handler: func(_ context.Context, n tree.Node) error {
			return enc.Encode(map[string]any{
				"node": int64(n.ID()),
				"tag":  n.Tag(),
			})
		},
	})
	if err != nil {
		return fmt.Errorf("register stdout watcher: %w", err)
	}

	if listen != "" {
		go serveHTTP(ctx, logger, listen, reg, relay)
	}

	logger.Info("domrelay: watching", "url", pageURL)
	<-ctx.Done()
	return nil
}

func serveHTTP(ctx context.Context, logger *slog.Logger, addr string, reg *prometheus.Registry, relay *domrelay.Relay) {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(relay.Metrics())
	})

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.Info("domrelay: introspection listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("domrelay: http server", "error", err)
	}
}
