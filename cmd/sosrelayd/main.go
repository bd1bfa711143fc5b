// CLAUDE:SUMMARY Relay daemon: HTTP alert queue, SOS endpoint, SQLite journal, Prometheus metrics and optional MCP over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sosrelay/config"
	"github.com/hazyhaar/sosrelay/delivery"
	"github.com/hazyhaar/sosrelay/driver"
	"github.com/hazyhaar/sosrelay/journal"
	"github.com/hazyhaar/sosrelay/metrics"
	"github.com/hazyhaar/sosrelay/relay"
	"github.com/hazyhaar/sosrelay/severity"
	"github.com/hazyhaar/sosrelay/shield"
)

const defaultJournal = "sosrelay.db"

func main() {
	configPath := flag.String("config", "", "path to sosrelay.yaml config file")
	addr := flag.String("addr", "", "listen address (default from HTTP_ADDR or :8095)")
	mcpStdio := flag.Bool("mcp-stdio", false, "also serve the MCP tools on stdin/stdout")
	hashToken := flag.String("hash-token", "", "print the bcrypt hash of the given token and exit")
	flag.Parse()

	if *hashToken != "" {
		h, err := shield.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, "sosrelayd:", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sosrelayd:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	// Stdout belongs to the MCP transport when enabled.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg, *mcpStdio); err != nil {
		logger.Error("sosrelayd: exit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, mcpStdio bool) error {
	if cfg.HTTP.TokenHash == "" {
		logger.Warn("sosrelayd: API_TOKEN_HASH not set, /v1 is unauthenticated")
	}
	if cfg.Journal == "" {
		cfg.Journal = defaultJournal
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := metrics.NewPrometheusSink(reg)

	driver.Default.LocalPath = cfg.Launch.Bin
	driver.Default.Logger = logger
	chain := delivery.Build(cfg, delivery.Deps{}, delivery.WithLogger(logger), delivery.WithSink(sink))

	opts := []relay.Option{
		relay.WithJournal(store),
		relay.WithSink(sink),
		relay.WithLogger(logger),
		relay.WithQueueSize(cfg.HTTP.QueueSize),
		relay.WithTimeout(cfg.Timeout),
		relay.WithSignature(cfg.SOS.Signature),
	}
	if cfg.Severity.URL != "" {
		opts = append(opts, relay.WithClassifier(severity.NewClient(cfg.Severity.URL,
			severity.WithTimeout(cfg.Severity.Timeout), severity.WithLogger(logger))))
	}
	svc := relay.New(chain, opts...)

	r := chi.NewRouter()
	for _, mw := range shield.APIStack() {
		r.Use(mw)
	}
	r.Use(shield.NewRateLimiter(60, time.Minute).Middleware)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	svc.Routes(r, cfg.HTTP.TokenHash)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error {
		logger.Info("sosrelayd: listening", "addr", cfg.HTTP.Addr, "strategies", chain.Strategies())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if mcpStdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "sosrelay", Version: "1.0.0"}, nil)
		svc.RegisterMCP(mcpSrv)
		g.Go(func() error {
			err := mcpSrv.Run(gctx, &mcp.StdioTransport{})
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("sosrelayd: stopped")
	return err
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
