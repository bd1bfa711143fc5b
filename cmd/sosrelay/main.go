// CLAUDE:SUMMARY One-shot CLI: deliver a single alert through attach, launch and scheduled strategies and exit 0 on delivery.
// Command sosrelay delivers one alert and exits.
//
// Usage:
//
//	sosrelay [-config sosrelay.yaml] [-timeout 3m] [-journal alerts.db] [phone] [message]
//
// The phone falls back to PHONE_NUMBER, the message to ALERT_MESSAGE and
// then to a built-in test message. Exit status is 0 only when delivered.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sosrelay/config"
	"github.com/hazyhaar/sosrelay/delivery"
	"github.com/hazyhaar/sosrelay/driver"
	"github.com/hazyhaar/sosrelay/journal"
)

var errNoPhone = errors.New("no phone number: pass it as the first argument or set PHONE_NUMBER")

func main() {
	configPath := flag.String("config", "", "path to sosrelay.yaml config file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL or info)")
	timeout := flag.Duration("timeout", 0, "overall delivery deadline (default from config, 3m)")
	journalPath := flag.String("journal", "", "SQLite journal to record the result in (default JOURNAL_DB)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sosrelay:", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg, *logLevel, *timeout, *journalPath); err != nil {
		fmt.Fprintln(os.Stderr, "sosrelay:", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, logger, cfg, flag.Args(), os.Stdout, os.Stderr))
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	phone, message, err := resolveArgs(args, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "sosrelay:", err)
		return 1
	}
	req, err := delivery.NewRequest(phone, message)
	if err != nil {
		fmt.Fprintln(stderr, "sosrelay:", err)
		return 1
	}

	driver.Default.LocalPath = cfg.Launch.Bin
	driver.Default.Logger = logger
	chain := delivery.Build(cfg, delivery.Deps{}, delivery.WithLogger(logger))

	dctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	logger.Info("sosrelay: delivering", "request_id", req.ID, "strategies", strings.Join(chain.Strategies(), ","), "timeout", cfg.Timeout)

	res, err := chain.Deliver(dctx, req)
	if err != nil {
		fmt.Fprintln(stderr, "sosrelay:", err)
		return 1
	}
	record(logger, cfg.Journal, req, res)

	fmt.Fprintln(stdout, res.Summary())
	if !res.Delivered() {
		return 1
	}
	return 0
}

// applyFlags overlays command-line overrides on cfg and validates the result.
func applyFlags(cfg *config.Config, logLevel string, timeout time.Duration, journalPath string) error {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if journalPath != "" {
		cfg.Journal = journalPath
	}
	return cfg.Validate()
}

// resolveArgs picks the phone and message from positional args, falling
// back to the configuration.
func resolveArgs(args []string, cfg *config.Config) (phone, message string, err error) {
	phone, message = cfg.Phone, cfg.Message
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		phone = args[0]
	}
	if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
		message = strings.Join(args[1:], " ")
	}
	if strings.TrimSpace(phone) == "" {
		return "", "", errNoPhone
	}
	if strings.TrimSpace(message) == "" {
		message = config.DefaultMessage
	}
	return phone, message, nil
}

func record(logger *slog.Logger, path string, req delivery.Request, res delivery.Result) {
	if path == "" {
		return
	}
	store, err := journal.Open(path)
	if err != nil {
		logger.Warn("sosrelay: journal unavailable", "path", path, "error", err)
		return
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Record(ctx, req, res); err != nil {
		logger.Warn("sosrelay: journal record", "error", err)
	}
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
