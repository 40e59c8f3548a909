// Command vigil watches one page fragment for content changes and
// notifies the configured channels.
//
// Usage:
//
//	vigil -config vigil.yaml
//	URL_LINK=https://example.org CLASS_ELEMENT=.portlet vigil
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vigil/api"
	"github.com/hazyhaar/vigil/config"
	"github.com/hazyhaar/vigil/extract"
	"github.com/hazyhaar/vigil/fetch"
	"github.com/hazyhaar/vigil/monitor"
	"github.com/hazyhaar/vigil/notify"
	"github.com/hazyhaar/vigil/state"
)

func main() {
	configPath := flag.String("config", "", "path to vigil.yaml config file")
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
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("vigil: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	target := monitor.Target{URL: cfg.Target.URL, Selector: cfg.Target.Selector}

	store, err := state.Open(cfg.State.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.State.RetentionDays > 0 {
		if n, err := store.Cleanup(ctx, cfg.State.RetentionDays); err != nil {
			logger.Warn("vigil: state cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("vigil: state cleaned", "rows", n)
		}
	}

	fetcher, cleanup, err := buildFetcher(cfg.Fetch, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	channels, err := buildChannels(ctx, cfg.Notify.Channels)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		logger.Warn("vigil: no notification channels configured, events will only be logged")
	}

	dispatcherOpts := []notify.DispatcherOption{
		notify.WithLogger(logger),
		notify.WithMaxAttempts(cfg.Notify.MaxAttempts),
		notify.WithBackoff(cfg.Notify.BaseBackoff, cfg.Notify.MaxBackoff),
		notify.WithRecorder(store),
	}
	if cfg.Notify.RateLimit > 0 {
		dispatcherOpts = append(dispatcherOpts, notify.WithRateLimit(cfg.Notify.RateLimit))
	}
	dispatcher := notify.NewDispatcher(channels, dispatcherOpts...)

	detector := monitor.NewDetector(fetcher, extract.New(), store, logger)
	engine := monitor.NewEngine(monitor.Config{
		Target:             target,
		PollInterval:       cfg.Monitor.PollInterval,
		HeartbeatInterval:  cfg.Monitor.HeartbeatInterval,
		MaxChanges:         cfg.Monitor.MaxChanges,
		FailAlertThreshold: cfg.Monitor.FailAlertThreshold,
	}, detector, dispatcher,
		monitor.WithLogger(logger),
		monitor.WithHeartbeatRecorder(store),
	)

	logger.Info("vigil: starting",
		"url", target.URL, "selector", target.Selector,
		"poll_interval", cfg.Monitor.PollInterval,
		"heartbeat_interval", cfg.Monitor.HeartbeatInterval,
		"channels", len(channels))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// Engine exit, including the MaxChanges self-stop, ends the whole
		// process: the API server must not keep it alive.
		defer cancel()
		return engine.Run(gctx)
	})
	if cfg.API.Listen != "" {
		srv := api.NewServer(target, engine, store, logger)
		g.Go(func() error { return srv.Serve(gctx, cfg.API.Listen) })
	}
	return g.Wait()
}

// buildFetcher returns the configured fetcher and a cleanup hook (the
// browser fetcher owns a Chrome process).
func buildFetcher(cfg config.FetchConfig, logger *slog.Logger) (monitor.Fetcher, func(), error) {
	fc := fetch.Config{
		Timeout:      cfg.Timeout,
		MaxBytes:     cfg.MaxBytes,
		UserAgent:    cfg.UserAgent,
		AllowPrivate: cfg.AllowPrivate,
	}
	switch cfg.Mode {
	case "browser":
		b := fetch.NewBrowser(fc, logger)
		return b, func() { b.Close() }, nil
	case "http", "":
		return fetch.New(fc), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("vigil: unknown fetch mode %q", cfg.Mode)
	}
}

func buildChannels(ctx context.Context, configs []config.ChannelConfig) ([]notify.Channel, error) {
	var channels []notify.Channel
	for _, cc := range configs {
		kinds := make([]notify.Kind, 0, len(cc.Kinds))
		for _, k := range cc.Kinds {
			kinds = append(kinds, notify.Kind(k))
		}

		switch cc.Type {
		case "sns":
			ch, err := notify.NewSNSChannel(ctx, notify.SNSConfig{
				Name:      cc.Name,
				TopicARN:  cc.TopicARN,
				Region:    cc.Region,
				AccessKey: cc.AccessKey,
				SecretKey: cc.SecretKey,
				Kinds:     kinds,
			})
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		case "email":
			ch, err := notify.NewEmailChannel(notify.EmailConfig{
				Name:     cc.Name,
				Host:     cc.Host,
				Port:     cc.Port,
				Username: cc.Username,
				Password: cc.Password,
				From:     cc.From,
				To:       cc.To,
				Kinds:    kinds,
			})
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		case "webhook":
			ch, err := notify.NewWebhookChannel(notify.WebhookConfig{
				Name:   cc.Name,
				URL:    cc.URL,
				Secret: cc.Secret,
				Kinds:  kinds,
			})
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		default:
			return nil, fmt.Errorf("vigil: unknown channel type %q", cc.Type)
		}
	}
	return channels, nil
}
