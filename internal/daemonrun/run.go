package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vidqueue/internal/api"
	"vidqueue/internal/config"
	"vidqueue/internal/daemon"
	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/media/ffmpeg"
	"vidqueue/internal/notifications"
	"vidqueue/internal/pipeline"
	"vidqueue/internal/queue"
	"vidqueue/internal/storage"
	"vidqueue/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vidqueue daemon and blocks until SIGINT or SIGTERM, then
// drains in-flight jobs before returning.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "vidqueue.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	transport, err := queue.Open(signalCtx, cfg)
	if err != nil {
		logger.Error("open queue transport", logging.Error(err))
		return err
	}
	defer transport.Close()

	gateway, err := storage.Open(signalCtx, cfg)
	if err != nil {
		logger.Error("open storage gateway", logging.Error(err))
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	toolkit := ffmpeg.New(cfg.Media, logger)
	executor := pipeline.NewExecutor(cfg, gateway, toolkit, logger)
	notifier := notifications.NewService(cfg)
	logger.Info("notifications configured", logging.Bool("enabled", notifications.Enabled(notifier)))
	manager := workflow.NewManager(cfg, transport, store, executor, logger,
		workflow.WithMetrics(workflow.NewMetrics(registry)),
		workflow.WithNotifier(notifier))

	d, err := daemon.New(cfg, daemon.Components{
		Jobs:      store,
		Transport: transport,
		Storage:   gateway,
		Workflow:  manager,
		Service:   api.NewService(cfg, store, gateway, transport, logger),
		Gatherer:  registry,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("vidqueue daemon shutting down")
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
