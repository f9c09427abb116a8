package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vidqueue/internal/api"
	"vidqueue/internal/config"
	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/queue"
	"vidqueue/internal/storage"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// runtime bundles the stores a one-shot command works against. The daemon
// shares the same job database and queue transport, so changes made here are
// visible to running workers.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	jobs      *jobs.Store
	transport queue.Transport
	storage   storage.Gateway
	service   *api.Service
}

func (r *runtime) Close() error {
	var errs []error
	if r.transport != nil {
		errs = append(errs, r.transport.Close())
	}
	if r.jobs != nil {
		errs = append(errs, r.jobs.Close())
	}
	return errors.Join(errs...)
}

func (c *commandContext) openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.jobs, err = jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	rt.transport, err = queue.Open(ctx, cfg)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}
	rt.storage, err = storage.Open(ctx, cfg)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	rt.service = api.NewService(cfg, rt.jobs, rt.storage, rt.transport, logger)
	return rt, nil
}

func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(*runtime) error) error {
	rt, err := c.openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// cliLogger sends command logs to the shared log file only so terminal
// output stays readable.
func cliLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{cfg.LogPath()},
	})
	if err != nil {
		return nil, err
	}
	return logging.NewComponentLogger(logger, "cli"), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
