package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/strata/internal/config"
	"github.com/rzbill/strata/internal/runtime"
	grpcserver "github.com/rzbill/strata/internal/server/grpc"
	httpserver "github.com/rzbill/strata/internal/server/http"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// Options are command-line overrides applied on top of the loaded config.
// Empty values leave the config untouched.
type Options struct {
	ConfigPath    string
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         string
	FsyncInterval time.Duration
	LogLevel      string
	LogFormat     string
	// Config, when set, is used instead of loading ConfigPath.
	Config *cfgpkg.Config
}

// Resolve loads the config and applies opts over it. The data directory is
// expanded and created.
func Resolve(opts Options) (cfgpkg.Config, error) {
	var cfg cfgpkg.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := cfgpkg.Load(opts.ConfigPath)
		if err != nil {
			return cfgpkg.Config{}, err
		}
		cfg = loaded
	}
	if opts.DataDir != "" {
		cfg.Storage.DataDir = opts.DataDir
	}
	if opts.GRPCAddr != "" {
		cfg.Server.GRPCAddr = opts.GRPCAddr
	}
	if opts.HTTPAddr != "" {
		cfg.Server.HTTPAddr = opts.HTTPAddr
	}
	if opts.Fsync != "" {
		cfg.Storage.Fsync = opts.Fsync
	}
	if opts.FsyncInterval > 0 {
		cfg.Storage.FsyncInterval = opts.FsyncInterval
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, err
	}
	dir, err := cfgpkg.ResolveDataDir(cfg.Storage.DataDir)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfg.Storage.DataDir = dir
	return cfg, nil
}

// Run starts gRPC and HTTP servers and blocks until ctx is cancelled or a
// server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := Resolve(opts)
	if err != nil {
		return err
	}
	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	// Redirect stdlib logs to our logger
	logpkg.RedirectStdLog(procLogger)

	storeCfg := cfg
	storeCfg.Storage.DataDir = filepath.Join(cfg.Storage.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{Config: storeCfg, Logger: procLogger})
	if err != nil {
		return fmt.Errorf("open runtime: %w", err)
	}
	defer rt.Close()

	procLogger.Info("Starting strata server",
		logpkg.Str("grpc", cfg.Server.GRPCAddr),
		logpkg.Str("http", cfg.Server.HTTPAddr),
		logpkg.Str("data_dir", cfg.Storage.DataDir),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
		logpkg.Duration("half_open_window", cfg.Controller.HalfOpenWindow),
	)

	gsrv := grpcserver.New(rt, procLogger)
	hsrv := httpserver.New(rt, procLogger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		if err := gsrv.ListenAndServe(gctx, cfg.Server.GRPCAddr); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := hsrv.ListenAndServe(gctx, cfg.Server.HTTPAddr); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	err = g.Wait()
	procLogger.Info("strata server stopped")
	return err
}
