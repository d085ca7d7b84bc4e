package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/rzbill/strata/internal/breaker"
	"github.com/rzbill/strata/internal/catalog"
	cfgpkg "github.com/rzbill/strata/internal/config"
	"github.com/rzbill/strata/internal/controller"
	pebblestore "github.com/rzbill/strata/internal/storage/pebble"
	"github.com/rzbill/strata/internal/stream"
	"github.com/rzbill/strata/internal/streamstore"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	// DataDir overrides Config.Storage.DataDir when set.
	DataDir string
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	// Clock drives the breaker and timestamps. Nil uses the wall clock.
	Clock clock.Clock
}

// Runtime wires storage, the creation gate and the catalog for a
// single-node instance, and hands out lazily created stream handles.
type Runtime struct {
	db      *pebblestore.DB
	stats   *pebblestore.Stats
	store   *streamstore.Store
	breaker *breaker.OverloadCircuitBreaker
	gate    *controller.Gate
	catalog *catalog.Catalog
	config  cfgpkg.Config
	logger  logpkg.Logger

	opening singleflight.Group
	mu      sync.Mutex
	streams map[string]*stream.LazyStream
}

// Open initializes storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if opts.DataDir != "" {
		cfg.Storage.DataDir = opts.DataDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.Storage.Fsync)
	if err != nil {
		return nil, err
	}

	stats := &pebblestore.Stats{}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.Storage.DataDir,
		Fsync:         fsync,
		FsyncInterval: cfg.Storage.FsyncInterval,
		Metrics:       stats,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	store, err := streamstore.New(db, streamstore.Options{Logger: logger, Clock: clk, TrimBatchLimit: cfg.Storage.TrimBatchLimit})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cat, err := catalog.New(db, catalog.Options{NameRegex: cfg.Streams.NameRegex, Clock: clk, Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	br := breaker.New(clk, breaker.WithWindow(cfg.Controller.HalfOpenWindow))
	gate := controller.NewGate(store, br, controller.Options{
		MaxInflight:  cfg.Controller.MaxInflight,
		LowWatermark: cfg.Controller.LowWatermark,
		ThrottleTime: cfg.Controller.ThrottleTime,
		Logger:       logger,
	})

	logger.Info("runtime opened",
		logpkg.Str("data_dir", cfg.Storage.DataDir),
		logpkg.Str("fsync", fsync.String()),
		logpkg.Duration("half_open_window", br.Window()),
	)
	return &Runtime{
		db:      db,
		stats:   stats,
		store:   store,
		breaker: br,
		gate:    gate,
		catalog: cat,
		config:  cfg,
		logger:  logger.With(logpkg.Component("runtime")),
		streams: make(map[string]*stream.LazyStream),
	}, nil
}

// Close closes every open stream handle and then storage.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	r.mu.Lock()
	handles := r.streams
	r.streams = make(map[string]*stream.LazyStream)
	r.mu.Unlock()

	var errs []error
	for name, s := range handles {
		if _, err := s.Close().Get(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	errs = append(errs, r.db.Close())
	return errors.Join(errs...)
}

// CheckHealth verifies storage is readable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Stream returns the handle for name, building it on first use. If the
// catalog already knows the stream id the stream is opened; otherwise the
// handle is deferred and creates the stream on first append, recording the
// new id in the catalog.
func (r *Runtime) Stream(ctx context.Context, name string) (*stream.LazyStream, error) {
	r.mu.Lock()
	s, ok := r.streams[name]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	v, err, _ := r.opening.Do(name, func() (interface{}, error) {
		r.mu.Lock()
		s, ok := r.streams[name]
		r.mu.Unlock()
		if ok {
			return s, nil
		}
		s, err := r.openStream(ctx, name)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.streams[name] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*stream.LazyStream), nil
}

func (r *Runtime) openStream(ctx context.Context, name string) (*stream.LazyStream, error) {
	sc := r.config.Streams
	entry, err := r.catalog.Ensure(name, sc.Epoch)
	if err != nil {
		return nil, err
	}
	epoch := entry.Epoch
	if sc.Epoch > epoch {
		epoch = sc.Epoch
	}
	tags := make(map[string]string, len(sc.DefaultTags)+1)
	for k, v := range sc.DefaultTags {
		tags[k] = v
	}
	tags["name"] = name

	s, err := stream.OpenLazy(ctx, r.gate, entry.StreamID, stream.LazyOptions{
		Name:         name,
		ReplicaCount: sc.ReplicaCount,
		Epoch:        epoch,
		Tags:         tags,
		SnapshotRead: sc.SnapshotRead,
		Logger:       r.logger,
	})
	if err != nil {
		return nil, err
	}
	if entry.StreamID == stream.InvalidStreamID {
		s.SetListener(r.catalog.ListenerFor(name, epoch))
	}
	return s, nil
}

// DestroyStream deletes the stream behind name and its catalog entry.
func (r *Runtime) DestroyStream(ctx context.Context, name string) error {
	if _, err := r.catalog.Lookup(name); err != nil {
		return err
	}
	s, err := r.Stream(ctx, name)
	if err != nil {
		return err
	}
	if _, err := s.Destroy().Get(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.streams, name)
	r.mu.Unlock()
	if err := r.catalog.Delete(name); err != nil {
		return err
	}
	r.logger.Info("stream destroyed", logpkg.Str("name", name), logpkg.Int64("stream_id", s.StreamID()))
	return nil
}

// Describe returns the catalog entry and, once created, the stored meta.
func (r *Runtime) Describe(name string) (catalog.Entry, *streamstore.Meta, error) {
	entry, err := r.catalog.Lookup(name)
	if err != nil {
		return catalog.Entry{}, nil, err
	}
	if entry.StreamID == stream.InvalidStreamID {
		return entry, nil, nil
	}
	m, err := r.store.Describe(entry.StreamID)
	if err != nil {
		return entry, nil, err
	}
	return entry, &m, nil
}

// Breaker returns the overload breaker guarding stream creation.
func (r *Runtime) Breaker() *breaker.OverloadCircuitBreaker { return r.breaker }

// Gate returns the creation gate.
func (r *Runtime) Gate() *controller.Gate { return r.gate }

// Catalog returns the name catalog.
func (r *Runtime) Catalog() *catalog.Catalog { return r.catalog }

// StorageStats returns storage counters.
func (r *Runtime) StorageStats() pebblestore.StatsSnapshot { return r.stats.Snapshot() }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
