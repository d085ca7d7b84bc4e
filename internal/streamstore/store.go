package streamstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	pebblestore "github.com/rzbill/strata/internal/storage/pebble"
	"github.com/rzbill/strata/internal/stream"
	"github.com/rzbill/strata/pkg/future"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// Options configures a Store.
type Options struct {
	Logger logpkg.Logger
	Clock  clock.Clock
	// TrimBatchLimit bounds the number of deletes per commit during Trim.
	TrimBatchLimit int
	// TrimThrottle pauses between trim commits. Zero disables throttling.
	TrimThrottle time.Duration
}

// Store implements stream.Client on top of Pebble.
type Store struct {
	db     *pebblestore.DB
	logger logpkg.Logger
	clock  clock.Clock

	trimBatchLimit int
	trimThrottle   time.Duration

	idMu   sync.Mutex
	nextID int64

	mu      sync.Mutex
	streams map[int64]*state
}

// state is shared by every handle opened on the same stream id.
type state struct {
	mu        sync.Mutex
	meta      Meta
	destroyed bool
}

var _ stream.Client = (*Store)(nil)

// New returns a Store over db, loading the id counter.
func New(db *pebblestore.DB, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	if opts.TrimBatchLimit <= 0 {
		opts.TrimBatchLimit = 1024
	}
	s := &Store{
		db:             db,
		logger:         logger.With(logpkg.Component("streamstore")),
		clock:          clk,
		trimBatchLimit: opts.TrimBatchLimit,
		trimThrottle:   opts.TrimThrottle,
		streams:        make(map[int64]*state),
	}
	b, err := db.Get(counterKey)
	switch {
	case err == nil && len(b) == 8:
		s.nextID = int64(binary.BigEndian.Uint64(b))
	case err == nil:
		return nil, fmt.Errorf("streamstore: corrupt id counter (%d bytes)", len(b))
	case !pebblestore.IsNotFound(err):
		return nil, err
	}
	return s, nil
}

// CreateAndOpenStream allocates an id, persists the stream's meta with the
// requested epoch and returns a read-write handle.
func (s *Store) CreateAndOpenStream(opts stream.CreateOptions) *future.Future[stream.Stream] {
	return future.Go(func() (stream.Stream, error) {
		if opts.ReplicaCount < 1 {
			return nil, fmt.Errorf("replica count %d: %w", opts.ReplicaCount, stream.ErrInvalidArgument)
		}
		st, err := s.create(opts)
		if err != nil {
			return nil, stream.AsIOError("create", err)
		}
		s.logger.Debug("stream created", logpkg.Int64("stream_id", st.meta.StreamID), logpkg.Int64("epoch", opts.Epoch))
		return &handle{store: s, st: st, id: st.meta.StreamID, epoch: opts.Epoch, mode: stream.ModeReadWrite}, nil
	})
}

func (s *Store) create(opts stream.CreateOptions) (*state, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	id := s.nextID
	tags := make(map[string]string, len(opts.Tags))
	for k, v := range opts.Tags {
		tags[k] = v
	}
	m := Meta{
		StreamID:     id,
		Epoch:        opts.Epoch,
		ReplicaCount: opts.ReplicaCount,
		Tags:         tags,
		StartOffset:  stream.InitStartOffset,
		NextOffset:   stream.InitEndOffset,
		CreatedAtMs:  s.clock.Now().UnixMilli(),
	}
	mb, err := encodeMeta(m)
	if err != nil {
		return nil, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], uint64(id+1))
	if err := b.Set(counterKey, ctr[:], nil); err != nil {
		return nil, err
	}
	if err := b.Set(keyMeta(id), mb, nil); err != nil {
		return nil, err
	}
	if err := s.db.CommitBatch(context.Background(), b); err != nil {
		return nil, err
	}
	s.nextID = id + 1

	st := &state{meta: m}
	s.mu.Lock()
	s.streams[id] = st
	s.mu.Unlock()
	return st, nil
}

// OpenStream opens an existing stream. Unknown ids fail with
// stream.ErrStreamNotFound wrapped in *stream.IOError. A read-write open with
// an older epoch than the stored one fails with stream.ErrFenced; a newer
// epoch takes the stream over and is persisted.
func (s *Store) OpenStream(streamID int64, opts stream.OpenOptions) *future.Future[stream.Stream] {
	return future.Go(func() (stream.Stream, error) {
		st, err := s.load(streamID)
		if err != nil {
			return nil, err
		}
		h := &handle{store: s, st: st, id: streamID, epoch: opts.Epoch, mode: opts.Mode}
		if opts.Mode == stream.ModeSnapshotRead {
			return h, nil
		}

		st.mu.Lock()
		defer st.mu.Unlock()
		if st.destroyed {
			return nil, &stream.IOError{Op: "open", Err: stream.ErrStreamNotFound}
		}
		if opts.Epoch < st.meta.Epoch {
			return nil, fmt.Errorf("open stream %d at epoch %d, stored %d: %w", streamID, opts.Epoch, st.meta.Epoch, stream.ErrFenced)
		}
		if opts.Epoch > st.meta.Epoch {
			next := st.meta
			next.Epoch = opts.Epoch
			if err := s.putMeta(next); err != nil {
				return nil, stream.AsIOError("open", err)
			}
			s.logger.Info("stream epoch advanced",
				logpkg.Int64("stream_id", streamID),
				logpkg.Int64("from", st.meta.Epoch),
				logpkg.Int64("to", opts.Epoch),
			)
			st.meta = next
		}
		return h, nil
	})
}

func (s *Store) load(id int64) (*state, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[id]; ok {
		return st, nil
	}
	if id < 0 {
		return nil, &stream.IOError{Op: "open", Err: stream.ErrStreamNotFound}
	}
	b, err := s.db.Get(keyMeta(id))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return nil, &stream.IOError{Op: "open", Err: stream.ErrStreamNotFound}
		}
		return nil, stream.AsIOError("open", err)
	}
	m, err := decodeMeta(b)
	if err != nil {
		return nil, err
	}
	st := &state{meta: m}
	s.streams[id] = st
	return st, nil
}

func (s *Store) putMeta(m Meta) error {
	mb, err := encodeMeta(m)
	if err != nil {
		return err
	}
	return s.db.Set(keyMeta(m.StreamID), mb)
}

// Describe returns the stored meta of a stream.
func (s *Store) Describe(streamID int64) (Meta, error) {
	st, err := s.load(streamID)
	if err != nil {
		return Meta{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.destroyed {
		return Meta{}, &stream.IOError{Op: "describe", Err: stream.ErrStreamNotFound}
	}
	m := st.meta
	return m, nil
}

// destroy removes all keys of a stream and forgets its state.
func (s *Store) destroy(st *state) error {
	id := st.meta.StreamID
	low, high := streamBounds(id)
	if err := s.db.DeleteRange(low, high); err != nil {
		return err
	}
	st.destroyed = true
	s.mu.Lock()
	delete(s.streams, id)
	s.mu.Unlock()
	if err := s.db.CompactRange(low, high); err != nil {
		s.logger.Warn("compact after destroy failed", logpkg.Int64("stream_id", id), logpkg.Err(err))
	}
	return nil
}

func isIOCause(err error) bool {
	return !errors.Is(err, stream.ErrFenced) &&
		!errors.Is(err, stream.ErrReadOnly) &&
		!errors.Is(err, stream.ErrStreamClosed) &&
		!errors.Is(err, stream.ErrOffsetOutOfRange) &&
		!errors.Is(err, stream.ErrInvalidArgument)
}
