package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rzbill/strata/pkg/future"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// LazyOptions configures a LazyStream.
type LazyOptions struct {
	// Name is a human-readable label used in logs.
	Name         string
	ReplicaCount int
	// Epoch is fixed for the lifetime of the handle.
	Epoch int64
	// Tags are forwarded to the storage layer on create and open.
	Tags map[string]string
	// SnapshotRead opens an existing stream without claiming its epoch.
	SnapshotRead bool
	Logger       logpkg.Logger
}

// LazyStream is a Stream whose durable resource is created on first use.
//
// The installed implementation is swapped from the placeholder to the real
// stream at most once. Reads of the installed stream are lock-free; only the
// check-and-launch of materialization takes mu.
type LazyStream struct {
	name         string
	client       Client
	replicaCount int
	epoch        int64
	tags         map[string]string
	logger       logpkg.Logger

	inner    atomic.Pointer[installed]
	listener atomic.Pointer[listenerBox]

	mu      sync.Mutex
	pending *future.Future[Stream]
}

type installed struct{ s Stream }

type listenerBox struct{ l EventListener }

// OpenLazy builds a LazyStream. If streamID is InvalidStreamID the handle
// starts in deferred mode and creates the stream on first Append or WarmUp.
// Otherwise the existing stream is opened before OpenLazy returns, and any
// failure to open aborts construction.
func OpenLazy(ctx context.Context, client Client, streamID int64, opts LazyOptions) (*LazyStream, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	tags := make(map[string]string, len(opts.Tags))
	for k, v := range opts.Tags {
		tags[k] = v
	}
	s := &LazyStream{
		name:         opts.Name,
		client:       client,
		replicaCount: opts.ReplicaCount,
		epoch:        opts.Epoch,
		tags:         tags,
		logger:       logger.With(logpkg.Component("lazy-stream"), logpkg.Str("name", opts.Name)),
	}
	s.inner.Store(&installed{s: noop})

	if streamID == InvalidStreamID {
		return s, nil
	}

	oo := OpenOptions{Epoch: opts.Epoch, Tags: tags, Mode: ModeReadWrite}
	if opts.SnapshotRead {
		oo.Mode = ModeSnapshotRead
	}
	st, err := client.OpenStream(streamID, oo).Get(ctx)
	if err != nil {
		var ioe *IOError
		if errors.As(err, &ioe) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("open stream %d: %w", streamID, err)
	}
	s.inner.Store(&installed{s: st})
	s.logger.Info("opened existing stream",
		logpkg.Int64("stream_id", streamID),
		logpkg.Int64("epoch", opts.Epoch),
		logpkg.Str("mode", oo.Mode.String()),
	)
	return s, nil
}

func (s *LazyStream) current() Stream { return s.inner.Load().s }

// Name returns the handle's label.
func (s *LazyStream) Name() string { return s.name }

// Materialized reports whether a real stream is installed.
func (s *LazyStream) Materialized() bool { return !isPlaceholder(s.current()) }

// WarmUp creates the stream now if it does not exist yet. It is a no-op once
// materialized. Creation failures are returned as *IOError.
func (s *LazyStream) WarmUp(ctx context.Context) error {
	if s.Materialized() {
		return nil
	}
	_, err := s.materialize("warmup").Get(ctx)
	return err
}

// materialize returns the future of the single in-flight creation, starting
// one if needed.
func (s *LazyStream) materialize(reason string) *future.Future[Stream] {
	s.mu.Lock()
	if cur := s.current(); !isPlaceholder(cur) {
		s.mu.Unlock()
		return future.Completed(cur)
	}
	if s.pending != nil {
		p := s.pending
		s.mu.Unlock()
		return p
	}
	pending := future.New[Stream]()
	s.pending = pending
	created := s.client.CreateAndOpenStream(s.createOptions())
	s.mu.Unlock()

	created.OnComplete(func(st Stream, err error) {
		s.mu.Lock()
		s.pending = nil
		if err == nil {
			s.inner.Store(&installed{s: st})
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("create stream failed", logpkg.Str("reason", reason), logpkg.Err(err))
			pending.Fail(AsIOError("create", err))
			return
		}
		s.logger.Info("created and opened a new stream",
			logpkg.Str("reason", reason),
			logpkg.Int64("stream_id", st.StreamID()),
			logpkg.Int64("epoch", s.epoch),
		)
		s.notifyListener(MetaEventStreamCreated)
		pending.Complete(st)
	})
	return pending
}

func (s *LazyStream) createOptions() CreateOptions {
	tags := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	return CreateOptions{ReplicaCount: s.replicaCount, Epoch: s.epoch, Tags: tags}
}

// StreamID returns the durable id, or NoopStreamID before materialization.
func (s *LazyStream) StreamID() int64 { return s.current().StreamID() }

// StreamEpoch returns the epoch given at construction.
func (s *LazyStream) StreamEpoch() int64 { return s.epoch }

func (s *LazyStream) StartOffset() int64   { return s.current().StartOffset() }
func (s *LazyStream) ConfirmOffset() int64 { return s.current().ConfirmOffset() }
func (s *LazyStream) NextOffset() int64    { return s.current().NextOffset() }

// Append creates the stream first if needed, then appends to it. A creation
// failure fails this append only; the next call retries.
func (s *LazyStream) Append(ctx context.Context, batch RecordBatch) *future.Future[AppendResult] {
	if cur := s.current(); !isPlaceholder(cur) {
		return cur.Append(ctx, batch)
	}
	return future.Then(s.materialize("append"), func(st Stream) *future.Future[AppendResult] {
		return st.Append(ctx, batch)
	})
}

func (s *LazyStream) Trim(newStartOffset int64) *future.Future[struct{}] {
	return s.current().Trim(newStartOffset)
}

func (s *LazyStream) Fetch(ctx context.Context, startOffset, endOffset int64, maxBytesHint int) *future.Future[FetchResult] {
	return s.current().Fetch(ctx, startOffset, endOffset, maxBytesHint)
}

func (s *LazyStream) Close() *future.Future[struct{}]   { return s.current().Close() }
func (s *LazyStream) Destroy() *future.Future[struct{}] { return s.current().Destroy() }

// SetListener registers l, replacing any previous listener. nil clears it.
func (s *LazyStream) SetListener(l EventListener) {
	if l == nil {
		s.listener.Store(nil)
		return
	}
	s.listener.Store(&listenerBox{l: l})
}

// notifyListener never propagates listener errors or panics.
func (s *LazyStream) notifyListener(event MetaEvent) {
	box := s.listener.Load()
	if box == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("got notify listener panic", logpkg.Str("event", event.String()), logpkg.F("panic", r))
		}
	}()
	if err := box.l.OnEvent(s.StreamID(), event); err != nil {
		s.logger.Error("got notify listener error", logpkg.Str("event", event.String()), logpkg.Err(err))
	}
}

func (s *LazyStream) String() string {
	return fmt.Sprintf("LazyStream{name=%q, streamId=%d, replicaCount=%d}", s.name, s.StreamID(), s.replicaCount)
}
