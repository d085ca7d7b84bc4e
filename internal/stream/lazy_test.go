package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/strata/pkg/future"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStream is an in-memory Stream used to observe forwarding.
type memStream struct {
	id    int64
	epoch int64

	mu      sync.Mutex
	next    int64
	appends int
	closed  bool
}

func (m *memStream) StreamID() int64      { return m.id }
func (m *memStream) StreamEpoch() int64   { return m.epoch }
func (m *memStream) StartOffset() int64   { return 0 }
func (m *memStream) ConfirmOffset() int64 { m.mu.Lock(); defer m.mu.Unlock(); return m.next }
func (m *memStream) NextOffset() int64    { m.mu.Lock(); defer m.mu.Unlock(); return m.next }

func (m *memStream) Append(_ context.Context, b RecordBatch) *future.Future[AppendResult] {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m.next
	m.next += int64(b.Count)
	m.appends++
	return future.Completed(AppendResult{BaseOffset: base})
}

func (m *memStream) Fetch(context.Context, int64, int64, int) *future.Future[FetchResult] {
	return future.Completed(FetchResult{Batches: []FetchedBatch{{BaseOffset: 0, LastOffset: 1}}})
}

func (m *memStream) Trim(int64) *future.Future[struct{}] { return future.Completed(struct{}{}) }

func (m *memStream) Close() *future.Future[struct{}] {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return future.Completed(struct{}{})
}

func (m *memStream) Destroy() *future.Future[struct{}] { return future.Completed(struct{}{}) }

// fakeClient counts creation and open requests. When gate is set, creations
// complete only after the gate is closed.
type fakeClient struct {
	creates atomic.Int32
	opens   atomic.Int32
	nextID  atomic.Int64

	gate      chan struct{}
	createErr func(n int32) error
	openErr   error
	lastOpts  atomic.Pointer[CreateOptions]
	lastOpen  atomic.Pointer[OpenOptions]
}

func (c *fakeClient) CreateAndOpenStream(opts CreateOptions) *future.Future[Stream] {
	n := c.creates.Add(1)
	c.lastOpts.Store(&opts)
	return future.Go(func() (Stream, error) {
		if c.gate != nil {
			<-c.gate
		}
		if c.createErr != nil {
			if err := c.createErr(n); err != nil {
				return nil, err
			}
		}
		return &memStream{id: 100 + c.nextID.Add(1), epoch: opts.Epoch}, nil
	})
}

func (c *fakeClient) OpenStream(id int64, opts OpenOptions) *future.Future[Stream] {
	c.opens.Add(1)
	c.lastOpen.Store(&opts)
	if c.openErr != nil {
		return future.Failed[Stream](c.openErr)
	}
	return future.Completed[Stream](&memStream{id: id, epoch: opts.Epoch})
}

func newDeferred(t *testing.T, c Client) *LazyStream {
	t.Helper()
	ls, err := OpenLazy(context.Background(), c, InvalidStreamID, LazyOptions{
		Name:         "orders-0",
		ReplicaCount: 1,
		Epoch:        7,
		Tags:         map[string]string{"topic": "orders", "partition": "0"},
	})
	if err != nil {
		t.Fatalf("open lazy: %v", err)
	}
	return ls
}

func TestConcurrentAppendsMaterializeOnce(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	ls := newDeferred(t, client)

	var events atomic.Int32
	var notifiedID atomic.Int64
	ls.SetListener(EventListenerFunc(func(id int64, ev MetaEvent) error {
		if ev == MetaEventStreamCreated {
			events.Add(1)
			notifiedID.Store(id)
		}
		return nil
	}))

	const n = 32
	ctx := context.Background()
	futures := make([]*future.Future[AppendResult], n)
	for i := 0; i < n; i++ {
		futures[i] = ls.Append(ctx, RecordBatch{Count: 1, Payload: []byte("x")})
	}
	// all callers are queued behind the single in-flight creation
	if got := client.creates.Load(); got != 1 {
		t.Fatalf("want 1 create request while in flight, got %d", got)
	}
	close(client.gate)

	var g errgroup.Group
	offsets := make([]int64, n)
	for i := range futures {
		i := i
		g.Go(func() error {
			res, err := futures[i].Get(ctx)
			offsets[i] = res.BaseOffset
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("append: %v", err)
	}

	if got := client.creates.Load(); got != 1 {
		t.Fatalf("want exactly 1 create request, got %d", got)
	}
	if events.Load() != 1 {
		t.Fatalf("want exactly 1 created event, got %d", events.Load())
	}
	if notifiedID.Load() != ls.StreamID() || ls.StreamID() == NoopStreamID {
		t.Fatalf("listener saw id %d, stream reports %d", notifiedID.Load(), ls.StreamID())
	}
	seen := map[int64]bool{}
	for _, off := range offsets {
		if seen[off] {
			t.Fatalf("duplicate offset %d", off)
		}
		seen[off] = true
	}
	if ls.NextOffset() != n {
		t.Fatalf("want next offset %d, got %d", n, ls.NextOffset())
	}
}

func TestConcurrentAppendsFromGoroutines(t *testing.T) {
	client := &fakeClient{}
	ls := newDeferred(t, client)
	ctx := context.Background()

	var g errgroup.Group
	ids := make([]int64, 16)
	for i := range ids {
		i := i
		g.Go(func() error {
			if _, err := ls.Append(ctx, RecordBatch{Count: 2}).Get(ctx); err != nil {
				return err
			}
			ids[i] = ls.StreamID()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("append: %v", err)
	}
	if client.creates.Load() != 1 {
		t.Fatalf("want 1 create, got %d", client.creates.Load())
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers observed different ids: %v", ids)
		}
	}
}

func TestPlaceholderDefaults(t *testing.T) {
	client := &fakeClient{}
	ls := newDeferred(t, client)
	ctx := context.Background()

	if ls.StreamID() != NoopStreamID {
		t.Fatalf("want noop id, got %d", ls.StreamID())
	}
	if ls.StartOffset() != 0 || ls.ConfirmOffset() != 0 || ls.NextOffset() != 0 {
		t.Fatalf("placeholder offsets should be 0")
	}
	res, err := ls.Fetch(ctx, 0, 10, 1024).Get(ctx)
	if err != nil || !res.Empty() {
		t.Fatalf("fetch on placeholder: %v, %+v", err, res)
	}
	for name, f := range map[string]*future.Future[struct{}]{
		"trim":    ls.Trim(5),
		"close":   ls.Close(),
		"destroy": ls.Destroy(),
	} {
		if _, err := f.Get(ctx); err != nil {
			t.Fatalf("%s on placeholder: %v", name, err)
		}
	}
	if ls.Materialized() || client.creates.Load() != 0 {
		t.Fatalf("forwarded ops must not materialize")
	}

	if _, err := noop.Append(ctx, RecordBatch{Count: 1}).Get(ctx); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("placeholder append: want ErrUnsupported, got %v", err)
	}
}

func TestEpochFixedAcrossMaterialization(t *testing.T) {
	client := &fakeClient{}
	ls := newDeferred(t, client)
	if ls.StreamEpoch() != 7 {
		t.Fatalf("epoch before: %d", ls.StreamEpoch())
	}
	if err := ls.WarmUp(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if ls.StreamEpoch() != 7 {
		t.Fatalf("epoch after: %d", ls.StreamEpoch())
	}
	opts := client.lastOpts.Load()
	if opts.Epoch != 7 || opts.ReplicaCount != 1 || opts.Tags["topic"] != "orders" || opts.Tags["partition"] != "0" {
		t.Fatalf("create options not forwarded: %+v", *opts)
	}
}

func TestWarmUpIdempotent(t *testing.T) {
	client := &fakeClient{}
	ls := newDeferred(t, client)
	var events atomic.Int32
	ls.SetListener(EventListenerFunc(func(int64, MetaEvent) error { events.Add(1); return nil }))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := ls.WarmUp(ctx); err != nil {
			t.Fatalf("warmup %d: %v", i, err)
		}
	}
	if _, err := ls.Append(ctx, RecordBatch{Count: 1}).Get(ctx); err != nil {
		t.Fatalf("append: %v", err)
	}
	if client.creates.Load() != 1 || events.Load() != 1 {
		t.Fatalf("creates=%d events=%d", client.creates.Load(), events.Load())
	}
}

func TestOpenExistingSkipsCreate(t *testing.T) {
	client := &fakeClient{}
	ls, err := OpenLazy(context.Background(), client, 42, LazyOptions{Name: "orders-1", ReplicaCount: 1, Epoch: 3, SnapshotRead: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if ls.StreamID() != 42 {
		t.Fatalf("want 42, got %d", ls.StreamID())
	}
	if client.creates.Load() != 0 || client.opens.Load() != 1 {
		t.Fatalf("creates=%d opens=%d", client.creates.Load(), client.opens.Load())
	}
	if o := client.lastOpen.Load(); o.Mode != ModeSnapshotRead || o.Epoch != 3 {
		t.Fatalf("open options: %+v", *o)
	}
	if _, err := ls.Append(context.Background(), RecordBatch{Count: 1}).Get(context.Background()); err != nil {
		t.Fatalf("append: %v", err)
	}
	if client.creates.Load() != 0 {
		t.Fatalf("append on opened stream must not create")
	}
}

func TestOpenExistingFailureAbortsConstruction(t *testing.T) {
	ioErr := &IOError{Op: "open", Err: errors.New("connection refused")}
	ls, err := OpenLazy(context.Background(), &fakeClient{openErr: ioErr}, 9, LazyOptions{Epoch: 1})
	if ls != nil {
		t.Fatalf("expected nil handle on failure")
	}
	var got *IOError
	if !errors.As(err, &got) || got != ioErr {
		t.Fatalf("want the original IOError, got %v", err)
	}

	other := errors.New("decode meta")
	_, err = OpenLazy(context.Background(), &fakeClient{openErr: other}, 9, LazyOptions{Epoch: 1})
	if !errors.Is(err, other) {
		t.Fatalf("want wrapped cause, got %v", err)
	}
	if errors.As(err, &got) {
		t.Fatalf("non-I/O failure should not become an IOError")
	}
}

func TestCreateFailureIsRetried(t *testing.T) {
	boom := errors.New("controller unavailable")
	client := &fakeClient{createErr: func(n int32) error {
		if n == 1 {
			return boom
		}
		return nil
	}}
	ls := newDeferred(t, client)
	var events atomic.Int32
	ls.SetListener(EventListenerFunc(func(int64, MetaEvent) error { events.Add(1); return nil }))
	ctx := context.Background()

	_, err := ls.Append(ctx, RecordBatch{Count: 1}).Get(ctx)
	var ioe *IOError
	if !errors.As(err, &ioe) || !errors.Is(err, boom) {
		t.Fatalf("want IOError wrapping cause, got %v", err)
	}
	if ls.Materialized() || events.Load() != 0 {
		t.Fatalf("failed creation must not install or notify")
	}

	if _, err := ls.Append(ctx, RecordBatch{Count: 1}).Get(ctx); err != nil {
		t.Fatalf("retry append: %v", err)
	}
	if client.creates.Load() != 2 || events.Load() != 1 {
		t.Fatalf("creates=%d events=%d", client.creates.Load(), events.Load())
	}

	if err := newDeferredWithErr(t, boom).WarmUp(ctx); !errors.As(err, &ioe) {
		t.Fatalf("warmup should surface IOError, got %v", err)
	}
}

func newDeferredWithErr(t *testing.T, err error) *LazyStream {
	return newDeferred(t, &fakeClient{createErr: func(int32) error { return err }})
}

func TestListenerFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()

	ls := newDeferred(t, &fakeClient{})
	ls.SetListener(EventListenerFunc(func(int64, MetaEvent) error { return errors.New("metadata store down") }))
	if _, err := ls.Append(ctx, RecordBatch{Count: 1}).Get(ctx); err != nil {
		t.Fatalf("listener error leaked into append: %v", err)
	}
	if !ls.Materialized() {
		t.Fatalf("listener error must not roll back materialization")
	}

	ls2 := newDeferred(t, &fakeClient{})
	ls2.SetListener(EventListenerFunc(func(int64, MetaEvent) error { panic("listener bug") }))
	if err := ls2.WarmUp(ctx); err != nil {
		t.Fatalf("listener panic leaked into warmup: %v", err)
	}
}

func TestSetListenerReplaces(t *testing.T) {
	ls := newDeferred(t, &fakeClient{})
	var first, second atomic.Int32
	ls.SetListener(EventListenerFunc(func(int64, MetaEvent) error { first.Add(1); return nil }))
	ls.SetListener(EventListenerFunc(func(int64, MetaEvent) error { second.Add(1); return nil }))
	if err := ls.WarmUp(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("first=%d second=%d", first.Load(), second.Load())
	}
}

func TestWarmUpHonorsContext(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{})}
	ls := newDeferred(t, client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := ls.WarmUp(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	close(client.gate)
	// the in-flight creation still completes and is reused
	if err := ls.WarmUp(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if client.creates.Load() != 1 {
		t.Fatalf("want 1 create, got %d", client.creates.Load())
	}
}

func TestForwardingAfterMaterialization(t *testing.T) {
	ls := newDeferred(t, &fakeClient{})
	ctx := context.Background()
	if err := ls.WarmUp(ctx); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	res, err := ls.Fetch(ctx, 0, 1, 100).Get(ctx)
	if err != nil || len(res.Batches) != 1 {
		t.Fatalf("fetch not forwarded: %v %+v", err, res)
	}
	inner := ls.current().(*memStream)
	if _, err := ls.Close().Get(ctx); err != nil || !inner.closed {
		t.Fatalf("close not forwarded: %v", err)
	}
	if s := ls.String(); s == "" {
		t.Fatalf("empty String()")
	}
}
