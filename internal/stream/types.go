package stream

import (
	"context"

	"github.com/rzbill/strata/pkg/future"
)

// RecordBatch is the unit of append. Count records share one payload blob.
type RecordBatch struct {
	Count         int32
	BaseTimestamp int64
	Properties    map[string]string
	Payload       []byte
}

// AppendResult carries the offset assigned to the first record of a batch.
type AppendResult struct {
	BaseOffset int64
}

// FetchedBatch is a stored batch together with its offset range.
type FetchedBatch struct {
	BaseOffset int64
	// LastOffset is exclusive: BaseOffset + Count.
	LastOffset int64
	Batch      RecordBatch
}

// FetchResult holds the batches returned by a fetch, oldest first.
type FetchResult struct {
	Batches []FetchedBatch
}

// Empty reports whether the result carries no batches.
func (r FetchResult) Empty() bool { return len(r.Batches) == 0 }

// ReadWriteMode selects how a stream is opened.
type ReadWriteMode int

const (
	// ModeReadWrite opens the stream for appends and takes ownership at the
	// requested epoch.
	ModeReadWrite ReadWriteMode = iota
	// ModeSnapshotRead opens without claiming the epoch; writes are rejected.
	ModeSnapshotRead
)

func (m ReadWriteMode) String() string {
	switch m {
	case ModeReadWrite:
		return "read_write"
	case ModeSnapshotRead:
		return "snapshot_read"
	default:
		return "unknown"
	}
}

// CreateOptions describes a stream to create.
type CreateOptions struct {
	ReplicaCount int
	Epoch        int64
	Tags         map[string]string
}

// OpenOptions describes how to open an existing stream.
type OpenOptions struct {
	Epoch int64
	Tags  map[string]string
	Mode  ReadWriteMode
}

// Stream is an open, ordered, append-only durable log.
type Stream interface {
	StreamID() int64
	StreamEpoch() int64
	StartOffset() int64
	ConfirmOffset() int64
	NextOffset() int64

	Append(ctx context.Context, batch RecordBatch) *future.Future[AppendResult]
	Fetch(ctx context.Context, startOffset, endOffset int64, maxBytesHint int) *future.Future[FetchResult]
	Trim(newStartOffset int64) *future.Future[struct{}]
	Close() *future.Future[struct{}]
	Destroy() *future.Future[struct{}]
}

// Client creates and opens streams against durable storage.
type Client interface {
	CreateAndOpenStream(opts CreateOptions) *future.Future[Stream]
	OpenStream(streamID int64, opts OpenOptions) *future.Future[Stream]
}

// MetaEvent is a lifecycle notification sent to an EventListener.
type MetaEvent int

const (
	// MetaEventStreamCreated fires once a LazyStream materializes.
	MetaEventStreamCreated MetaEvent = iota + 1
)

func (e MetaEvent) String() string {
	switch e {
	case MetaEventStreamCreated:
		return "STREAM_DO_CREATE"
	default:
		return "UNKNOWN"
	}
}

// EventListener observes stream lifecycle events.
type EventListener interface {
	OnEvent(streamID int64, event MetaEvent) error
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(streamID int64, event MetaEvent) error

func (f EventListenerFunc) OnEvent(streamID int64, event MetaEvent) error { return f(streamID, event) }
