package stream

import (
	"context"

	"github.com/rzbill/strata/pkg/future"
)

// noopStream stands in for a stream that has not been created yet.
type noopStream struct{}

var noop Stream = noopStream{}

func isPlaceholder(s Stream) bool {
	_, ok := s.(noopStream)
	return ok
}

func (noopStream) StreamID() int64      { return NoopStreamID }
func (noopStream) StreamEpoch() int64   { return 0 }
func (noopStream) StartOffset() int64   { return 0 }
func (noopStream) ConfirmOffset() int64 { return 0 }
func (noopStream) NextOffset() int64    { return 0 }

func (noopStream) Append(context.Context, RecordBatch) *future.Future[AppendResult] {
	return future.Failed[AppendResult](ErrUnsupported)
}

func (noopStream) Fetch(context.Context, int64, int64, int) *future.Future[FetchResult] {
	return future.Completed(FetchResult{})
}

func (noopStream) Trim(int64) *future.Future[struct{}] { return future.Completed(struct{}{}) }
func (noopStream) Close() *future.Future[struct{}]     { return future.Completed(struct{}{}) }
func (noopStream) Destroy() *future.Future[struct{}]   { return future.Completed(struct{}{}) }
