package streamstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/strata/internal/stream"
	"github.com/rzbill/strata/pkg/future"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// handle is one opener's view of a stream, bound to an epoch and a mode.
type handle struct {
	store  *Store
	st     *state
	id     int64
	epoch  int64
	mode   stream.ReadWriteMode
	closed atomic.Bool
}

var _ stream.Stream = (*handle)(nil)

func (h *handle) StreamID() int64    { return h.id }
func (h *handle) StreamEpoch() int64 { return h.epoch }

func (h *handle) StartOffset() int64 {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return h.st.meta.StartOffset
}

// ConfirmOffset equals NextOffset: appends are durable once committed.
func (h *handle) ConfirmOffset() int64 { return h.NextOffset() }

func (h *handle) NextOffset() int64 {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	return h.st.meta.NextOffset
}

// checkLocked validates the handle for an operation. st.mu must be held.
func (h *handle) checkLocked(write bool) error {
	if h.closed.Load() {
		return stream.ErrStreamClosed
	}
	if h.st.destroyed {
		return stream.ErrStreamNotFound
	}
	if !write {
		return nil
	}
	if h.mode == stream.ModeSnapshotRead {
		return stream.ErrReadOnly
	}
	if h.epoch < h.st.meta.Epoch {
		return fmt.Errorf("epoch %d, stored %d: %w", h.epoch, h.st.meta.Epoch, stream.ErrFenced)
	}
	return nil
}

func wrapErr(op string, err error) error {
	if err == nil || !isIOCause(err) {
		return err
	}
	return stream.AsIOError(op, err)
}

func (h *handle) Append(ctx context.Context, batch stream.RecordBatch) *future.Future[stream.AppendResult] {
	return future.Go(func() (stream.AppendResult, error) {
		res, err := h.append(ctx, batch)
		return res, wrapErr("append", err)
	})
}

func (h *handle) append(ctx context.Context, batch stream.RecordBatch) (stream.AppendResult, error) {
	if batch.Count <= 0 {
		return stream.AppendResult{}, fmt.Errorf("batch count %d: %w", batch.Count, stream.ErrInvalidArgument)
	}
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	if err := h.checkLocked(true); err != nil {
		return stream.AppendResult{}, err
	}

	next := h.st.meta
	base := next.NextOffset
	next.NextOffset += int64(batch.Count)
	mb, err := encodeMeta(next)
	if err != nil {
		return stream.AppendResult{}, err
	}

	b := h.store.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyBatch(h.id, base), encodeBatch(batch), nil); err != nil {
		return stream.AppendResult{}, err
	}
	if err := b.Set(keyMeta(h.id), mb, nil); err != nil {
		return stream.AppendResult{}, err
	}
	if err := h.store.db.CommitBatch(ctx, b); err != nil {
		return stream.AppendResult{}, err
	}
	h.st.meta = next
	return stream.AppendResult{BaseOffset: base}, nil
}

// Fetch returns batches overlapping [startOffset, endOffset). At least one
// batch is returned when any overlap; further batches are added until
// maxBytesHint payload bytes are reached.
func (h *handle) Fetch(ctx context.Context, startOffset, endOffset int64, maxBytesHint int) *future.Future[stream.FetchResult] {
	return future.Go(func() (stream.FetchResult, error) {
		res, err := h.fetch(ctx, startOffset, endOffset, maxBytesHint)
		return res, wrapErr("fetch", err)
	})
}

func (h *handle) fetch(ctx context.Context, startOffset, endOffset int64, maxBytesHint int) (stream.FetchResult, error) {
	h.st.mu.Lock()
	if err := h.checkLocked(false); err != nil {
		h.st.mu.Unlock()
		return stream.FetchResult{}, err
	}
	first, confirm := h.st.meta.StartOffset, h.st.meta.NextOffset
	h.st.mu.Unlock()

	if startOffset < first || startOffset > confirm {
		return stream.FetchResult{}, fmt.Errorf("fetch %d not in [%d, %d]: %w", startOffset, first, confirm, stream.ErrOffsetOutOfRange)
	}
	if endOffset > confirm {
		endOffset = confirm
	}
	if endOffset <= startOffset {
		return stream.FetchResult{}, nil
	}

	low, high := batchBounds(h.id)
	iter, err := h.store.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return stream.FetchResult{}, err
	}
	defer iter.Close()

	// the batch containing startOffset has the greatest base <= startOffset
	ok := iter.SeekLT(keyBatch(h.id, startOffset+1))
	if !ok {
		ok = iter.First()
	}
	var res stream.FetchResult
	bytes := 0
	for ; ok; ok = iter.Next() {
		if err := ctx.Err(); err != nil {
			return stream.FetchResult{}, err
		}
		base := offsetFromKey(iter.Key())
		if base >= endOffset {
			break
		}
		batch, err := decodeBatch(iter.Value())
		if err != nil {
			return stream.FetchResult{}, fmt.Errorf("stream %d offset %d: %w", h.id, base, err)
		}
		last := base + int64(batch.Count)
		if last <= startOffset {
			continue
		}
		res.Batches = append(res.Batches, stream.FetchedBatch{BaseOffset: base, LastOffset: last, Batch: batch})
		bytes += len(batch.Payload)
		if maxBytesHint > 0 && bytes >= maxBytesHint {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return stream.FetchResult{}, err
	}
	return res, nil
}

// Trim advances the start offset and deletes batches that end at or before
// it, committing at most TrimBatchLimit deletes at a time.
func (h *handle) Trim(newStartOffset int64) *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		return struct{}{}, wrapErr("trim", h.trim(context.Background(), newStartOffset))
	})
}

func (h *handle) trim(ctx context.Context, newStart int64) error {
	h.st.mu.Lock()
	defer h.st.mu.Unlock()
	if err := h.checkLocked(true); err != nil {
		return err
	}
	if newStart <= h.st.meta.StartOffset {
		return nil
	}
	if newStart > h.st.meta.NextOffset {
		return fmt.Errorf("trim to %d beyond confirm offset %d: %w", newStart, h.st.meta.NextOffset, stream.ErrOffsetOutOfRange)
	}

	low, high := batchBounds(h.id)
	iter, err := h.store.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return err
	}
	defer iter.Close()

	next := h.st.meta
	next.StartOffset = newStart
	mb, err := encodeMeta(next)
	if err != nil {
		return err
	}

	deleted := 0
	ok := iter.First()
	for {
		b := h.store.db.NewBatch()
		n := 0
		for ok && n < h.store.trimBatchLimit {
			batch, err := decodeBatch(iter.Value())
			if err != nil {
				b.Close()
				return err
			}
			if offsetFromKey(iter.Key())+int64(batch.Count) > newStart {
				ok = false
				break
			}
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return err
			}
			n++
			ok = iter.Next()
		}
		deleted += n
		last := !ok
		if last {
			if err := b.Set(keyMeta(h.id), mb, nil); err != nil {
				b.Close()
				return err
			}
		}
		if err := h.store.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return err
		}
		b.Close()
		if last {
			break
		}
		if h.store.trimThrottle > 0 {
			time.Sleep(h.store.trimThrottle)
		}
	}
	h.st.meta = next
	h.store.logger.Debug("stream trimmed",
		logpkg.Int64("stream_id", h.id),
		logpkg.Int64("start_offset", newStart),
		logpkg.Int("deleted_batches", deleted),
	)
	return nil
}

// Close releases the handle. Further operations fail with
// stream.ErrStreamClosed. Closing twice is a no-op.
func (h *handle) Close() *future.Future[struct{}] {
	h.closed.Store(true)
	return future.Completed(struct{}{})
}

// Destroy deletes the stream's data and meta.
func (h *handle) Destroy() *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		h.st.mu.Lock()
		defer h.st.mu.Unlock()
		if h.st.destroyed {
			return struct{}{}, nil
		}
		if err := h.checkLocked(true); err != nil {
			return struct{}{}, wrapErr("destroy", err)
		}
		if err := h.store.destroy(h.st); err != nil {
			return struct{}{}, stream.AsIOError("destroy", err)
		}
		h.store.logger.Info("stream destroyed", logpkg.Int64("stream_id", h.id))
		return struct{}{}, nil
	})
}
