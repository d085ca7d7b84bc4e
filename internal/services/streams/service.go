package streamsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/strata/internal/catalog"
	"github.com/rzbill/strata/internal/controller"
	"github.com/rzbill/strata/internal/protocol"
	"github.com/rzbill/strata/internal/runtime"
	"github.com/rzbill/strata/internal/stream"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// Service exposes named streams and the controller operations consumed by
// the HTTP and gRPC transports.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// New returns a Service. A nil logger discards output.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Service{rt: rt, logger: logger.With(logpkg.Component("streams"))}
}

// Append writes recs to name in order, one batch per record. The stream is
// created on the first append. A failure stops the remaining records; the
// result reports what was written before it.
func (s *Service) Append(ctx context.Context, name string, recs []Record) (AppendResult, error) {
	if len(recs) == 0 {
		return AppendResult{}, fmt.Errorf("%w: no records", stream.ErrInvalidArgument)
	}
	ls, err := s.rt.Stream(ctx, name)
	if err != nil {
		return AppendResult{}, err
	}
	t0 := time.Now()
	res := AppendResult{Name: name, BaseOffset: -1}
	for i, rec := range recs {
		ts := rec.TimestampMs
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		ar, err := ls.Append(ctx, stream.RecordBatch{
			Count:         1,
			BaseTimestamp: ts,
			Properties:    rec.Headers,
			Payload:       rec.Payload,
		}).Get(ctx)
		if err != nil {
			s.logger.Warn("streams.append failed",
				logpkg.Str("stream", name),
				logpkg.Int("written", i),
				logpkg.Err(err),
			)
			res.StreamID = ls.StreamID()
			return res, err
		}
		if res.BaseOffset < 0 {
			res.BaseOffset = ar.BaseOffset
		}
		res.NextOffset = ar.BaseOffset + 1
	}
	res.StreamID = ls.StreamID()
	s.logger.With(
		logpkg.Str("stream", name),
		logpkg.Int64("stream_id", res.StreamID),
		logpkg.Int("records", len(recs)),
		logpkg.Int64("base_offset", res.BaseOffset),
		logpkg.Int64("dur_ms", time.Since(t0).Milliseconds()),
	).Debug("streams.append")
	return res, nil
}

// Fetch reads records from name starting at opts.Start. Records that do not
// match opts.Filter are skipped but still advance NextOffset.
func (s *Service) Fetch(ctx context.Context, name string, opts FetchOptions) (FetchResult, error) {
	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: filter: %v", stream.ErrInvalidArgument, err)
	}
	ls, err := s.rt.Stream(ctx, name)
	if err != nil {
		return FetchResult{}, err
	}
	out := FetchResult{Records: []FetchedRecord{}, NextOffset: opts.Start}
	if !ls.Materialized() {
		return out, nil
	}
	end := opts.End
	if end <= 0 {
		end = ls.ConfirmOffset()
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = s.rt.Config().Streams.FetchMaxBytes
	}
	fr, err := ls.Fetch(ctx, opts.Start, end, maxBytes).Get(ctx)
	if err != nil {
		return FetchResult{}, err
	}
	for _, b := range fr.Batches {
		rec := FetchedRecord{
			Offset:      b.BaseOffset,
			TimestampMs: b.Batch.BaseTimestamp,
			Headers:     b.Batch.Properties,
			Payload:     b.Batch.Payload,
		}
		if filter.Eval(ls.StreamID(), rec) {
			out.Records = append(out.Records, rec)
		}
		out.NextOffset = b.LastOffset
	}
	return out, nil
}

// Trim drops records of name below newStart.
func (s *Service) Trim(ctx context.Context, name string, newStart int64) (StreamInfo, error) {
	if _, err := s.rt.Catalog().Lookup(name); err != nil {
		return StreamInfo{}, err
	}
	ls, err := s.rt.Stream(ctx, name)
	if err != nil {
		return StreamInfo{}, err
	}
	if _, err := ls.Trim(newStart).Get(ctx); err != nil {
		return StreamInfo{}, err
	}
	s.logger.Info("streams.trim", logpkg.Str("stream", name), logpkg.Int64("start_offset", newStart))
	return s.Describe(ctx, name)
}

// Describe reports the catalog and storage state of name.
func (s *Service) Describe(_ context.Context, name string) (StreamInfo, error) {
	e, m, err := s.rt.Describe(name)
	if err != nil {
		return StreamInfo{}, err
	}
	return infoFrom(e, m), nil
}

// WarmUp creates the stream behind name without appending.
func (s *Service) WarmUp(ctx context.Context, name string) (StreamInfo, error) {
	ls, err := s.rt.Stream(ctx, name)
	if err != nil {
		return StreamInfo{}, err
	}
	if err := ls.WarmUp(ctx); err != nil {
		return StreamInfo{}, err
	}
	return s.Describe(ctx, name)
}

// Destroy deletes name and its data.
func (s *Service) Destroy(ctx context.Context, name string) error {
	return s.rt.DestroyStream(ctx, name)
}

// List returns every stream whose name starts with prefix.
func (s *Service) List(ctx context.Context, prefix string) ([]StreamInfo, error) {
	entries, err := s.rt.Catalog().List(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]StreamInfo, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, m, err := s.rt.Describe(e.Name)
		if err != nil && !errors.Is(err, stream.ErrStreamNotFound) {
			return nil, err
		}
		out = append(out, infoFrom(e, m))
	}
	return out, nil
}

// BreakerStatus reports the creation gate and its breaker.
func (s *Service) BreakerStatus() controller.Status {
	return s.rt.Gate().Status()
}

// UpdateGroup decodes an UpdateGroup request for version, applies it and
// returns the encoded response. Failures are reported in the response error
// code; the returned error is reserved for requests that cannot be decoded
// at all.
func (s *Service) UpdateGroup(ctx context.Context, raw []byte, version int16) ([]byte, error) {
	req, err := protocol.ParseUpdateGroupRequest(raw, version)
	if err != nil {
		s.logger.Warn("update group rejected", logpkg.Int("version", int(version)), logpkg.Err(err))
		return protocol.UpdateGroupResponse{ErrorCode: protocol.CodeOf(err)}.Encode(), err
	}
	throttle := s.rt.Config().Controller.ThrottleTime
	if s.rt.Breaker().IsOverload() {
		terr := &controller.ThrottleError{RetryAfter: throttle}
		return req.ErrorResponse(int32(throttle.Milliseconds()), terr).Encode(), nil
	}
	if err := ctx.Err(); err != nil {
		return req.ErrorResponse(0, err).Encode(), nil
	}
	g, err := s.rt.Catalog().UpdateGroup(catalog.Group{
		GroupID:  req.Data.GroupID,
		LinkID:   req.Data.LinkID,
		Promoted: req.Data.Promoted,
	})
	if err != nil {
		s.logger.Error("update group failed", logpkg.Str("group_id", req.Data.GroupID), logpkg.Err(err))
		return req.ErrorResponse(0, err).Encode(), nil
	}
	s.logger.Info("group updated",
		logpkg.Str("group_id", g.GroupID),
		logpkg.Str("link_id", g.LinkID),
		logpkg.Bool("promoted", g.Promoted),
	)
	return protocol.UpdateGroupResponse{ErrorCode: protocol.CodeNone}.Encode(), nil
}
