package stream

import "math"

// Sentinels meaning "not assigned yet", shared across the storage layer.
const (
	InitEpoch       int64 = -1
	InitRangeIndex  int32 = -1
	InitStartOffset int64 = 0
	InitEndOffset   int64 = 0

	InvalidStreamID    int64 = -1
	InvalidObjectID    int64 = -1
	InvalidOffset      int64 = -1
	InvalidBrokerID    int32 = -1
	MaxObjectID        int64 = math.MaxInt64
	InvalidOrderID     int64 = -1
	InvalidTS          int64 = -1
	InvalidObjectSize  int64 = -1
	InvalidBrokerEpoch int64 = -1
)

// NoopStreamID is reported by a LazyStream that has not been materialized.
const NoopStreamID = InvalidStreamID
