package streamsvc

import (
	"github.com/rzbill/strata/internal/catalog"
	"github.com/rzbill/strata/internal/streamstore"
)

// Record is a single appended message. Each record is stored as a one-record
// batch whose properties carry the headers.
type Record struct {
	Payload     []byte            `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	TimestampMs int64             `json:"ts_ms,omitempty"`
}

// AppendResult reports where an append landed.
type AppendResult struct {
	Name       string `json:"name"`
	StreamID   int64  `json:"stream_id"`
	BaseOffset int64  `json:"base_offset"`
	NextOffset int64  `json:"next_offset"`
}

// FetchOptions bounds a fetch. End <= 0 reads to the confirm offset.
type FetchOptions struct {
	Start    int64
	End      int64
	MaxBytes int
	// Filter is an optional CEL expression evaluated per record.
	Filter string
}

// FetchedRecord is a record with its offset.
type FetchedRecord struct {
	Offset      int64             `json:"offset"`
	TimestampMs int64             `json:"ts_ms"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     []byte            `json:"payload"`
}

// FetchResult carries matched records and the offset to resume from.
type FetchResult struct {
	Records    []FetchedRecord `json:"records"`
	NextOffset int64           `json:"next_offset"`
}

// StreamInfo describes a named stream.
type StreamInfo struct {
	Name         string            `json:"name"`
	StreamID     int64             `json:"stream_id"`
	Epoch        int64             `json:"epoch"`
	Materialized bool              `json:"materialized"`
	StartOffset  int64             `json:"start_offset"`
	NextOffset   int64             `json:"next_offset"`
	ReplicaCount int               `json:"replica_count,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	CreatedAtMs  int64             `json:"created_at_ms"`
}

func infoFrom(e catalog.Entry, m *streamstore.Meta) StreamInfo {
	info := StreamInfo{Name: e.Name, StreamID: e.StreamID, Epoch: e.Epoch, CreatedAtMs: e.CreatedAtMs}
	if m != nil {
		info.Materialized = true
		info.StartOffset = m.StartOffset
		info.NextOffset = m.NextOffset
		info.ReplicaCount = m.ReplicaCount
		info.Tags = m.Tags
		info.Epoch = m.Epoch
	}
	return info
}
