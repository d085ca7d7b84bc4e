// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"
	"encoding/json"
)

// Record is a record to append.
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

// FetchRequest bounds a fetch. End <= 0 reads to the end.
type FetchRequest struct {
	Name     string
	Start    int64
	End      int64
	MaxBytes int
	Filter   string
}

// FetchedRecord is a record with its offset.
type FetchedRecord struct {
	Offset      int64             `json:"offset"`
	TimestampMs int64             `json:"ts_ms"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     []byte            `json:"payload"`
}

// FetchResult carries records and the offset to resume from.
type FetchResult struct {
	Records    []FetchedRecord `json:"records"`
	NextOffset int64           `json:"next_offset"`
}

// StreamInfo is kept as raw JSON so the CLI prints whatever the server
// reports.
type StreamInfo = json.RawMessage

// StreamsTransport abstracts the transport used by the CLI for stream and
// controller operations.
type StreamsTransport interface {
	Append(ctx context.Context, name string, recs []Record) (AppendResult, error)
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
	Trim(ctx context.Context, name string, startOffset int64) (StreamInfo, error)
	Describe(ctx context.Context, name string) (StreamInfo, error)
	WarmUp(ctx context.Context, name string) (StreamInfo, error)
	Destroy(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) (json.RawMessage, error)
	BreakerStatus(ctx context.Context) (json.RawMessage, error)
	// UpdateGroup posts an encoded request and returns the encoded response.
	UpdateGroup(ctx context.Context, raw []byte, version int16) ([]byte, error)
}

// HealthChecker reports the serving status of a health service name.
type HealthChecker interface {
	Check(ctx context.Context, service string) (string, error)
}
