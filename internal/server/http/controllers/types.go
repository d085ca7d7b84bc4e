package controllers

import streamsvc "github.com/rzbill/strata/internal/services/streams"

// Common request/response types for HTTP controllers

// nameReq carries just a stream name.
type nameReq struct {
	Name string `json:"name"`
}

// appendReq represents a request to append records to a stream. Payloads are
// base64 in JSON.
type appendReq struct {
	Name    string             `json:"name"`
	Records []streamsvc.Record `json:"records"`
}

// trimReq represents a request to drop records below StartOffset.
type trimReq struct {
	Name        string `json:"name"`
	StartOffset int64  `json:"start_offset"`
}

// listStreamsResp is the body of GET /v1/streams.
type listStreamsResp struct {
	Prefix  string                 `json:"prefix"`
	Streams []streamsvc.StreamInfo `json:"streams"`
}
