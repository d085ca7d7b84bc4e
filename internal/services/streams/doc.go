// Package streamsvc implements the named-stream facade consumed by the gRPC
// and HTTP transports. Streams are addressed by catalog name and created
// lazily on first append through the runtime's creation gate.
//
// Example:
//
//	svc := streamsvc.New(rt, logger)
//	res, _ := svc.Append(ctx, "orders", []streamsvc.Record{{Payload: []byte("hello")}})
//	out, _ := svc.Fetch(ctx, "orders", streamsvc.FetchOptions{Start: res.BaseOffset, Filter: `json.kind == "order"`})
//
// Fetch filters are CEL expressions over stream_id, offset, ts_ms, size,
// text, json, headers and now_ms, and must evaluate to bool.
package streamsvc
