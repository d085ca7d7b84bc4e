// Package runtime wires Pebble storage, the stream store, the creation gate
// and the name catalog into a single-node instance.
//
//	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	s, _ := rt.Stream(ctx, "orders-0")
//	res, err := s.Append(ctx, stream.RecordBatch{Count: 1, Payload: b}).Get(ctx)
package runtime
