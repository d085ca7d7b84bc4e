// Package httpserver provides the JSON gateway for strata: named stream
// append/fetch/trim, breaker status and the binary UpdateGroup endpoint.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7080")
package httpserver
