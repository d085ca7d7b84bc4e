// Package grpcserver hosts the gRPC server for strata. It serves the
// standard grpc.health.v1 service: the empty service name tracks storage
// health and "strata.controller" goes NOT_SERVING while stream creation is
// throttled by the overload breaker.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7070")
package grpcserver
