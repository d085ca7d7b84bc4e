// Package client provides the `strata` command-line client.
//
// The CLI talks to the strata HTTP gateway for stream and controller
// operations and to the gRPC endpoint for health checks. It is primarily
// intended for developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it
// defaults to http://127.0.0.1:7080 and can be changed with STRATA_HTTP.
// The gRPC address is read from STRATA_GRPC (default 127.0.0.1:7070).
//
// Usage
//
//	strata stream append --name orders --data '{"kind":"order"}' --header source=cli
//	strata stream fetch --name orders --start 0 --filter 'json.kind == "order"'
//	strata stream describe --name orders
//	strata stream list --prefix ord
//	strata stream warmup --name orders
//	strata stream trim --name orders --start-offset 10
//	strata stream destroy --name orders --confirm
//
//	strata controller breaker
//	strata controller health --service strata.controller
//	strata controller update-group --group g1 --link l1 --promoted
//
// Notes
//
//   - append creates the stream on first use. While the creation breaker is
//     open the server answers 429 with a Retry-After header.
//   - fetch prints one JSON object per record and the next offset to
//     stderr so output can be piped.
package client
