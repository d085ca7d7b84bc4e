// Package serverrun exposes the Run entrypoint used by the CLI to start the
// strata runtime with gRPC and HTTP servers, handling lifecycle and shutdown.
//
// Example:
//
//	opts := serverrun.Options{ConfigPath: "strata.yaml", HTTPAddr: ":7080"}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
