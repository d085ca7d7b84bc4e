package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcAddrFromEnv returns the gRPC server address from STRATA_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("STRATA_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:7070"
}

// dialGRPCContext dials the strata gRPC endpoint with insecure transport for local/dev.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// decodedRecord returns a map with offset and one of payload_json,
// payload_text, or payload_b64.
func decodedRecord(offset int64, headers map[string]string, payload []byte) map[string]any {
	out := map[string]any{"offset": offset}
	if len(headers) > 0 {
		out["headers"] = headers
	}
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

// parseHeaders turns repeated key=value flags and an optional JSON object
// into a header map. JSON entries win on conflict.
func parseHeaders(kvs []string, headerJSON string) (map[string]string, error) {
	if len(kvs) == 0 && headerJSON == "" {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --header %q; expected key=value", kv)
		}
		out[k] = v
	}
	if headerJSON != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(headerJSON), &m); err != nil {
			return nil, fmt.Errorf("invalid --header-json: %w", err)
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
