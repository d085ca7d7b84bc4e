package streamsvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// celFilter wraps a compiled CEL program evaluated per fetched record. When
// disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("stream_id", cel.IntType),
		cel.Variable("offset", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// parsed JSON payload, null when the payload is not JSON
		cel.Variable("json", cel.DynType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return celFilter{}, &filterTypeError{expr: expr, got: ast.OutputType().String()}
	}
	prog, err := env.Program(ast)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

type filterTypeError struct{ expr, got string }

func (e *filterTypeError) Error() string {
	return "filter " + e.expr + " must evaluate to bool, got " + e.got
}

// Eval reports whether rec matches. Evaluation errors count as no match.
func (f celFilter) Eval(streamID int64, rec FetchedRecord) bool {
	if !f.enabled {
		return true
	}
	var doc any
	_ = json.Unmarshal(rec.Payload, &doc)
	headers := rec.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"stream_id": streamID,
		"offset":    rec.Offset,
		"ts_ms":     rec.TimestampMs,
		"size":      int64(len(rec.Payload)),
		"text":      string(rec.Payload),
		"json":      doc,
		"headers":   headers,
		"now_ms":    time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
