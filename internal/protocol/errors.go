package protocol

import (
	"context"
	"errors"

	"github.com/rzbill/strata/internal/catalog"
	"github.com/rzbill/strata/internal/controller"
	"github.com/rzbill/strata/internal/stream"
)

// ErrorCode is a wire error code. Values follow the Kafka numbering.
type ErrorCode int16

const (
	CodeNone                    ErrorCode = 0
	CodeUnknownServerError      ErrorCode = -1
	CodeUnsupportedVersion      ErrorCode = 35
	CodeInvalidRequest          ErrorCode = 42
	CodeFencedEpoch             ErrorCode = 78
	CodeThrottlingQuotaExceeded ErrorCode = 89
	CodeResourceNotFound        ErrorCode = 91
	CodeRequestTimedOut         ErrorCode = 7
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "NONE"
	case CodeUnknownServerError:
		return "UNKNOWN_SERVER_ERROR"
	case CodeUnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case CodeInvalidRequest:
		return "INVALID_REQUEST"
	case CodeFencedEpoch:
		return "FENCED_LEADER_EPOCH"
	case CodeThrottlingQuotaExceeded:
		return "THROTTLING_QUOTA_EXCEEDED"
	case CodeResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case CodeRequestTimedOut:
		return "REQUEST_TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrVersion is returned for versions outside [MinVersion, MaxVersion].
	ErrVersion = errors.New("protocol: unsupported version")
	// ErrMalformed is returned for buffers that do not decode.
	ErrMalformed = errors.New("protocol: malformed message")
)

// CodeOf maps an error to its wire code. nil maps to CodeNone.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrVersion):
		return CodeUnsupportedVersion
	case errors.Is(err, ErrMalformed),
		errors.Is(err, stream.ErrInvalidArgument),
		errors.Is(err, catalog.ErrInvalidName):
		return CodeInvalidRequest
	case errors.Is(err, stream.ErrFenced):
		return CodeFencedEpoch
	case errors.Is(err, controller.ErrThrottled):
		return CodeThrottlingQuotaExceeded
	case errors.Is(err, stream.ErrStreamNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return CodeResourceNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return CodeRequestTimedOut
	default:
		return CodeUnknownServerError
	}
}
