package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by the placeholder for operations it cannot
	// serve. Reaching it means materialization was bypassed.
	ErrUnsupported = errors.New("stream: unsupported on noop stream")
	// ErrStreamNotFound means no durable stream exists with the given id.
	ErrStreamNotFound = errors.New("stream: not found")
	// ErrFenced means a newer epoch owns the stream.
	ErrFenced = errors.New("stream: fenced by newer epoch")
	// ErrReadOnly is returned for writes on a snapshot-read stream.
	ErrReadOnly = errors.New("stream: opened for snapshot read")
	// ErrStreamClosed is returned for operations on a closed stream.
	ErrStreamClosed = errors.New("stream: closed")
	// ErrOffsetOutOfRange is returned for fetches or trims outside
	// [startOffset, confirmOffset].
	ErrOffsetOutOfRange = errors.New("stream: offset out of range")
	// ErrInvalidArgument is returned for malformed requests such as empty
	// batches or a replica count below one.
	ErrInvalidArgument = errors.New("stream: invalid argument")
)

// IOError reports a storage failure for Op. It wraps the underlying cause.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("stream %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// AsIOError wraps err as an *IOError for op unless it already is one.
func AsIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Err: err}
}
