// Package errs defines common error variables used across the application.
package errs

import (
	"errors"
	"fmt"
)

// Startup errors.
var (
	// ErrConfig indicates missing or invalid configuration. Fatal at startup.
	ErrConfig = errors.New("config error")
	// ErrWorkspaceLocked indicates another process already owns the data directories.
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Fetch errors.
var (
	// ErrToolNotFound indicates that the retrieval or transcoding binary is missing. Aborts the batch.
	ErrToolNotFound = errors.New("tool not found")
	// ErrNonZeroExit indicates that a subprocess exited with a non-zero code.
	ErrNonZeroExit = errors.New("non-zero exit")
	// ErrTimeout indicates that a subprocess exceeded its time budget.
	ErrTimeout = errors.New("timeout")
)

// Delivery and transport errors.
var (
	// ErrDelivery indicates that a produced file could not be sent.
	ErrDelivery = errors.New("delivery failed")
	// ErrTransportEdit indicates that a status message could not be edited.
	ErrTransportEdit = errors.New("status edit failed")
	// ErrNoDeliverables indicates that the download phase produced no files.
	ErrNoDeliverables = errors.New("nothing to deliver")
)

// Session and pipeline errors.
var (
	// ErrInvalidState indicates input received outside the expected session phase.
	ErrInvalidState = errors.New("invalid state")
	// ErrBusy indicates input received while a batch is still processing.
	ErrBusy = errors.New("batch already processing")
	// ErrQueueNotDrained indicates a queue still holds items from an earlier run.
	ErrQueueNotDrained = errors.New("queue not drained")
	// ErrWorkspaceBusy indicates the requester's working directory is already owned by a batch.
	ErrWorkspaceBusy = errors.New("workspace already in use")
)

// Dependency errors.
var (
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform is not supported.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNoProxiesAvailable indicates that no proxies are available.
	ErrNoProxiesAvailable = errors.New("no proxies available")
)

// FetchKind classifies a FetchError.
type FetchKind string

// Fetch error kinds.
const (
	FetchToolNotFound FetchKind = "tool_not_found"
	FetchNonZeroExit  FetchKind = "non_zero_exit"
	FetchTimeout      FetchKind = "timeout"
)

// FetchError describes one failed subprocess invocation for one URL.
type FetchError struct {
	Kind   FetchKind
	Tool   string
	Code   int
	Stderr string
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchToolNotFound:
		return fmt.Sprintf("%s: %s", e.Tool, ErrToolNotFound)
	case FetchTimeout:
		return fmt.Sprintf("%s: %s", e.Tool, ErrTimeout)
	default:
		return fmt.Sprintf("%s: exit code %d: %s", e.Tool, e.Code, e.Stderr)
	}
}

// Unwrap exposes both the sentinel for the kind and the underlying cause.
func (e *FetchError) Unwrap() []error {
	var sentinel error

	switch e.Kind {
	case FetchToolNotFound:
		sentinel = ErrToolNotFound
	case FetchTimeout:
		sentinel = ErrTimeout
	default:
		sentinel = ErrNonZeroExit
	}

	if e.Err == nil {
		return []error{sentinel}
	}

	return []error{sentinel, e.Err}
}

// IsFatal reports whether err must abort the whole batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}
