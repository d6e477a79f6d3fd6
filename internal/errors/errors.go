// Package errors defines the error taxonomy shared by every vaultsync stage.
//
// All item-level errors are non-fatal to a batch: the engines collect them per
// item and keep going. Callers classify with errors.Is against the sentinels
// below or errors.As against the typed errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors matched by the typed errors through Is.
var (
	ErrNormalization  = errors.New("normalization failed")
	ErrCreateConflict = errors.New("create conflict")
	ErrConnectivity   = errors.New("host unreachable")
	ErrBackend        = errors.New("backend failure")
	ErrAmbiguous      = errors.New("ambiguous match")
	ErrNotFound       = errors.New("not found")
	ErrWaitTimeout    = errors.New("wait timed out")
	ErrUnsupported    = errors.New("not supported by backend")
)

// NormalizationError reports a hierarchy string that could not be mapped
// under the configured root. The record is skipped.
type NormalizationError struct {
	Raw    string
	Root   string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalizing %q under root %q: %s", e.Raw, e.Root, e.Reason)
}

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

// CreateConflictError reports that the backing store already holds an object
// with the same name and parent but a different shape.
type CreateConflictError struct {
	Name   string
	Parent string
	Err    error
}

func (e *CreateConflictError) Error() string {
	msg := fmt.Sprintf("create %q under %q: already exists", e.Name, e.Parent)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CreateConflictError) Is(target error) bool { return target == ErrCreateConflict }

func (e *CreateConflictError) Unwrap() error { return e.Err }

// ConnectivityError reports a failed reachability probe.
type ConnectivityError struct {
	Host  string
	Ports []int
	Err   error
}

func (e *ConnectivityError) Error() string {
	ports := make([]string, len(e.Ports))
	for i, p := range e.Ports {
		ports[i] = fmt.Sprint(p)
	}
	msg := fmt.Sprintf("%s unreachable on port(s) %s", e.Host, strings.Join(ports, ","))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

func (e *ConnectivityError) Unwrap() error { return e.Err }

// BackendError wraps any failure returned by a backing store call.
type BackendError struct {
	Backend    string
	Operation  string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend: %s failed (status %d): %v", e.Backend, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend: %s failed: %v", e.Backend, e.Operation, e.Err)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError wraps err unless it is nil or already classified.
func NewBackendError(backend, operation string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) || errors.Is(err, ErrCreateConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &BackendError{Backend: backend, Operation: operation, Err: err}
}

// AmbiguityError reports a name lookup that matched more than one object.
type AmbiguityError struct {
	Kind    string
	Name    string
	Matches int
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("%s %q is ambiguous: %d matches", e.Kind, e.Name, e.Matches)
}

func (e *AmbiguityError) Is(target error) bool { return target == ErrAmbiguous }

// NotFoundError reports a name lookup with no match.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// WaitTimeoutError reports a bounded wait that ran out before its condition held.
type WaitTimeoutError struct {
	What    string
	Want    string
	Got     string
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("waiting for %s to become %q: still %q after %s", e.What, e.Want, e.Got, e.Timeout)
}

func (e *WaitTimeoutError) Is(target error) bool { return target == ErrWaitTimeout }

// UnsupportedError reports a capability the configured backend does not offer.
type UnsupportedError struct {
	Backend    string
	Capability string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s backend does not support %s", e.Backend, e.Capability)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// ItemError ties an error to the job and item it occurred on.
type ItemError struct {
	Job  string
	Item string
	Err  error
}

func (e ItemError) Error() string {
	if e.Item == "" {
		return e.Job + ": " + e.Err.Error()
	}
	return e.Job + ": " + e.Item + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }

// Category returns a short label for metrics and summaries.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNormalization):
		return "normalization"
	case errors.Is(err, ErrCreateConflict):
		return "conflict"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrAmbiguous):
		return "ambiguous"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrWaitTimeout):
		return "timeout"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	default:
		return "backend"
	}
}

// Skipped reports whether err marks an item that was deliberately left alone
// rather than one whose mutation failed.
func Skipped(err error) bool {
	return errors.Is(err, ErrNormalization) || errors.Is(err, ErrConnectivity) || errors.Is(err, ErrAmbiguous)
}

// Is, As and New re-export the standard library helpers so callers importing
// this package under its own name keep a single import.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
