package sync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorKind is the coarse taxonomy every sync error falls into
type ErrorKind string

const (
	// KindNetwork covers transport failures and unexpected HTTP status codes
	KindNetwork ErrorKind = "network"
	// KindSync covers domain failures: misconfiguration, missing resources
	KindSync ErrorKind = "sync"
	// KindValidation covers config shape errors, raised before any I/O
	KindValidation ErrorKind = "validation"
)

// Kind sentinels, usable with errors.Is
var (
	ErrNetwork    = errors.New("network error")
	ErrSync       = errors.New("sync error")
	ErrValidation = errors.New("validation error")
)

// Common sync errors
var (
	ErrProviderNotRegistered = errors.New("provider not registered")
	ErrMissingSetting        = errors.New("missing required setting")
	ErrInvalidURL            = errors.New("url must start with http:// or https://")
	ErrNotFound              = errors.New("not found")
	ErrInvalidStrategy       = errors.New("invalid conflict strategy")
	ErrInvalidDirection      = errors.New("invalid sync direction")

	ErrConflictNotFound  = errors.New("conflict not found")
	ErrInvalidResolution = errors.New("invalid resolution")

	ErrSyncInProgress = errors.New("sync already in progress")
	ErrEngineClosed   = errors.New("sync engine is closed")
	ErrSyncAborted    = errors.New("sync was aborted")

	ErrInvalidTransition = errors.New("invalid item status transition")
)

// Error carries the kind of a failure along with the operation and status code
type Error struct {
	Kind       ErrorKind
	Op         string
	Path       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrSync:
		return e.Kind == KindSync
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// NetworkError wraps a transport failure
func NetworkError(op, path string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Path: path, Err: err}
}

// StatusError reports an unexpected HTTP status code
func StatusError(op, path string, code int) error {
	return &Error{Kind: KindNetwork, Op: op, Path: path, StatusCode: code}
}

// SyncErr wraps a domain failure
func SyncErr(op string, err error) error {
	return &Error{Kind: KindSync, Op: op, Err: err}
}

// ValidationError wraps a config shape failure
func ValidationError(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" if err is not a sync error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCodeOf returns the HTTP status carried by err, 0 if none
func StatusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// ErrorCategory classifies error types
type ErrorCategory string

const (
	ErrorCategoryNetwork    ErrorCategory = "network"
	ErrorCategoryAuth       ErrorCategory = "auth"
	ErrorCategoryServer     ErrorCategory = "server"
	ErrorCategoryClient     ErrorCategory = "client"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategorySync       ErrorCategory = "sync"
	ErrorCategoryUnknown    ErrorCategory = "unknown"
)

// ClassifyError analyzes an error and returns its category and whether it's retryable
func ClassifyError(err error) (ErrorCategory, bool) {
	if err == nil {
		return ErrorCategoryUnknown, false
	}

	if errors.Is(err, context.Canceled) {
		return ErrorCategoryUnknown, false
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation:
			return ErrorCategoryValidation, false
		case KindSync:
			return ErrorCategorySync, false
		}

		switch {
		case e.StatusCode == 401 || e.StatusCode == 403:
			return ErrorCategoryAuth, false
		case e.StatusCode == 429 || e.StatusCode >= 500:
			return ErrorCategoryServer, true
		case e.StatusCode >= 400:
			return ErrorCategoryClient, false
		}
		return ErrorCategoryNetwork, true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryNetwork, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorCategoryNetwork, true
	}
	if IsNetworkError(err) {
		return ErrorCategoryNetwork, true
	}

	return ErrorCategoryUnknown, false
}

// IsNetworkError returns true if the message looks like a transport failure
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"dial tcp",
		"no route to host",
		"host is down",
		"broken pipe",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// IsTransientError returns true if the error is transient and should be retried
func IsTransientError(err error) bool {
	_, retryable := ClassifyError(err)
	return retryable
}

// WrapSyncError wraps an error with sync context
func WrapSyncError(err error, name, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed for %s: %w", operation, name, err)
}

// timeNow is a variable to allow mocking in tests
var timeNow = func() time.Time {
	return time.Now()
}
