// Package scanner provides the local snapshot side of a sync pass: one flat
// directory listed, read and written as SyncItems.
package scanner

import (
	"errors"
	"fmt"
	"os"
)

// Error categories for classification
const (
	ErrorCategoryFS      = "filesystem" // File access, permissions
	ErrorCategoryName    = "name"       // Unsafe or invalid file names
	ErrorCategoryUnknown = "unknown"
)

// Common error types
var (
	ErrAccessDenied = errors.New("access denied")
	ErrFileNotFound = errors.New("file not found")
	ErrIsDirectory  = errors.New("is a directory")
	ErrInvalidPath  = errors.New("invalid path")
	ErrWriteFailed  = errors.New("file write failed")
)

// ScanError represents a failed file operation with context
type ScanError struct {
	Category  string
	Path      string
	Operation string
	Err       error
}

// Error implements the error interface
func (e *ScanError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error during %s for %s: %v", e.Category, e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("%s error during %s: %v", e.Category, e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError creates a ScanError, mapping os errors onto the package sentinels
func NewScanError(path, operation string, err error) *ScanError {
	switch {
	case os.IsNotExist(err):
		err = fmt.Errorf("%w: %v", ErrFileNotFound, err)
	case os.IsPermission(err):
		err = fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return &ScanError{
		Category:  categorizeError(err),
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}

func categorizeError(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrFileNotFound),
		errors.Is(err, ErrIsDirectory),
		errors.Is(err, ErrWriteFailed):
		return ErrorCategoryFS
	case errors.Is(err, ErrInvalidPath):
		return ErrorCategoryName
	default:
		return ErrorCategoryUnknown
	}
}
