package storage

import (
	"errors"
	"fmt"
)

// ErrObjectNotFound is matched by provider errors for missing keys.
var ErrObjectNotFound = errors.New("object not found")

// Provider error codes that are not native API codes.
const (
	CodeTimeout  = "Timeout"
	CodeCanceled = "Canceled"
	CodeUnknown  = "Unknown"
)

var notFoundCodes = map[string]bool{
	"NoSuchKey": true,
	"NotFound":  true,
	"404":       true,
}

// ProviderError is a normalized failure of one provider call.
type ProviderError struct {
	Provider string
	Op       string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s failed: %s: %s", e.Provider, e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Op, e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches ErrObjectNotFound for missing-key codes.
func (e *ProviderError) Is(target error) bool {
	return target == ErrObjectNotFound && notFoundCodes[e.Code]
}

// ErrorCode extracts the provider code from err, or CodeUnknown.
func ErrorCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return CodeUnknown
}
