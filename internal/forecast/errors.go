package forecast

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownModel is returned when a model name is not registered.
	ErrUnknownModel = errors.New("unknown model")

	// ErrNotTracked is returned when a registered model has no provider
	// configured.
	ErrNotTracked = errors.New("model not tracked")

	// ErrCatalogUnavailable wraps network or parse failures while listing
	// days, cycles or files.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrCursorNotListed is returned when the cursor no longer lines up
	// with the catalog (its cycle or day is absent from a listing).
	ErrCursorNotListed = errors.New("cursor not in catalog")

	ErrDownloadFailure   = errors.New("download failure")
	ErrConversionFailure = errors.New("conversion failure")
	ErrArchiveFailure    = errors.New("archive failure")

	// ErrNoNowcast is returned when no (day, cycle) pair is listed at all.
	ErrNoNowcast = errors.New("no published forecast cycle")
)

// ConfigurationError is the only failure surfaced to the caller of a
// session: it is raised before streaming begins and is never retried.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

func configErr(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsRecoverable reports whether a session should recover from err and keep
// polling. Configuration errors and cancellation are not recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func catalogErr(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrCatalogUnavailable, op, err)
}
