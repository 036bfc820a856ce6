package domain

import (
	"errors"
	"fmt"
)

// Configuration errors: the run was started with settings that can never
// succeed. They abort before any input is read.
var (
	ErrUnsupportedCountry  = errors.New("unsupported country code")
	ErrUnsupportedCurrency = errors.New("unsupported currency code")
)

// Schema errors: the input table or message content is malformed as a
// whole. They abort before any provider call and before any output is
// written.
var (
	// ErrRaggedRow is returned when a data row has more non-empty cells
	// than the header has columns.
	ErrRaggedRow = errors.New("row is wider than the header")

	// ErrMissingColumns is returned when required columns are absent.
	ErrMissingColumns = errors.New("input is missing required columns")

	// ErrMissingNames is returned when any payee has an empty first_name.
	ErrMissingNames = errors.New("some names are missing")

	// ErrMalformedEmail is returned when any receiver_email is not well-formed.
	ErrMalformedEmail = errors.New("not all email addresses are well-formed")

	// ErrDuplicateItemID is returned when an item_id repeats within a batch.
	ErrDuplicateItemID = errors.New("not all transaction ids are unique within batches")

	// ErrNonNumericValue is returned when a payout value is not a number.
	ErrNonNumericValue = errors.New("payout values are not numeric")

	// ErrBatchTooLarge is returned when a batch exceeds the provider limit.
	ErrBatchTooLarge = errors.New("some batches are too large")

	ErrEmptyMessage   = errors.New("message text is empty")
	ErrEmptySubject   = errors.New("message subject is empty")
	ErrSubjectTooLong = errors.New("message subject too long")
	ErrBodyTooLong    = errors.New("message text too long")

	// ErrUnknownStudy is returned when no payout template matches the study.
	ErrUnknownStudy = errors.New("no message template for study")
)

// ConfigError marks a non-recoverable configuration problem.
type ConfigError struct {
	reason error
}

func (e ConfigError) Error() string { return e.reason.Error() }

func (e ConfigError) Unwrap() error { return e.reason }

// SchemaError marks input data that must not be dispatched.
type SchemaError struct {
	reason error
}

func (e SchemaError) Error() string { return e.reason.Error() }

func (e SchemaError) Unwrap() error { return e.reason }

// NewConfigError wraps sentinel with a formatted detail.
func NewConfigError(sentinel error, format string, args ...any) error {
	return ConfigError{reason: wrapDetail(sentinel, format, args...)}
}

// NewSchemaError wraps sentinel with a formatted detail.
func NewSchemaError(sentinel error, format string, args ...any) error {
	return SchemaError{reason: wrapDetail(sentinel, format, args...)}
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var ce ConfigError
	return errors.As(err, &ce)
}

// IsSchemaError reports whether err carries a SchemaError.
func IsSchemaError(err error) bool {
	var se SchemaError
	return errors.As(err, &se)
}

func wrapDetail(sentinel error, format string, args ...any) error {
	if format == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
