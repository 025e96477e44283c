package dotorm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conditions every package checks against with
// errors.Is, regardless of which structured type wraps them.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("dotorm: record not found")

	// ErrUpdateEmptyParams is returned when Update is called with no field
	// values and no relation commands.
	ErrUpdateEmptyParams = errors.New("dotorm: update called with no params")

	// ErrAccessDenied is returned when an access.Checker rejects an
	// operation.
	ErrAccessDenied = errors.New("dotorm: access denied")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("dotorm: cannot start a transaction within a transaction")

	// ErrUnsupportedDialect is returned by operations only implemented for
	// a subset of dialects, such as the recursive-closure query.
	ErrUnsupportedDialect = errors.New("dotorm: operation unsupported for this dialect")
)

// ConfigurationError reports an invalid field or model declaration, raised
// once at construction time rather than at request time.
type ConfigurationError struct {
	Kind string // field kind or model name the error belongs to
	Msg  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dotorm: %s: %s", e.Kind, e.Msg)
}

// NewConfigurationError returns a new ConfigurationError.
func NewConfigurationError(kind, msg string) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Msg: msg}
}

// IsConfigurationError reports whether err is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// NotFoundError represents a lookup that found nothing where a record was
// expected to exist, carrying the model label and id for diagnostics.
type NotFoundError struct {
	Model string
	ID    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dotorm: %s with id=%v not found", e.Model, e.ID)
}

// Is reports whether target is ErrNotFound, so errors.Is(err, ErrNotFound)
// matches any *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError returns a new NotFoundError for the given model and id.
func NewNotFoundError(model string, id any) *NotFoundError {
	return &NotFoundError{Model: model, ID: id}
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UpdateEmptyParamsError is returned when Update is called with no field
// values and no relation commands for the given model.
type UpdateEmptyParamsError struct {
	Model string
}

func (e *UpdateEmptyParamsError) Error() string {
	return fmt.Sprintf("dotorm: update %s called with no params", e.Model)
}

func (e *UpdateEmptyParamsError) Is(target error) bool {
	return target == ErrUpdateEmptyParams
}

// NewUpdateEmptyParamsError returns a new UpdateEmptyParamsError.
func NewUpdateEmptyParamsError(model string) *UpdateEmptyParamsError {
	return &UpdateEmptyParamsError{Model: model}
}

// FilterError reports a malformed filter expression: an unknown operator,
// a wrong triplet arity, or unbalanced parentheses.
type FilterError struct {
	Expr string
	Msg  string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("dotorm: invalid filter %q: %s", e.Expr, e.Msg)
}

// NewFilterError returns a new FilterError.
func NewFilterError(expr, msg string) *FilterError {
	return &FilterError{Expr: expr, Msg: msg}
}

// IsFilterError reports whether err is a *FilterError.
func IsFilterError(err error) bool {
	var e *FilterError
	return errors.As(err, &e)
}

// AccessDeniedError reports which checker rule rejected an operation.
type AccessDeniedError struct {
	Model string
	Op    string
	Rule  string
}

func (e *AccessDeniedError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("dotorm: access denied: %s on %s (rule: %s)", e.Op, e.Model, e.Rule)
	}
	return fmt.Sprintf("dotorm: access denied: %s on %s", e.Op, e.Model)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

// NewAccessDeniedError returns a new AccessDeniedError.
func NewAccessDeniedError(model, op, rule string) *AccessDeniedError {
	return &AccessDeniedError{Model: model, Op: op, Rule: rule}
}

// IsAccessDenied reports whether err is or wraps an AccessDeniedError.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// InvariantError reports a condition the ORM runtime guarantees can never
// happen in correct code; seeing one means a bug in the caller or in this
// package, not a user-correctable input error.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("dotorm: invariant violated: %s", e.Msg)
}

// NewInvariantError returns a new InvariantError.
func NewInvariantError(msg string) *InvariantError {
	return &InvariantError{Msg: msg}
}

// ConstraintError represents a database constraint violation surfaced by
// the driver, such as a unique or foreign-key violation.
type ConstraintError struct {
	Msg  string
	wrap error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("dotorm: constraint failed: %s", e.Msg)
}

func (e *ConstraintError) Unwrap() error { return e.wrap }

// NewConstraintError returns a new ConstraintError wrapping the driver
// error.
func NewConstraintError(msg string, wrap error) *ConstraintError {
	return &ConstraintError{Msg: msg, wrap: wrap}
}

// IsConstraintError reports whether err is a *ConstraintError.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e)
}

// DriverError wraps a low-level database/sql error with the query and
// operation that produced it.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("dotorm: %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// NewDriverError returns a new DriverError.
func NewDriverError(op string, err error) *DriverError {
	return &DriverError{Op: op, Err: err}
}

// AggregateError collects multiple errors from a single batched operation,
// such as a bulk insert where several rows fail independently.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "dotorm: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("dotorm: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns an *AggregateError for the non-nil errors in
// errs, or nil if none are non-nil, or the single error itself if exactly
// one is non-nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		return &AggregateError{Errors: filtered}
	}
}
