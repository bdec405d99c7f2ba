package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Common sentinel errors for quick checks
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when request input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal is returned when an internal error occurs.
	ErrInternal = errors.New("internal error")
)

// Error is the base interface for all custom errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
	stack   []uintptr
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// Stack returns the captured stack trace.
func (e *BaseError) Stack() []uintptr {
	return e.stack
}

func newBase(code, message string, cause error) *BaseError {
	return &BaseError{
		code:    code,
		message: message,
		cause:   cause,
		stack:   captureStack(2),
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []uintptr {
	const maxDepth = 32
	stack := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, stack)
	return stack[:n]
}

// StackTrace returns a formatted stack trace string.
func (e *BaseError) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return buf.String()
}

// ValidationError represents an input validation error.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: newBase(CodeValidation, message, nil),
		Field:     field,
		Value:     value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// NotFoundError represents a record not found error.
type NotFoundError struct {
	*BaseError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: newBase(CodeNotFound, fmt.Sprintf("%s not found", resource), nil),
		Resource:  resource,
		ID:        id,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// DuplicateSubjectError is returned when a subject already holds a record
// that may exist only once.
type DuplicateSubjectError struct {
	*BaseError
	Resource string
	Subject  string
}

// NewDuplicateSubjectError creates a new duplicate subject error.
func NewDuplicateSubjectError(resource, subject string) *DuplicateSubjectError {
	return &DuplicateSubjectError{
		BaseError: newBase(CodeDuplicateSubject, fmt.Sprintf("%s already exists for %s", resource, subject), nil),
		Resource:  resource,
		Subject:   subject,
	}
}

// AlreadyRevokedError is returned when revoking a revoked certification.
type AlreadyRevokedError struct {
	*BaseError
	Subject   string
	RevokedAt time.Time
}

// NewAlreadyRevokedError creates a new already revoked error.
func NewAlreadyRevokedError(subject string, revokedAt time.Time) *AlreadyRevokedError {
	return &AlreadyRevokedError{
		BaseError: newBase(CodeAlreadyRevoked, fmt.Sprintf("certification for %s already revoked", subject), nil),
		Subject:   subject,
		RevokedAt: revokedAt,
	}
}

// NotCertifiedError is returned when a practitioner has no active certification.
type NotCertifiedError struct {
	*BaseError
	Practitioner string
}

// NewNotCertifiedError creates a new not certified error.
func NewNotCertifiedError(practitioner, reason string) *NotCertifiedError {
	return &NotCertifiedError{
		BaseError:    newBase(CodeNotCertified, fmt.Sprintf("practitioner %s is not certified: %s", practitioner, reason), nil),
		Practitioner: practitioner,
	}
}

// BlobError reports a blob store failure. Its code is either
// CodeBlobStoreUnavailable or CodeBlobNotFound.
type BlobError struct {
	*BaseError
	Op      string
	Address string
}

// NewBlobUnavailableError creates a blob store unavailable error.
func NewBlobUnavailableError(op, address string, cause error) *BlobError {
	return &BlobError{
		BaseError: newBase(CodeBlobStoreUnavailable, fmt.Sprintf("blob store %s failed", op), cause),
		Op:        op,
		Address:   address,
	}
}

// NewBlobNotFoundError creates a blob not found error.
func NewBlobNotFoundError(address string, cause error) *BlobError {
	return &BlobError{
		BaseError: newBase(CodeBlobNotFound, fmt.Sprintf("blob %s not found", address), cause),
		Op:        "fetch",
		Address:   address,
	}
}

// LedgerError reports a ledger failure. Its code is either
// CodeLedgerRejected or CodeLedgerUnavailable.
type LedgerError struct {
	*BaseError
	Op      string
	RPCCode int
}

// NewLedgerRejectedError creates a non-retryable ledger error.
func NewLedgerRejectedError(op string, rpcCode int, cause error) *LedgerError {
	return &LedgerError{
		BaseError: newBase(CodeLedgerRejected, fmt.Sprintf("ledger rejected %s", op), cause),
		Op:        op,
		RPCCode:   rpcCode,
	}
}

// NewLedgerUnavailableError creates a retryable ledger error.
func NewLedgerUnavailableError(op string, cause error) *LedgerError {
	return &LedgerError{
		BaseError: newBase(CodeLedgerUnavailable, fmt.Sprintf("ledger unavailable during %s", op), cause),
		Op:        op,
	}
}

// IndexError reports a local index storage failure.
type IndexError struct {
	*BaseError
	Table string
}

// NewIndexWriteError creates an index write error.
func NewIndexWriteError(table string, cause error) *IndexError {
	return &IndexError{
		BaseError: newBase(CodeIndexWriteFailed, fmt.Sprintf("index write to %s failed", table), cause),
		Table:     table,
	}
}

// NewIndexReadError creates an index read error.
func NewIndexReadError(table string, cause error) *IndexError {
	return &IndexError{
		BaseError: newBase(CodeIndexReadFailed, fmt.Sprintf("index read from %s failed", table), cause),
		Table:     table,
	}
}

// PartialWriteError is returned when the ledger accepted a call but the
// local index was not updated. TxID is the accepted transaction.
type PartialWriteError struct {
	*BaseError
	TxID          string
	LedgerAddress string
}

// NewPartialWriteError creates a partial write error around an index failure.
func NewPartialWriteError(txID, ledgerAddress string, cause error) *PartialWriteError {
	return &PartialWriteError{
		BaseError:     newBase(CodeIndexWriteFailed, fmt.Sprintf("ledger transaction %s recorded but index update failed", txID), cause),
		TxID:          txID,
		LedgerAddress: ledgerAddress,
	}
}

// InternalError represents an internal server error.
type InternalError struct {
	*BaseError
	Operation string
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *InternalError {
	if message == "" {
		message = "internal error"
	}
	return &InternalError{
		BaseError: newBase(CodeInternal, message, cause),
	}
}

// WithOperation sets the operation context.
func (e *InternalError) WithOperation(op string) *InternalError {
	e.Operation = op
	return e
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code
// and adds the cause chain. Otherwise, it creates an InternalError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var e Error
	if errors.As(err, &e) {
		return &BaseError{
			code:    e.Code(),
			message: message,
			cause:   err,
			stack:   captureStack(1),
		}
	}

	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   err,
			stack:   captureStack(1),
		},
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
		stack:   captureStack(1),
	}
}

// Newf creates a new error with a formatted message.
func Newf(format string, args ...interface{}) error {
	return New(fmt.Sprintf(format, args...))
}
