package errors

// Error codes for categorizing errors.
// Every code maps to exactly one HTTP status in codeToHTTPStatus.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeNotFound indicates a record was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeConfigError indicates a configuration error.
	CodeConfigError = "CONFIG_ERROR"

	// Domain-specific error codes

	// CodeDuplicateSubject indicates a certification already exists for the subject.
	CodeDuplicateSubject = "DUPLICATE_SUBJECT"

	// CodeAlreadyRevoked indicates the certification was revoked earlier.
	CodeAlreadyRevoked = "ALREADY_REVOKED"

	// CodeNotCertified indicates a practitioner lacks an active certification.
	CodeNotCertified = "PRACTITIONER_NOT_CERTIFIED"

	// CodeBlobStoreUnavailable indicates the blob store could not be reached
	// or refused the request.
	CodeBlobStoreUnavailable = "BLOB_STORE_UNAVAILABLE"

	// CodeBlobNotFound indicates the blob store has no content for an address.
	CodeBlobNotFound = "BLOB_NOT_FOUND"

	// CodeLedgerRejected indicates the ledger refused a call. Not retryable.
	CodeLedgerRejected = "LEDGER_REJECTED"

	// CodeLedgerUnavailable indicates a transient ledger transport failure.
	CodeLedgerUnavailable = "LEDGER_UNAVAILABLE"

	// CodeIndexWriteFailed indicates the local index could not be written.
	CodeIndexWriteFailed = "INDEX_WRITE_FAILED"

	// CodeIndexReadFailed indicates the local index could not be read.
	CodeIndexReadFailed = "INDEX_READ_FAILED"
)

// ErrorCategory represents a high-level error category.
type ErrorCategory string

const (
	// CategoryClient indicates a client-side error (4xx).
	CategoryClient ErrorCategory = "CLIENT_ERROR"

	// CategoryServer indicates a server-side error (5xx).
	CategoryServer ErrorCategory = "SERVER_ERROR"

	// CategoryDependency indicates a failure in the blob store or ledger.
	CategoryDependency ErrorCategory = "DEPENDENCY_ERROR"
)

// GetCategory returns the category for an error code.
func GetCategory(code string) ErrorCategory {
	switch code {
	case CodeValidation, CodeNotFound, CodeDuplicateSubject,
		CodeAlreadyRevoked, CodeNotCertified:
		return CategoryClient

	case CodeBlobStoreUnavailable, CodeBlobNotFound,
		CodeLedgerRejected, CodeLedgerUnavailable:
		return CategoryDependency

	default:
		return CategoryServer
	}
}

// IsRetryable returns true if an error with the given code should be retried.
func IsRetryable(code string) bool {
	switch code {
	case CodeBlobStoreUnavailable, CodeLedgerUnavailable:
		return true
	default:
		return false
	}
}

// IsClientError returns true if the error is a client error (4xx).
func IsClientError(code string) bool {
	return GetCategory(code) == CategoryClient
}
