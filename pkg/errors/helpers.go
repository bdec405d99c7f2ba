package errors

import "errors"

// IsNotFound checks if an error indicates a record was not found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr) || errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr) || errors.Is(err, ErrInvalidInput)
}

// IsDuplicateSubject checks if an error is a duplicate subject error.
func IsDuplicateSubject(err error) bool {
	var dupErr *DuplicateSubjectError
	return errors.As(err, &dupErr)
}

// IsAlreadyRevoked checks if an error is an already revoked error.
func IsAlreadyRevoked(err error) bool {
	var revokedErr *AlreadyRevokedError
	return errors.As(err, &revokedErr)
}

// IsNotCertified checks if an error is a practitioner certification error.
func IsNotCertified(err error) bool {
	var certErr *NotCertifiedError
	return errors.As(err, &certErr)
}

// IsBlobNotFound checks if an error indicates missing blob content.
func IsBlobNotFound(err error) bool {
	return hasCode(err, CodeBlobNotFound)
}

// IsBlobUnavailable checks if an error indicates the blob store failed.
func IsBlobUnavailable(err error) bool {
	return hasCode(err, CodeBlobStoreUnavailable)
}

// IsLedgerRejected checks if the ledger refused a call.
func IsLedgerRejected(err error) bool {
	return hasCode(err, CodeLedgerRejected)
}

// IsLedgerUnavailable checks if the ledger could not be reached.
func IsLedgerUnavailable(err error) bool {
	return hasCode(err, CodeLedgerUnavailable)
}

// AsPartialWrite returns the partial write error in err's chain, if any.
func AsPartialWrite(err error) (*PartialWriteError, bool) {
	var partial *PartialWriteError
	if errors.As(err, &partial) {
		return partial, true
	}
	return nil, false
}

// IsInternal checks if an error is an internal error.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}

	var internalErr *InternalError
	return errors.As(err, &internalErr) || errors.Is(err, ErrInternal)
}

// ShouldRetry checks if an operation should be retried based on the error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return IsRetryable(customErr.Code())
	}

	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Code()
	}

	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsValidation(err):
		return CodeValidation
	default:
		return CodeInternal
	}
}

// GetErrorMessage extracts a human-readable message from an error.
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Message()
	}

	return err.Error()
}

// Cause returns the underlying cause of an error.
// It unwraps the error chain until it finds the root cause.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		underlying := unwrapper.Unwrap()
		if underlying == nil {
			return err
		}
		err = underlying
	}
}

// hasCode walks the chain and reports whether any typed error carries code.
func hasCode(err error, code string) bool {
	for err != nil {
		if e, ok := err.(Error); ok && e.Code() == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
