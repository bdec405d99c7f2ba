package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPError is the failure body returned by every API handler.
type HTTPError struct {
	Status      int    `json:"-"`
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	TxSignature string `json:"txSignature,omitempty"`
	Partial     bool   `json:"partial,omitempty"`
	RequestID   string `json:"requestId,omitempty"`
}

// StatusCode returns the HTTP status code for an error.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return codeToHTTPStatus(customErr.Code())
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// codeToHTTPStatus maps error codes to HTTP status codes.
func codeToHTTPStatus(code string) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeValidation, CodeDuplicateSubject, CodeAlreadyRevoked, CodeNotCertified:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBlobStoreUnavailable, CodeBlobNotFound,
		CodeLedgerRejected, CodeLedgerUnavailable,
		CodeIndexWriteFailed, CodeIndexReadFailed,
		CodeConfigError, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts an error to the uniform failure body.
func ToHTTPError(err error, requestID string) *HTTPError {
	if err == nil {
		return &HTTPError{Status: http.StatusOK, Success: true, Code: CodeOK, RequestID: requestID}
	}

	httpErr := &HTTPError{
		Status:    StatusCode(err),
		Error:     err.Error(),
		Code:      GetErrorCode(err),
		RequestID: requestID,
	}
	if partial, ok := AsPartialWrite(err); ok {
		httpErr.TxSignature = partial.TxID
		httpErr.Partial = true
	}
	return httpErr
}

// WriteHTTPError writes an error response to an http.ResponseWriter.
func WriteHTTPError(w http.ResponseWriter, err error, requestID string) {
	httpErr := ToHTTPError(err, requestID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Status)
	_ = json.NewEncoder(w).Encode(httpErr)
}
