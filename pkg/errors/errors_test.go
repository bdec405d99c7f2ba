package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestValidationError(t *testing.T) {
	tests := []struct {
		name          string
		field         string
		message       string
		value         interface{}
		expectedError string
	}{
		{
			name:          "with field",
			field:         "logType",
			message:       "must be PatientHealth or Fitness",
			value:         "Sleep",
			expectedError: "validation error: logType: must be PatientHealth or Fitness",
		},
		{
			name:          "without field",
			field:         "",
			message:       "invalid input",
			value:         nil,
			expectedError: "validation error: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, tt.value)
			if err.Error() != tt.expectedError {
				t.Errorf("Expected error %q, got %q", tt.expectedError, err.Error())
			}
			if err.Code() != CodeValidation {
				t.Errorf("Expected code %q, got %q", CodeValidation, err.Code())
			}
			if !IsValidation(err) {
				t.Error("Expected IsValidation to be true")
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("user log", "0xabc/3")
	if err.Error() != "user log '0xabc/3' not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !IsNotFound(Wrap(err, "context")) {
		t.Error("Expected wrapped NotFoundError to be detected")
	}
	if !IsNotFound(fmt.Errorf("lookup: %w", ErrNotFound)) {
		t.Error("Expected sentinel to be detected")
	}
}

func TestDomainErrorCodes(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  Error
		code string
	}{
		{"duplicate", NewDuplicateSubjectError("doctor certification", "0x1"), CodeDuplicateSubject},
		{"already revoked", NewAlreadyRevokedError("0x1", time.Unix(10, 0)), CodeAlreadyRevoked},
		{"not certified", NewNotCertifiedError("0x1", "revoked"), CodeNotCertified},
		{"blob unavailable", NewBlobUnavailableError("store", "", cause), CodeBlobStoreUnavailable},
		{"blob not found", NewBlobNotFoundError("bafy", cause), CodeBlobNotFound},
		{"ledger rejected", NewLedgerRejectedError("submit", 3, cause), CodeLedgerRejected},
		{"ledger unavailable", NewLedgerUnavailableError("submit", cause), CodeLedgerUnavailable},
		{"index write", NewIndexWriteError("user_logs", cause), CodeIndexWriteFailed},
		{"partial write", NewPartialWriteError("0xtx", "0xaddr", cause), CodeIndexWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code() != tt.code {
				t.Errorf("Expected code %q, got %q", tt.code, tt.err.Code())
			}
			if GetErrorCode(tt.err) != tt.code {
				t.Errorf("GetErrorCode = %q, want %q", GetErrorCode(tt.err), tt.code)
			}
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	base := NewLedgerUnavailableError("read_state", errors.New("timeout"))
	wrapped := fmt.Errorf("verify doctor: %w", Wrap(base, "read certification account"))

	if !IsLedgerUnavailable(wrapped) {
		t.Error("Expected ledger unavailable after wrapping")
	}
	if IsLedgerRejected(wrapped) {
		t.Error("Did not expect ledger rejected")
	}
	if !ShouldRetry(wrapped) {
		t.Error("Expected wrapped unavailable error to be retryable")
	}
}

func TestAsPartialWrite(t *testing.T) {
	err := fmt.Errorf("create consultation: %w", NewPartialWriteError("0xtx", "0xaddr", NewIndexWriteError("consultations", errors.New("locked"))))

	partial, ok := AsPartialWrite(err)
	if !ok {
		t.Fatal("Expected partial write error")
	}
	if partial.TxID != "0xtx" || partial.LedgerAddress != "0xaddr" {
		t.Errorf("unexpected partial write fields: %+v", partial)
	}
	if !strings.Contains(err.Error(), "locked") {
		t.Errorf("Expected cause in message, got %q", err.Error())
	}
	if _, ok := AsPartialWrite(NewIndexWriteError("x", nil)); ok {
		t.Error("plain index error must not be reported as partial write")
	}
}

func TestWrapNonCustomError(t *testing.T) {
	err := Wrap(errors.New("raw"), "context")
	if !IsInternal(err) {
		t.Error("Expected plain errors to be wrapped as internal")
	}
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestStackTrace(t *testing.T) {
	err := NewValidationError("field", "bad", nil)
	if len(err.Stack()) == 0 {
		t.Fatal("Expected captured stack")
	}
	if !strings.Contains(err.StackTrace(), "TestStackTrace") {
		t.Errorf("Expected stack to include caller, got %q", err.StackTrace())
	}
}
