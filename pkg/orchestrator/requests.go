package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/httputil"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/ledger"
)

// CertifyRequest issues a certification to a doctor.
type CertifyRequest struct {
	DoctorAddress  string          `json:"doctorAddress"`
	DoctorName     string          `json:"doctorName"`
	Specialization string          `json:"specialization"`
	LicenseNumber  string          `json:"licenseNumber"`
	CredentialData json.RawMessage `json:"credentialData,omitempty"`
}

// CertifyResult is returned by CertifyDoctor.
type CertifyResult struct {
	Cert        *index.CertificationRecord `json:"cert"`
	TxSignature string                     `json:"txSignature"`
	IPFSURL     string                     `json:"ipfsUrl"`
}

// RevokeRequest revokes a doctor's certification.
type RevokeRequest struct {
	DoctorAddress string `json:"doctorAddress"`
	Reason        string `json:"reason"`
}

// RevokeResult is returned by RevokeCertification.
type RevokeResult struct {
	TxSignature string `json:"txSignature"`
}

// LogRequest appends a health or fitness log for a user.
type LogRequest struct {
	UserAddress     string          `json:"userAddress"`
	LogType         string          `json:"logType"`
	HealthData      json.RawMessage `json:"healthData"`
	Notes           string          `json:"notes"`
	ActivityType    *string         `json:"activityType,omitempty"`
	DurationMinutes *uint32         `json:"durationMinutes,omitempty"`
}

// LogResult is returned by AppendUserLog.
type LogResult struct {
	Log         *index.LogEntry `json:"log"`
	TxSignature string          `json:"txSignature"`
	IPFSURL     string          `json:"ipfsUrl"`
}

// ConsultationRequest records a consultation between a patient and a doctor.
type ConsultationRequest struct {
	PatientAddress   string          `json:"patientAddress"`
	DoctorAddress    string          `json:"doctorAddress"`
	ConsultationData json.RawMessage `json:"consultationData"`
	Diagnosis        string          `json:"diagnosis"`
	PrescriptionData json.RawMessage `json:"prescriptionData,omitempty"`
}

// ConsultationResult is returned by CreateConsultation.
type ConsultationResult struct {
	Consultation    *index.ConsultationRecord `json:"consultation"`
	TxSignature     string                    `json:"txSignature"`
	NotesURL        string                    `json:"notesUrl"`
	PrescriptionURL *string                   `json:"prescriptionUrl"`
}

// credentialFallback is stored when a certify request carries no credential document.
type credentialFallback struct {
	DoctorName     string `json:"doctorName"`
	Specialization string `json:"specialization"`
	LicenseNumber  string `json:"licenseNumber"`
	IssuedBy       string `json:"issuedBy"`
	Timestamp      string `json:"timestamp"`
}

const credentialIssuer = "Healthcare Platform"

func hasPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// identity validates and parses an account identity field.
func identity(field, value string) (common.Address, error) {
	if httputil.IsEmpty(value) {
		return common.Address{}, errors.NewValidationError(field, "is required", nil)
	}
	if !httputil.ValidateIdentity(value) {
		return common.Address{}, errors.NewValidationError(field, "is not a valid account identity", value)
	}
	return common.HexToAddress(httputil.NormalizeIdentity(value)), nil
}

func required(field, value string) error {
	if httputil.IsEmpty(value) {
		return errors.NewValidationError(field, "is required", nil)
	}
	return nil
}

func maxLen(field, value string, limit int) error {
	if len(value) > limit {
		return errors.NewValidationError(field, fmt.Sprintf("must be at most %d bytes", limit), len(value))
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CertifyRequest) validate() (common.Address, error) {
	doctor, err := identity("doctorAddress", r.DoctorAddress)
	if err != nil {
		return doctor, err
	}
	return doctor, firstErr(
		required("doctorName", r.DoctorName),
		required("specialization", r.Specialization),
		required("licenseNumber", r.LicenseNumber),
		maxLen("doctorName", r.DoctorName, ledger.MaxDoctorNameLen),
		maxLen("specialization", r.Specialization, ledger.MaxSpecializationLen),
		maxLen("licenseNumber", r.LicenseNumber, ledger.MaxLicenseNumberLen),
	)
}

func (r *RevokeRequest) validate() (common.Address, error) {
	doctor, err := identity("doctorAddress", r.DoctorAddress)
	if err != nil {
		return doctor, err
	}
	return doctor, firstErr(
		required("reason", r.Reason),
		maxLen("reason", r.Reason, ledger.MaxRevokeReasonLen),
	)
}

func (r *LogRequest) validate() (common.Address, error) {
	user, err := identity("userAddress", r.UserAddress)
	if err != nil {
		return user, err
	}
	if r.LogType == "" {
		return user, errors.NewValidationError("logType", "is required", nil)
	}
	if !ledger.ValidLogType(r.LogType) {
		return user, errors.NewValidationError("logType",
			fmt.Sprintf("must be %s or %s", ledger.LogTypePatientHealth, ledger.LogTypeFitness), r.LogType)
	}
	if !hasPayload(r.HealthData) {
		return user, errors.NewValidationError("healthData", "is required", nil)
	}
	err = firstErr(
		required("notes", r.Notes),
		maxLen("notes", r.Notes, ledger.MaxNotesLen),
	)
	if err == nil && r.ActivityType != nil {
		err = maxLen("activityType", *r.ActivityType, ledger.MaxActivityTypeLen)
	}
	return user, err
}

func (r *ConsultationRequest) validate() (patient, doctor common.Address, err error) {
	if patient, err = identity("patientAddress", r.PatientAddress); err != nil {
		return
	}
	if doctor, err = identity("doctorAddress", r.DoctorAddress); err != nil {
		return
	}
	if !hasPayload(r.ConsultationData) {
		err = errors.NewValidationError("consultationData", "is required", nil)
		return
	}
	err = firstErr(
		required("diagnosis", r.Diagnosis),
		maxLen("diagnosis", r.Diagnosis, ledger.MaxDiagnosisLen),
	)
	return
}
