// Package query serves reads. Listings and lookups come from the local
// index; payloads are dereferenced through the blob store; certification
// verification reads the ledger and never consults the index.
package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/httputil"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/ledger"
)

// Blobs fetches payloads by content address.
type Blobs interface {
	Fetch(ctx context.Context, address string) ([]byte, error)
}

// Ledger reads account state.
type Ledger interface {
	DeriveAddress(ns ledger.Namespace, parts ...[]byte) common.Address
	ReadState(ctx context.Context, account common.Address) (*ledger.AccountState, error)
}

// Index is the read side of the local index.
type Index interface {
	ListCertifications(ctx context.Context) ([]index.CertificationRecord, error)
	FindCertification(ctx context.Context, doctor string) (*index.CertificationRecord, error)
	FindLogs(ctx context.Context, user, logType string) ([]index.LogEntry, error)
	FindLog(ctx context.Context, user string, seq uint64) (*index.LogEntry, error)
	FindConsultations(ctx context.Context, patient string) ([]index.ConsultationRecord, error)
	FindConsultation(ctx context.Context, patient string, seq uint64) (*index.ConsultationRecord, error)
}

// Service answers read requests.
type Service struct {
	blobs  Blobs
	ledger Ledger
	index  Index
	logger *zap.Logger
}

// New creates a Service.
func New(blobs Blobs, l Ledger, idx Index, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{blobs: blobs, ledger: l, index: idx, logger: logger}
}

// Verification is the ledger's view of a doctor certification.
type Verification struct {
	IsValid        bool      `json:"isValid"`
	DoctorName     string    `json:"doctorName"`
	Specialization string    `json:"specialization"`
	LicenseNumber  string    `json:"licenseNumber"`
	IssuedAt       time.Time `json:"issuedAt"`
	Revoked        bool      `json:"revoked"`
}

// LogView is a log entry with its dereferenced payload.
type LogView struct {
	Log  *index.LogEntry `json:"log"`
	Data any             `json:"data"`
}

// ConsultationView is a consultation with its dereferenced notes and
// prescription. Prescription is nil when none was recorded.
type ConsultationView struct {
	Consultation *index.ConsultationRecord `json:"consultation"`
	Notes        any                       `json:"notes"`
	Prescription any                       `json:"prescription"`
}

func subject(field, value string) (string, error) {
	if !httputil.ValidateIdentity(value) {
		return "", errors.NewValidationError(field, "is not a valid account identity", value)
	}
	return httputil.NormalizeIdentity(value), nil
}

// ListDoctors returns every indexed certification, newest issuedAt first.
func (s *Service) ListDoctors(ctx context.Context) ([]index.CertificationRecord, error) {
	return s.index.ListCertifications(ctx)
}

// GetDoctor returns the indexed certification for doctor.
func (s *Service) GetDoctor(ctx context.Context, doctor string) (*index.CertificationRecord, error) {
	id, err := subject("doctorAddress", doctor)
	if err != nil {
		return nil, err
	}
	return s.index.FindCertification(ctx, id)
}

// VerifyDoctor reads the certification account from the ledger.
func (s *Service) VerifyDoctor(ctx context.Context, doctor string) (*Verification, error) {
	id, err := subject("doctorAddress", doctor)
	if err != nil {
		return nil, err
	}
	account := s.ledger.DeriveAddress(ledger.NamespaceDoctorCert, common.HexToAddress(id).Bytes())
	state, err := s.ledger.ReadState(ctx, account)
	if err != nil {
		return nil, err
	}
	cert := state.Certification
	if cert == nil {
		return nil, errors.NewInternalError("ledger account "+account.Hex()+" is not a certification", nil)
	}
	return &Verification{
		IsValid:        !cert.Revoked,
		DoctorName:     cert.DoctorName,
		Specialization: cert.Specialization,
		LicenseNumber:  cert.LicenseNumber,
		IssuedAt:       time.Unix(cert.IssuedAt, 0).UTC(),
		Revoked:        cert.Revoked,
	}, nil
}

// ListLogs returns a user's logs, newest sequence first. An empty logType
// returns every type.
func (s *Service) ListLogs(ctx context.Context, user, logType string) ([]index.LogEntry, error) {
	id, err := subject("userAddress", user)
	if err != nil {
		return nil, err
	}
	if logType != "" && !ledger.ValidLogType(logType) {
		return nil, errors.NewValidationError("logType", "is not a known log type", logType)
	}
	return s.index.FindLogs(ctx, id, logType)
}

// GetLog returns one log with its payload. When the payload cannot be
// fetched the view still carries the log and the blob error is returned
// alongside it.
func (s *Service) GetLog(ctx context.Context, user string, seq uint64) (*LogView, error) {
	id, err := subject("userAddress", user)
	if err != nil {
		return nil, err
	}
	entry, err := s.index.FindLog(ctx, id, seq)
	if err != nil {
		return nil, err
	}
	view := &LogView{Log: entry}
	view.Data, err = s.payload(ctx, entry.DataCID)
	return view, err
}

// ListConsultations returns a patient's consultations, newest first.
func (s *Service) ListConsultations(ctx context.Context, patient string) ([]index.ConsultationRecord, error) {
	id, err := subject("patientAddress", patient)
	if err != nil {
		return nil, err
	}
	return s.index.FindConsultations(ctx, id)
}

// GetConsultation returns one consultation with its notes and prescription.
// Blob failures are returned alongside the metadata, as in GetLog.
func (s *Service) GetConsultation(ctx context.Context, patient string, seq uint64) (*ConsultationView, error) {
	id, err := subject("patientAddress", patient)
	if err != nil {
		return nil, err
	}
	rec, err := s.index.FindConsultation(ctx, id, seq)
	if err != nil {
		return nil, err
	}
	view := &ConsultationView{Consultation: rec}
	if view.Notes, err = s.payload(ctx, rec.NotesCID); err != nil {
		return view, err
	}
	if rec.PrescriptionCID != nil {
		if view.Prescription, err = s.payload(ctx, *rec.PrescriptionCID); err != nil {
			return view, err
		}
	}
	return view, nil
}

// FetchBlob returns the payload at address.
func (s *Service) FetchBlob(ctx context.Context, address string) (any, error) {
	if !httputil.ValidateCID(address) {
		return nil, errors.NewValidationError("address", "is not a valid content address", address)
	}
	return s.payload(ctx, address)
}

// payload fetches address and returns it as JSON when it parses, otherwise
// as a string.
func (s *Service) payload(ctx context.Context, address string) (any, error) {
	b, err := s.blobs.Fetch(ctx, address)
	if err != nil {
		s.logger.Warn("Payload fetch failed", zap.String("address", address), zap.Error(err))
		return nil, err
	}
	if json.Valid(b) {
		return json.RawMessage(b), nil
	}
	return string(b), nil
}
