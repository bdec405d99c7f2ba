package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/httputil"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/ledger"
)

// RepairResult describes a record rewritten from ledger state.
type RepairResult struct {
	Kind          index.Kind `json:"kind"`
	Subject       string     `json:"subject"`
	Sequence      uint64     `json:"sequence"`
	LedgerAddress string     `json:"ledgerAddress"`
	TxSignature   string     `json:"txSignature"`
}

// Account derives the ledger account that holds the record for kind,
// subject and seq. seq is ignored for certifications.
func (o *Orchestrator) Account(kind index.Kind, subject string, seq uint64) (common.Address, error) {
	if !httputil.ValidateIdentity(subject) {
		return common.Address{}, errors.NewValidationError("subject", "is not a valid account identity", subject)
	}
	id := common.HexToAddress(httputil.NormalizeIdentity(subject))
	switch kind {
	case index.KindCertification:
		return o.ledger.DeriveAddress(ledger.NamespaceDoctorCert, id.Bytes()), nil
	case index.KindLog:
		return o.ledger.DeriveAddress(ledger.NamespaceUserLog, id.Bytes(), ledger.SequenceBytes(seq)), nil
	case index.KindConsultation:
		return o.ledger.DeriveAddress(ledger.NamespaceConsultNote, id.Bytes(), ledger.SequenceBytes(seq)), nil
	default:
		return common.Address{}, errors.NewValidationError("kind", "is not a known record kind", string(kind))
	}
}

// RepairIndex rewrites one index record from the ledger account at the
// derived address. It allocates no sequence and submits nothing.
func (o *Orchestrator) RepairIndex(ctx context.Context, kind index.Kind, subject string, seq uint64) (res *RepairResult, err error) {
	defer func() { o.metrics.ObserveRepair(string(kind), err) }()

	account, err := o.Account(kind, subject, seq)
	if err != nil {
		return nil, err
	}
	state, err := o.ledger.ReadState(ctx, account)
	if err != nil {
		return nil, err
	}
	if state.Kind != ledger.Namespace(kind) {
		return nil, errors.NewInternalError(
			fmt.Sprintf("ledger account %s holds %s, expected %s", account.Hex(), state.Kind, kind), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, o.indexTimeout)
	defer cancel()

	switch kind {
	case index.KindCertification:
		err = o.index.UpsertCertification(ctx, certificationFromState(state))
	case index.KindLog:
		err = o.index.InsertLog(ctx, logFromState(state))
	case index.KindConsultation:
		err = o.index.InsertConsultation(ctx, consultationFromState(state))
	}
	if err != nil {
		o.logger.Warn("Index repair failed",
			zap.String("kind", string(kind)),
			zap.String("account", account.Hex()),
			zap.Error(err))
		return nil, err
	}

	o.logger.Info("Index record repaired",
		zap.String("kind", string(kind)),
		zap.String("subject", subject),
		zap.Uint64("sequence", seq),
		zap.String("account", account.Hex()))
	return &RepairResult{
		Kind:          kind,
		Subject:       common.HexToAddress(subject).Hex(),
		Sequence:      seq,
		LedgerAddress: account.Hex(),
		TxSignature:   state.CreatedTx,
	}, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func certificationFromState(st *ledger.AccountState) *index.CertificationRecord {
	c := st.Certification
	if c == nil {
		c = &ledger.CertificationState{}
	}
	rec := &index.CertificationRecord{
		Doctor:         c.Doctor.Hex(),
		DoctorName:     c.DoctorName,
		Specialization: c.Specialization,
		LicenseNumber:  c.LicenseNumber,
		CredentialCID:  c.CredentialCID,
		IssuedAt:       unixTime(c.IssuedAt),
		TxSignature:    st.CreatedTx,
		LedgerAddress:  st.Address.Hex(),
		CreatedAt:      unixTime(c.IssuedAt),
	}
	if c.Revoked {
		at := unixTime(c.RevokedAt)
		reason := c.RevokeReason
		rec.Revoked = true
		rec.RevokedAt = &at
		rec.RevokeReason = &reason
		if st.UpdatedTx != "" {
			tx := st.UpdatedTx
			rec.RevokeTxSignature = &tx
		}
	}
	return rec
}

func logFromState(st *ledger.AccountState) *index.LogEntry {
	l := st.Log
	if l == nil {
		l = &ledger.LogState{}
	}
	return &index.LogEntry{
		User:            l.User.Hex(),
		LogIndex:        l.Sequence,
		DataCID:         l.DataCID,
		LogType:         l.LogType,
		Notes:           l.Notes,
		ActivityType:    l.ActivityType,
		DurationMinutes: l.DurationMinutes,
		CreatedAt:       unixTime(l.Timestamp),
		TxSignature:     st.CreatedTx,
		LedgerAddress:   st.Address.Hex(),
	}
}

func consultationFromState(st *ledger.AccountState) *index.ConsultationRecord {
	c := st.Consultation
	if c == nil {
		c = &ledger.ConsultationState{}
	}
	return &index.ConsultationRecord{
		Patient:         c.Patient.Hex(),
		ConsultIndex:    c.Sequence,
		Doctor:          c.Doctor.Hex(),
		NotesCID:        c.NotesCID,
		Diagnosis:       c.Diagnosis,
		PrescriptionCID: c.PrescriptionCID,
		CreatedAt:       unixTime(c.Timestamp),
		TxSignature:     st.CreatedTx,
		LedgerAddress:   st.Address.Hex(),
	}
}
