package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/index"
	"github.com/carefolio/records/pkg/ledger"
)

// CertifyDoctor stores the credential, attests the certification and
// indexes it. A doctor can be certified once.
func (o *Orchestrator) CertifyDoctor(ctx context.Context, req CertifyRequest) (*CertifyResult, error) {
	doctor, err := req.validate()
	if err != nil {
		return nil, err
	}
	subject := doctor.Hex()

	if _, err := o.index.FindCertification(ctx, subject); err == nil {
		return nil, errors.NewDuplicateSubjectError("doctor certification", subject)
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	issuedAt := o.now().UTC()
	payload := []byte(req.CredentialData)
	if !hasPayload(req.CredentialData) {
		payload, err = json.Marshal(credentialFallback{
			DoctorName:     req.DoctorName,
			Specialization: req.Specialization,
			LicenseNumber:  req.LicenseNumber,
			IssuedBy:       credentialIssuer,
			Timestamp:      issuedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, errors.NewInternalError("encode credential", err)
		}
	}

	credentialCID, err := o.store(ctx, OpCertifyDoctor, payload, blobNameCredential)
	if err != nil {
		return nil, err
	}

	call := ledger.Call{
		Instruction: ledger.InstructionCertifyDoctor,
		Account:     o.ledger.DeriveAddress(ledger.NamespaceDoctorCert, doctor.Bytes()),
		Certify: &ledger.CertifyArgs{
			Doctor:         doctor,
			DoctorName:     req.DoctorName,
			Specialization: req.Specialization,
			LicenseNumber:  req.LicenseNumber,
			CredentialCID:  credentialCID,
		},
	}
	dctx, a, err := o.attest(ctx, OpCertifyDoctor, index.KindCertification, subject, 0, call)
	if err != nil {
		if code, ok := rejectionCode(err); ok && code == ledger.CodeAccountExists {
			return nil, errors.NewDuplicateSubjectError("doctor certification", subject)
		}
		return nil, err
	}

	rec := &index.CertificationRecord{
		Doctor:         subject,
		DoctorName:     req.DoctorName,
		Specialization: req.Specialization,
		LicenseNumber:  req.LicenseNumber,
		CredentialCID:  credentialCID,
		IssuedAt:       issuedAt,
		TxSignature:    a.txID,
		LedgerAddress:  a.account.Hex(),
		CreatedAt:      o.now().UTC(),
	}
	if err := o.indexStage(dctx, a, func(ctx context.Context) error {
		return o.index.UpsertCertification(ctx, rec)
	}); err != nil {
		return nil, err
	}

	o.logger.Info("Doctor certified", zap.String("doctor", subject), zap.String("tx", a.txID))
	return &CertifyResult{Cert: rec, TxSignature: a.txID, IPFSURL: o.blobs.URL(credentialCID)}, nil
}

// RevokeCertification revokes an active certification. It touches no blobs.
func (o *Orchestrator) RevokeCertification(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	doctor, err := req.validate()
	if err != nil {
		return nil, err
	}
	subject := doctor.Hex()

	existing, err := o.index.FindCertification(ctx, subject)
	if err != nil {
		return nil, err
	}
	if existing.Revoked {
		var at time.Time
		if existing.RevokedAt != nil {
			at = *existing.RevokedAt
		}
		return nil, errors.NewAlreadyRevokedError(subject, at)
	}

	call := ledger.Call{
		Instruction: ledger.InstructionRevokeCertification,
		Account:     o.ledger.DeriveAddress(ledger.NamespaceDoctorCert, doctor.Bytes()),
		Revoke:      &ledger.RevokeArgs{Doctor: doctor, Reason: req.Reason},
	}
	dctx, a, err := o.attest(ctx, OpRevokeCertification, index.KindCertification, subject, 0, call)
	if err != nil {
		if code, ok := rejectionCode(err); ok {
			switch code {
			case ledger.CodeAlreadyRevoked:
				return nil, errors.NewAlreadyRevokedError(subject, time.Time{})
			case ledger.CodeAccountMissing:
				return nil, errors.NewNotFoundError("doctor certification", subject)
			}
		}
		return nil, err
	}

	revokedAt := o.now().UTC()
	if err := o.indexStage(dctx, a, func(ctx context.Context) error {
		return o.index.MarkRevoked(ctx, subject, revokedAt, req.Reason, a.txID)
	}); err != nil {
		return nil, err
	}

	o.logger.Info("Certification revoked", zap.String("doctor", subject), zap.String("tx", a.txID))
	return &RevokeResult{TxSignature: a.txID}, nil
}

// AppendUserLog stores the log payload, allocates the user's next sequence,
// attests the entry and indexes it.
func (o *Orchestrator) AppendUserLog(ctx context.Context, req LogRequest) (*LogResult, error) {
	user, err := req.validate()
	if err != nil {
		return nil, err
	}
	subject := user.Hex()

	dataCID, err := o.store(ctx, OpAppendUserLog, req.HealthData, blobNameHealthData)
	if err != nil {
		return nil, err
	}

	seq, err := o.index.NextSequence(ctx, index.KindLog, subject)
	if err != nil {
		return nil, err
	}

	call := ledger.Call{
		Instruction: ledger.InstructionLogUserData,
		Account:     o.ledger.DeriveAddress(ledger.NamespaceUserLog, user.Bytes(), ledger.SequenceBytes(seq)),
		Log: &ledger.LogArgs{
			User:            user,
			Sequence:        seq,
			DataCID:         dataCID,
			LogType:         req.LogType,
			Notes:           req.Notes,
			ActivityType:    req.ActivityType,
			DurationMinutes: req.DurationMinutes,
		},
	}
	dctx, a, err := o.attest(ctx, OpAppendUserLog, index.KindLog, subject, seq, call)
	if err != nil {
		return nil, err
	}

	entry := &index.LogEntry{
		User:            subject,
		LogIndex:        seq,
		DataCID:         dataCID,
		LogType:         req.LogType,
		Notes:           req.Notes,
		ActivityType:    req.ActivityType,
		DurationMinutes: req.DurationMinutes,
		CreatedAt:       o.now().UTC(),
		TxSignature:     a.txID,
		LedgerAddress:   a.account.Hex(),
	}
	if err := o.indexStage(dctx, a, func(ctx context.Context) error {
		return o.index.InsertLog(ctx, entry)
	}); err != nil {
		return nil, err
	}

	o.logger.Info("User log appended",
		zap.String("user", subject),
		zap.Uint64("sequence", seq),
		zap.String("tx", a.txID))
	return &LogResult{Log: entry, TxSignature: a.txID, IPFSURL: o.blobs.URL(dataCID)}, nil
}

// CreateConsultation records a consultation by a certified doctor.
func (o *Orchestrator) CreateConsultation(ctx context.Context, req ConsultationRequest) (*ConsultationResult, error) {
	patient, doctor, err := req.validate()
	if err != nil {
		return nil, err
	}
	subject := patient.Hex()

	cert, err := o.index.FindCertification(ctx, doctor.Hex())
	switch {
	case errors.IsNotFound(err):
		return nil, errors.NewNotCertifiedError(doctor.Hex(), "no certification on record")
	case err != nil:
		return nil, err
	case !cert.Active():
		return nil, errors.NewNotCertifiedError(doctor.Hex(), "certification revoked")
	}

	notesCID, err := o.store(ctx, OpCreateConsultation, req.ConsultationData, blobNameConsultation)
	if err != nil {
		return nil, err
	}
	var prescriptionCID *string
	if hasPayload(req.PrescriptionData) {
		cid, err := o.store(ctx, OpCreateConsultation, req.PrescriptionData, blobNamePrescription)
		if err != nil {
			return nil, err
		}
		prescriptionCID = &cid
	}

	seq, err := o.index.NextSequence(ctx, index.KindConsultation, subject)
	if err != nil {
		return nil, err
	}

	call := ledger.Call{
		Instruction: ledger.InstructionCreateConsultation,
		Account:     o.ledger.DeriveAddress(ledger.NamespaceConsultNote, patient.Bytes(), ledger.SequenceBytes(seq)),
		Consultation: &ledger.ConsultationArgs{
			Patient:         patient,
			Doctor:          doctor,
			Sequence:        seq,
			NotesCID:        notesCID,
			Diagnosis:       req.Diagnosis,
			PrescriptionCID: prescriptionCID,
		},
	}
	dctx, a, err := o.attest(ctx, OpCreateConsultation, index.KindConsultation, subject, seq, call)
	if err != nil {
		if code, ok := rejectionCode(err); ok && code == ledger.CodeNotCertified {
			return nil, errors.NewNotCertifiedError(doctor.Hex(), "ledger reports no active certification")
		}
		return nil, err
	}

	rec := &index.ConsultationRecord{
		Patient:         subject,
		ConsultIndex:    seq,
		Doctor:          doctor.Hex(),
		NotesCID:        notesCID,
		Diagnosis:       req.Diagnosis,
		PrescriptionCID: prescriptionCID,
		CreatedAt:       o.now().UTC(),
		TxSignature:     a.txID,
		LedgerAddress:   a.account.Hex(),
	}
	if err := o.indexStage(dctx, a, func(ctx context.Context) error {
		return o.index.InsertConsultation(ctx, rec)
	}); err != nil {
		return nil, err
	}

	res := &ConsultationResult{
		Consultation: rec,
		TxSignature:  a.txID,
		NotesURL:     o.blobs.URL(notesCID),
	}
	if prescriptionCID != nil {
		u := o.blobs.URL(*prescriptionCID)
		res.PrescriptionURL = &u
	}
	o.logger.Info("Consultation created",
		zap.String("patient", subject),
		zap.String("doctor", doctor.Hex()),
		zap.Uint64("sequence", seq),
		zap.String("tx", a.txID))
	return res, nil
}
