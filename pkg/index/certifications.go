package index

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/rqlite"
)

// UpsertCertification writes rec keyed by doctor identity. An existing row
// keeps its revocation: revoked never goes back to false.
func (s *Store) UpsertCertification(ctx context.Context, rec *CertificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	revoked := int64(0)
	if rec.Revoked {
		revoked = 1
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO doctor_certifications (
	doctor_address, doctor_name, specialization, license_number, credential_cid, issued_at,
	revoked, revoked_at, revoke_reason, tx_signature, revoke_tx_signature, ledger_address, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (doctor_address) DO UPDATE SET
	doctor_name = excluded.doctor_name,
	specialization = excluded.specialization,
	license_number = excluded.license_number,
	credential_cid = excluded.credential_cid,
	issued_at = excluded.issued_at,
	tx_signature = excluded.tx_signature,
	ledger_address = excluded.ledger_address,
	revoked = CASE WHEN doctor_certifications.revoked = 1 THEN 1 ELSE excluded.revoked END,
	revoked_at = CASE WHEN doctor_certifications.revoked = 1 THEN doctor_certifications.revoked_at ELSE excluded.revoked_at END,
	revoke_reason = CASE WHEN doctor_certifications.revoked = 1 THEN doctor_certifications.revoke_reason ELSE excluded.revoke_reason END,
	revoke_tx_signature = CASE WHEN doctor_certifications.revoked = 1 THEN doctor_certifications.revoke_tx_signature ELSE excluded.revoke_tx_signature END`,
		rec.Doctor, rec.DoctorName, rec.Specialization, rec.LicenseNumber, rec.CredentialCID,
		rqlite.FormatTime(rec.IssuedAt), revoked, nullableTime(rec.RevokedAt), nullableString(rec.RevokeReason),
		rec.TxSignature, nullableString(rec.RevokeTxSignature), rec.LedgerAddress, rqlite.FormatTime(rec.CreatedAt))
	if err != nil {
		return errors.NewIndexWriteError(tableCertifications, err)
	}
	s.logger.Debug("Indexed certification", zap.String("doctor", rec.Doctor), zap.Bool("revoked", rec.Revoked))
	return nil
}

// MarkRevoked flips the certification for doctor to revoked. The first
// revocation wins; later calls return AlreadyRevoked and change nothing.
func (s *Store) MarkRevoked(ctx context.Context, doctor string, revokedAt time.Time, reason, txSignature string) error {
	res, err := s.db.Exec(ctx, `
UPDATE doctor_certifications
SET revoked = 1, revoked_at = ?, revoke_reason = ?, revoke_tx_signature = ?
WHERE doctor_address = ? AND revoked = 0`,
		rqlite.FormatTime(revokedAt), reason, txSignature, doctor)
	if err != nil {
		return errors.NewIndexWriteError(tableCertifications, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	existing, err := s.FindCertification(ctx, doctor)
	if err != nil {
		return err
	}
	if existing.Revoked {
		// Drivers that cannot report affected rows land here after a successful update.
		if existing.RevokeTxSignature != nil && *existing.RevokeTxSignature == txSignature {
			return nil
		}
		var at time.Time
		if existing.RevokedAt != nil {
			at = *existing.RevokedAt
		}
		return errors.NewAlreadyRevokedError(doctor, at)
	}
	return errors.NewIndexWriteError(tableCertifications, stderrors.New("revocation not applied"))
}

// FindCertification returns the certification for doctor or a NotFound error.
func (s *Store) FindCertification(ctx context.Context, doctor string) (*CertificationRecord, error) {
	var rec CertificationRecord
	err := s.db.FindOneBy(ctx, &rec, tableCertifications, map[string]any{"doctor_address": doctor})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("doctor certification", doctor)
	}
	if err != nil {
		return nil, readErr(tableCertifications, err)
	}
	return &rec, nil
}

// ListCertifications returns every certification, newest issuedAt first.
func (s *Store) ListCertifications(ctx context.Context) ([]CertificationRecord, error) {
	recs := []CertificationRecord{}
	if err := s.db.FindBy(ctx, &recs, tableCertifications, nil,
		rqlite.WithOrderBy("issued_at DESC", "doctor_address ASC")); err != nil {
		return nil, readErr(tableCertifications, err)
	}
	return recs, nil
}
