package index

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/rqlite"
)

// InsertConsultation writes a consultation record. Like InsertLog, a rewrite
// of the same (patient, consultIndex) replaces the row.
func (s *Store) InsertConsultation(ctx context.Context, c *ConsultationRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO consultations (
	patient_address, consult_index, doctor_address, notes_cid, diagnosis, prescription_cid,
	created_at, tx_signature, ledger_address
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (patient_address, consult_index) DO UPDATE SET
	doctor_address = excluded.doctor_address,
	notes_cid = excluded.notes_cid,
	diagnosis = excluded.diagnosis,
	prescription_cid = excluded.prescription_cid,
	created_at = excluded.created_at,
	tx_signature = excluded.tx_signature,
	ledger_address = excluded.ledger_address`,
		c.Patient, int64(c.ConsultIndex), c.Doctor, c.NotesCID, c.Diagnosis,
		nullableString(c.PrescriptionCID), rqlite.FormatTime(c.CreatedAt), c.TxSignature, c.LedgerAddress)
	if err != nil {
		return errors.NewIndexWriteError(tableConsultations, err)
	}
	return nil
}

// FindConsultations returns a patient's consultations, newest first.
func (s *Store) FindConsultations(ctx context.Context, patient string) ([]ConsultationRecord, error) {
	return s.findConsultations(ctx, map[string]any{"patient_address": patient})
}

// FindConsultationsByDoctor returns consultations written by doctor, newest first.
func (s *Store) FindConsultationsByDoctor(ctx context.Context, doctor string) ([]ConsultationRecord, error) {
	return s.findConsultations(ctx, map[string]any{"doctor_address": doctor})
}

func (s *Store) findConsultations(ctx context.Context, criteria map[string]any) ([]ConsultationRecord, error) {
	recs := []ConsultationRecord{}
	if err := s.db.FindBy(ctx, &recs, tableConsultations, criteria,
		rqlite.WithOrderBy("consult_index DESC", "created_at DESC")); err != nil {
		return nil, readErr(tableConsultations, err)
	}
	return recs, nil
}

// FindConsultation returns the consultation at (patient, seq) or a NotFound error.
func (s *Store) FindConsultation(ctx context.Context, patient string, seq uint64) (*ConsultationRecord, error) {
	var c ConsultationRecord
	err := s.db.FindOneBy(ctx, &c, tableConsultations, map[string]any{
		"patient_address": patient,
		"consult_index":   int64(seq),
	})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("consultation", patient+"/"+strconv.FormatUint(seq, 10))
	}
	if err != nil {
		return nil, readErr(tableConsultations, err)
	}
	return &c, nil
}
