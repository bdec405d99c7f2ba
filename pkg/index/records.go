package index

import "time"

// Kind names a sequenced record family. Values match the ledger namespaces.
type Kind string

const (
	KindCertification Kind = "doctor_cert"
	KindLog           Kind = "user_log"
	KindConsultation  Kind = "consult_note"
)

// CertificationRecord is the indexed view of a doctor certification.
type CertificationRecord struct {
	Doctor            string     `db:"doctor_address" json:"doctor"`
	DoctorName        string     `db:"doctor_name" json:"doctorName"`
	Specialization    string     `db:"specialization" json:"specialization"`
	LicenseNumber     string     `db:"license_number" json:"licenseNumber"`
	CredentialCID     string     `db:"credential_cid" json:"credentialCid"`
	IssuedAt          time.Time  `db:"issued_at" json:"issuedAt"`
	Revoked           bool       `db:"revoked" json:"revoked"`
	RevokedAt         *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
	RevokeReason      *string    `db:"revoke_reason" json:"revokeReason,omitempty"`
	TxSignature       string     `db:"tx_signature" json:"txSignature"`
	RevokeTxSignature *string    `db:"revoke_tx_signature" json:"revokeTxSignature,omitempty"`
	LedgerAddress     string     `db:"ledger_address" json:"ledgerAddress"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// Active reports whether the certification may back a consultation.
func (c *CertificationRecord) Active() bool {
	return c != nil && !c.Revoked
}

// LogEntry is one user health or fitness log.
type LogEntry struct {
	User            string    `db:"user_address" json:"user"`
	LogIndex        uint64    `db:"log_index" json:"logIndex"`
	DataCID         string    `db:"data_cid" json:"dataCid"`
	LogType         string    `db:"log_type" json:"logType"`
	Notes           string    `db:"notes" json:"notes"`
	ActivityType    *string   `db:"activity_type" json:"activityType,omitempty"`
	DurationMinutes *uint32   `db:"duration_minutes" json:"durationMinutes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	TxSignature     string    `db:"tx_signature" json:"txSignature"`
	LedgerAddress   string    `db:"ledger_address" json:"ledgerAddress"`
}

// ConsultationRecord is one consultation note for a patient.
type ConsultationRecord struct {
	Patient         string    `db:"patient_address" json:"patient"`
	ConsultIndex    uint64    `db:"consult_index" json:"consultIndex"`
	Doctor          string    `db:"doctor_address" json:"doctor"`
	NotesCID        string    `db:"notes_cid" json:"notesCid"`
	Diagnosis       string    `db:"diagnosis" json:"diagnosis"`
	PrescriptionCID *string   `db:"prescription_cid" json:"prescriptionCid"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	TxSignature     string    `db:"tx_signature" json:"txSignature"`
	LedgerAddress   string    `db:"ledger_address" json:"ledgerAddress"`
}
