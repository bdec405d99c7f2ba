package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Namespace separates the address spaces of the records program.
type Namespace string

const (
	NamespaceDoctorCert  Namespace = "doctor_cert"
	NamespaceUserLog     Namespace = "user_log"
	NamespaceConsultNote Namespace = "consult_note"
)

// Instruction names a records program entry point.
type Instruction string

const (
	InstructionCertifyDoctor       Instruction = "certify_doctor"
	InstructionRevokeCertification Instruction = "revoke_certification"
	InstructionLogUserData         Instruction = "log_user_data"
	InstructionCreateConsultation  Instruction = "create_consultation"
)

// Field limits enforced by the records program.
const (
	MaxCIDLen            = 100
	MaxDoctorNameLen     = 50
	MaxSpecializationLen = 50
	MaxLicenseNumberLen  = 30
	MaxRevokeReasonLen   = 200
	MaxNotesLen          = 200
	MaxActivityTypeLen   = 50
	MaxDiagnosisLen      = 200
)

// Log types accepted by log_user_data.
const (
	LogTypePatientHealth = "PatientHealth"
	LogTypeFitness       = "Fitness"
)

// ValidLogType reports whether t is a known log type.
func ValidLogType(t string) bool {
	return t == LogTypePatientHealth || t == LogTypeFitness
}

// Call is one instruction against a derived account. Exactly one of the
// argument fields is set, matching Instruction. Nonce makes each submission
// a distinct envelope; Client.Submit fills it when empty.
type Call struct {
	Instruction  Instruction       `json:"instruction"`
	Account      common.Address    `json:"account"`
	Nonce        string            `json:"nonce,omitempty"`
	Certify      *CertifyArgs      `json:"certify,omitempty"`
	Revoke       *RevokeArgs       `json:"revoke,omitempty"`
	Log          *LogArgs          `json:"log,omitempty"`
	Consultation *ConsultationArgs `json:"consultation,omitempty"`
}

type CertifyArgs struct {
	Doctor         common.Address `json:"doctor"`
	DoctorName     string         `json:"doctorName"`
	Specialization string         `json:"specialization"`
	LicenseNumber  string         `json:"licenseNumber"`
	CredentialCID  string         `json:"credentialCid"`
}

type RevokeArgs struct {
	Doctor common.Address `json:"doctor"`
	Reason string         `json:"reason"`
}

type LogArgs struct {
	User            common.Address `json:"user"`
	Sequence        uint64         `json:"sequence"`
	DataCID         string         `json:"dataCid"`
	LogType         string         `json:"logType"`
	Notes           string         `json:"notes"`
	ActivityType    *string        `json:"activityType,omitempty"`
	DurationMinutes *uint32        `json:"durationMinutes,omitempty"`
}

type ConsultationArgs struct {
	Patient         common.Address `json:"patient"`
	Doctor          common.Address `json:"doctor"`
	Sequence        uint64         `json:"sequence"`
	NotesCID        string         `json:"notesCid"`
	Diagnosis       string         `json:"diagnosis"`
	PrescriptionCID *string        `json:"prescriptionCid,omitempty"`
}

// SignedCall is what travels over ledger_submit.
type SignedCall struct {
	Program   common.Address `json:"program"`
	Call      Call           `json:"call"`
	Signer    common.Address `json:"signer"`
	Signature hexutil.Bytes  `json:"signature"`
}

// AccountState is the on-ledger state of a derived account. Exactly one of
// the state fields is set, matching Kind. Times are unix seconds.
type AccountState struct {
	Address       common.Address      `json:"address"`
	Kind          Namespace           `json:"kind"`
	Certification *CertificationState `json:"certification,omitempty"`
	Log           *LogState           `json:"log,omitempty"`
	Consultation  *ConsultationState  `json:"consultation,omitempty"`
	CreatedTx     string              `json:"createdTx"`
	UpdatedTx     string              `json:"updatedTx,omitempty"`
}

type CertificationState struct {
	Doctor         common.Address `json:"doctor"`
	Authority      common.Address `json:"authority"`
	DoctorName     string         `json:"doctorName"`
	Specialization string         `json:"specialization"`
	LicenseNumber  string         `json:"licenseNumber"`
	CredentialCID  string         `json:"credentialCid"`
	IssuedAt       int64          `json:"issuedAt"`
	Revoked        bool           `json:"revoked"`
	RevokedAt      int64          `json:"revokedAt,omitempty"`
	RevokeReason   string         `json:"revokeReason,omitempty"`
}

type LogState struct {
	User            common.Address `json:"user"`
	Sequence        uint64         `json:"sequence"`
	DataCID         string         `json:"dataCid"`
	LogType         string         `json:"logType"`
	Notes           string         `json:"notes"`
	ActivityType    *string        `json:"activityType,omitempty"`
	DurationMinutes *uint32        `json:"durationMinutes,omitempty"`
	Timestamp       int64          `json:"timestamp"`
}

type ConsultationState struct {
	Patient         common.Address `json:"patient"`
	Doctor          common.Address `json:"doctor"`
	Sequence        uint64         `json:"sequence"`
	NotesCID        string         `json:"notesCid"`
	Diagnosis       string         `json:"diagnosis"`
	PrescriptionCID *string        `json:"prescriptionCid,omitempty"`
	Timestamp       int64          `json:"timestamp"`
}
