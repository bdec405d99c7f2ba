package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveAddress returns the account address for namespace and key parts
// under program: the last 20 bytes of keccak256(program || namespace || parts...).
// It is pure; equal inputs always give the same address.
func DeriveAddress(program common.Address, ns Namespace, parts ...[]byte) common.Address {
	data := make([][]byte, 0, len(parts)+2)
	data = append(data, program.Bytes(), []byte(ns))
	data = append(data, parts...)
	return common.BytesToAddress(crypto.Keccak256(data...)[12:])
}

// SequenceBytes encodes a per-subject sequence as 8 little-endian bytes.
func SequenceBytes(seq uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seq)
	return b[:]
}

// CertificationAddress is the doctor_cert account of doctor.
func CertificationAddress(program, doctor common.Address) common.Address {
	return DeriveAddress(program, NamespaceDoctorCert, doctor.Bytes())
}

// LogAddress is the user_log account of user's seq-th entry.
func LogAddress(program, user common.Address, seq uint64) common.Address {
	return DeriveAddress(program, NamespaceUserLog, user.Bytes(), SequenceBytes(seq))
}

// ConsultationAddress is the consult_note account of patient's seq-th consultation.
func ConsultationAddress(program, patient common.Address, seq uint64) common.Address {
	return DeriveAddress(program, NamespaceConsultNote, patient.Bytes(), SequenceBytes(seq))
}

// ExpectedAccount returns the address call must target, or false when the
// call carries no arguments for its instruction.
func ExpectedAccount(program common.Address, call Call) (common.Address, bool) {
	switch call.Instruction {
	case InstructionCertifyDoctor:
		if call.Certify == nil {
			return common.Address{}, false
		}
		return CertificationAddress(program, call.Certify.Doctor), true
	case InstructionRevokeCertification:
		if call.Revoke == nil {
			return common.Address{}, false
		}
		return CertificationAddress(program, call.Revoke.Doctor), true
	case InstructionLogUserData:
		if call.Log == nil {
			return common.Address{}, false
		}
		return LogAddress(program, call.Log.User, call.Log.Sequence), true
	case InstructionCreateConsultation:
		if call.Consultation == nil {
			return common.Address{}, false
		}
		return ConsultationAddress(program, call.Consultation.Patient, call.Consultation.Sequence), true
	}
	return common.Address{}, false
}
