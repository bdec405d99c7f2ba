// Package ledgersim is a development stand-in for the records program. It
// serves the same JSON-RPC methods as the real ledger and enforces the
// program's observable rules, so the gateway can run and be tested without
// a chain.
package ledgersim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/carefolio/records/pkg/ledger"
)

// Error is a program error carrying a JSON-RPC code.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string  { return e.Msg }
func (e *Error) ErrorCode() int { return e.Code }

func reject(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Simulator holds program accounts in memory.
type Simulator struct {
	mu        sync.Mutex
	program   common.Address
	authority *common.Address
	accounts  map[common.Address]*ledger.AccountState
	delivered map[string]string // signature hex -> tx id
	txCount   uint64
	failNext  int
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithAuthority restricts submissions to calls signed by authority.
func WithAuthority(authority common.Address) Option {
	return func(s *Simulator) { s.authority = &authority }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// New creates an empty simulator for program.
func New(program common.Address, opts ...Option) *Simulator {
	s := &Simulator{
		program:   program,
		accounts:  make(map[common.Address]*ledger.AccountState),
		delivered: make(map[string]string),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Server returns an RPC server exposing the ledger namespace.
func (s *Simulator) Server() (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("ledger", &Service{sim: s}); err != nil {
		return nil, fmt.Errorf("register ledger service: %w", err)
	}
	return srv, nil
}

// DialInProc returns an RPC client connected to a fresh in-process server.
func (s *Simulator) DialInProc() (*rpc.Client, error) {
	srv, err := s.Server()
	if err != nil {
		return nil, err
	}
	return rpc.DialInProc(srv), nil
}

// FailNext makes the next n submissions fail with an unavailable error
// without changing state.
func (s *Simulator) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Account returns a copy of the account at addr.
func (s *Simulator) Account(addr common.Address) (*ledger.AccountState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[addr]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}

// TxCount returns the number of accepted transactions.
func (s *Simulator) TxCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// Service is the RPC receiver registered under the "ledger" namespace.
type Service struct {
	sim *Simulator
}

// Submit is served as ledger_submit.
func (svc *Service) Submit(ctx context.Context, sc ledger.SignedCall) (string, error) {
	return svc.sim.submit(&sc)
}

// GetAccount is served as ledger_getAccount. A missing account returns null.
func (svc *Service) GetAccount(ctx context.Context, addr common.Address) (*ledger.AccountState, error) {
	st, ok := svc.sim.Account(addr)
	if !ok {
		return nil, nil
	}
	return st, nil
}

func (s *Simulator) submit(sc *ledger.SignedCall) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return "", reject(ledger.CodeUnavailable, "ledger temporarily unavailable")
	}

	sigKey := common.Bytes2Hex(sc.Signature)
	if tx, ok := s.delivered[sigKey]; ok {
		return tx, nil
	}

	if err := s.authorize(sc); err != nil {
		return "", err
	}
	expected, ok := ledger.ExpectedAccount(s.program, sc.Call)
	if !ok {
		return "", reject(ledger.CodeInvalidCall, "call %q has no arguments", sc.Call.Instruction)
	}
	if expected != sc.Call.Account {
		return "", reject(ledger.CodeInvalidCall, "account %s does not match derived address %s", sc.Call.Account.Hex(), expected.Hex())
	}

	txID := s.nextTx(sc.Signature)
	now := s.now().Unix()

	var err error
	switch sc.Call.Instruction {
	case ledger.InstructionCertifyDoctor:
		err = s.certify(sc, txID, now)
	case ledger.InstructionRevokeCertification:
		err = s.revoke(sc, txID, now)
	case ledger.InstructionLogUserData:
		err = s.logUserData(sc, txID, now)
	case ledger.InstructionCreateConsultation:
		err = s.createConsultation(sc, txID, now)
	default:
		err = reject(ledger.CodeInvalidCall, "unknown instruction %q", sc.Call.Instruction)
	}
	if err != nil {
		return "", err
	}

	s.txCount++
	s.delivered[sigKey] = txID
	s.logger.Debug("Accepted call",
		zap.String("instruction", string(sc.Call.Instruction)),
		zap.String("account", sc.Call.Account.Hex()),
		zap.String("tx", txID))
	return txID, nil
}

func (s *Simulator) authorize(sc *ledger.SignedCall) error {
	if sc.Program != s.program {
		return reject(ledger.CodeInvalidCall, "call targets program %s", sc.Program.Hex())
	}
	signer, err := ledger.RecoverSigner(sc)
	if err != nil {
		return reject(ledger.CodeUnauthorized, "invalid signature: %v", err)
	}
	if signer != sc.Signer {
		return reject(ledger.CodeUnauthorized, "signature does not match signer %s", sc.Signer.Hex())
	}
	if s.authority != nil && signer != *s.authority {
		return reject(ledger.CodeUnauthorized, "signer %s is not the program authority", signer.Hex())
	}
	return nil
}

func (s *Simulator) nextTx(sig []byte) string {
	return crypto.Keccak256Hash(sig, ledger.SequenceBytes(s.txCount)).Hex()
}

func (s *Simulator) certify(sc *ledger.SignedCall, txID string, now int64) error {
	args := sc.Call.Certify
	if err := checkLen("credentialCid", args.CredentialCID, ledger.MaxCIDLen); err != nil {
		return err
	}
	if err := checkLen("doctorName", args.DoctorName, ledger.MaxDoctorNameLen); err != nil {
		return err
	}
	if err := checkLen("specialization", args.Specialization, ledger.MaxSpecializationLen); err != nil {
		return err
	}
	if err := checkLen("licenseNumber", args.LicenseNumber, ledger.MaxLicenseNumberLen); err != nil {
		return err
	}
	if _, exists := s.accounts[sc.Call.Account]; exists {
		return reject(ledger.CodeAccountExists, "certification account %s already in use", sc.Call.Account.Hex())
	}
	s.accounts[sc.Call.Account] = &ledger.AccountState{
		Address: sc.Call.Account,
		Kind:    ledger.NamespaceDoctorCert,
		Certification: &ledger.CertificationState{
			Doctor:         args.Doctor,
			Authority:      sc.Signer,
			DoctorName:     args.DoctorName,
			Specialization: args.Specialization,
			LicenseNumber:  args.LicenseNumber,
			CredentialCID:  args.CredentialCID,
			IssuedAt:       now,
		},
		CreatedTx: txID,
	}
	return nil
}

func (s *Simulator) revoke(sc *ledger.SignedCall, txID string, now int64) error {
	args := sc.Call.Revoke
	if err := checkLen("reason", args.Reason, ledger.MaxRevokeReasonLen); err != nil {
		return err
	}
	acct, ok := s.accounts[sc.Call.Account]
	if !ok || acct.Certification == nil {
		return reject(ledger.CodeAccountMissing, "no certification for %s", args.Doctor.Hex())
	}
	if acct.Certification.Revoked {
		return reject(ledger.CodeAlreadyRevoked, "certification for %s already revoked", args.Doctor.Hex())
	}
	cert := *acct.Certification
	cert.Revoked = true
	cert.RevokedAt = now
	cert.RevokeReason = args.Reason
	updated := *acct
	updated.Certification = &cert
	updated.UpdatedTx = txID
	s.accounts[sc.Call.Account] = &updated
	return nil
}

func (s *Simulator) logUserData(sc *ledger.SignedCall, txID string, now int64) error {
	args := sc.Call.Log
	if !ledger.ValidLogType(args.LogType) {
		return reject(ledger.CodeInvalidCall, "invalid log type %q", args.LogType)
	}
	if err := checkLen("dataCid", args.DataCID, ledger.MaxCIDLen); err != nil {
		return err
	}
	if err := checkLen("notes", args.Notes, ledger.MaxNotesLen); err != nil {
		return err
	}
	if args.ActivityType != nil {
		if err := checkLen("activityType", *args.ActivityType, ledger.MaxActivityTypeLen); err != nil {
			return err
		}
	}
	if _, exists := s.accounts[sc.Call.Account]; exists {
		return reject(ledger.CodeAccountExists, "log account %s already in use", sc.Call.Account.Hex())
	}
	s.accounts[sc.Call.Account] = &ledger.AccountState{
		Address: sc.Call.Account,
		Kind:    ledger.NamespaceUserLog,
		Log: &ledger.LogState{
			User:            args.User,
			Sequence:        args.Sequence,
			DataCID:         args.DataCID,
			LogType:         args.LogType,
			Notes:           args.Notes,
			ActivityType:    args.ActivityType,
			DurationMinutes: args.DurationMinutes,
			Timestamp:       now,
		},
		CreatedTx: txID,
	}
	return nil
}

func (s *Simulator) createConsultation(sc *ledger.SignedCall, txID string, now int64) error {
	args := sc.Call.Consultation
	if err := checkLen("notesCid", args.NotesCID, ledger.MaxCIDLen); err != nil {
		return err
	}
	if err := checkLen("diagnosis", args.Diagnosis, ledger.MaxDiagnosisLen); err != nil {
		return err
	}
	if args.PrescriptionCID != nil {
		if err := checkLen("prescriptionCid", *args.PrescriptionCID, ledger.MaxCIDLen); err != nil {
			return err
		}
	}
	cert, ok := s.accounts[ledger.CertificationAddress(s.program, args.Doctor)]
	if !ok || cert.Certification == nil || cert.Certification.Revoked {
		return reject(ledger.CodeNotCertified, "doctor %s holds no active certification", args.Doctor.Hex())
	}
	if _, exists := s.accounts[sc.Call.Account]; exists {
		return reject(ledger.CodeAccountExists, "consultation account %s already in use", sc.Call.Account.Hex())
	}
	s.accounts[sc.Call.Account] = &ledger.AccountState{
		Address: sc.Call.Account,
		Kind:    ledger.NamespaceConsultNote,
		Consultation: &ledger.ConsultationState{
			Patient:         args.Patient,
			Doctor:          args.Doctor,
			Sequence:        args.Sequence,
			NotesCID:        args.NotesCID,
			Diagnosis:       args.Diagnosis,
			PrescriptionCID: args.PrescriptionCID,
			Timestamp:       now,
		},
		CreatedTx: txID,
	}
	return nil
}

func checkLen(field, value string, max int) error {
	if len(value) > max {
		return reject(ledger.CodeFieldTooLong, "%s exceeds %d bytes", field, max)
	}
	return nil
}
