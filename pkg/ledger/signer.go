package ledger

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs call digests. The ledger client holds one for its lifetime.
type Signer interface {
	Address() common.Address
	Sign(digest []byte) ([]byte, error)
}

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner wraps key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// ParseKeySigner decodes a hex private key, with or without 0x.
func ParseKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return NewKeySigner(key), nil
}

// LoadKeySigner reads a hex private key file as written by the identity command.
func LoadKeySigner(path string) (*KeySigner, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		// LoadECDSA rejects a trailing newline or 0x prefix; retry leniently.
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read signer key %s: %w", path, readErr)
		}
		return ParseKeySigner(string(raw))
	}
	return NewKeySigner(key), nil
}

func (s *KeySigner) Address() common.Address { return s.address }

func (s *KeySigner) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

// CallDigest is the message a signer signs for call under program:
// keccak256(program || json(call)).
func CallDigest(program common.Address, call Call) ([]byte, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}
	return crypto.Keccak256(program.Bytes(), body), nil
}

// SignCall signs call and returns the envelope sent to the ledger.
func SignCall(signer Signer, program common.Address, call Call) (*SignedCall, error) {
	digest, err := CallDigest(program, call)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign call: %w", err)
	}
	return &SignedCall{
		Program:   program,
		Call:      call,
		Signer:    signer.Address(),
		Signature: sig,
	}, nil
}

// RecoverSigner returns the address that produced sc's signature.
func RecoverSigner(sc *SignedCall) (common.Address, error) {
	digest, err := CallDigest(sc.Program, sc.Call)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest, sc.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
