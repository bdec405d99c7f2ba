package blobstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/carefolio/records/pkg/errors"
)

// SealedBackend encrypts payloads with XChaCha20-Poly1305 before they reach
// the wrapped backend. Stored bytes are nonce || ciphertext, so the address
// identifies the sealed object.
type SealedBackend struct {
	next Backend
	key  []byte
}

// ParseKey decodes a 32-byte hex key, with or without a 0x prefix.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// NewSealedBackend wraps next with payload encryption under key.
func NewSealedBackend(next Backend, key []byte) (*SealedBackend, error) {
	if _, err := chacha20poly1305.NewX(key); err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &SealedBackend{next: next, key: key}, nil
}

func (s *SealedBackend) Put(ctx context.Context, payload []byte, name string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", errors.NewInternalError("init cipher", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(payload)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.NewInternalError("generate nonce", err)
	}
	sealed := aead.Seal(nonce, nonce, payload, nil)
	return s.next.Put(ctx, sealed, name)
}

func (s *SealedBackend) Get(ctx context.Context, address string) ([]byte, error) {
	sealed, err := s.next.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, errors.NewInternalError("init cipher", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.NewInternalError(fmt.Sprintf("sealed object %s is truncated", address), nil).WithOperation("fetch")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("open sealed object %s", address), err).WithOperation("fetch")
	}
	return plain, nil
}

// Health delegates to the wrapped backend.
func (s *SealedBackend) Health(ctx context.Context) error {
	if hc, ok := s.next.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}
