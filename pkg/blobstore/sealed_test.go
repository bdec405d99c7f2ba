package blobstore

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/carefolio/records/pkg/errors"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealedBackend(t *testing.T) {
	key, err := ParseKey("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	mem := NewMemoryBackend()
	sealed, err := NewSealedBackend(mem, key)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	payload := []byte(`{"diagnosis":"seasonal allergy"}`)

	addr, err := sealed.Put(ctx, payload, "notes.json")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	raw, err := mem.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("seasonal")) {
		t.Error("plaintext leaked into stored object")
	}

	got, err := sealed.Get(ctx, addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}

	t.Run("wrong key", func(t *testing.T) {
		other, _ := ParseKey(strings.Repeat("ff", 32))
		wrong, _ := NewSealedBackend(mem, other)
		if _, err := wrong.Get(ctx, addr); !errors.IsInternal(err) {
			t.Fatalf("expected internal error, got %v", err)
		}
	})

	t.Run("missing passes through", func(t *testing.T) {
		missing, _ := ComputeAddress([]byte("missing"))
		if _, err := sealed.Get(ctx, missing); !errors.IsBlobNotFound(err) {
			t.Fatalf("expected blob not found, got %v", err)
		}
	})
}

func TestParseKey(t *testing.T) {
	if _, err := ParseKey("abcd"); err == nil {
		t.Error("expected short key error")
	}
	if _, err := ParseKey("zz"); err == nil {
		t.Error("expected hex error")
	}
}
