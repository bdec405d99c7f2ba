package blobstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/carefolio/records/pkg/errors"
	"github.com/carefolio/records/pkg/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{
		AttemptTimeout:  time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestClientRoundTripIsByteIdentical(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"doctorName":"Jane","specialization":"Cardiology"}`),
		[]byte("  leading and trailing whitespace \r\n\t"),
		{0x00, 0xff, 0x10, 0x80},
		{},
	}

	c := New(NewMemoryBackend(), Options{Policy: testPolicy()})
	for _, p := range payloads {
		addr, err := c.Store(context.Background(), p, "payload.json")
		if err != nil {
			t.Fatalf("Store(%q): %v", p, err)
		}
		got, err := c.Fetch(context.Background(), addr)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", addr, err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip mismatch: stored %q, fetched %q", p, got)
		}
	}
}

func TestClientRetriesUnavailable(t *testing.T) {
	mem := NewMemoryBackend()
	c := New(mem, Options{Policy: testPolicy()})

	mem.FailPuts(2)
	if _, err := c.Store(context.Background(), []byte("x"), ""); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if mem.Puts() != 3 {
		t.Errorf("expected 3 attempts, got %d", mem.Puts())
	}

	mem.FailPuts(5)
	_, err := c.Store(context.Background(), []byte("y"), "")
	if !errors.IsBlobUnavailable(err) {
		t.Fatalf("expected blob store unavailable after exhausting attempts, got %v", err)
	}
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	mem := NewMemoryBackend()
	c := New(mem, Options{Policy: testPolicy()})

	addr, _ := ComputeAddress([]byte("never stored"))
	_, err := c.Fetch(context.Background(), addr)
	if !errors.IsBlobNotFound(err) {
		t.Fatalf("expected blob not found, got %v", err)
	}
}

func TestClientURL(t *testing.T) {
	c := New(NewMemoryBackend(), Options{GatewayURL: "https://gateway.pinata.cloud/ipfs/"})
	if got := c.URL("bafkabc"); got != "https://gateway.pinata.cloud/ipfs/bafkabc" {
		t.Errorf("URL = %q", got)
	}
	if got := c.URL(""); got != "" {
		t.Errorf("URL of empty address = %q", got)
	}
}

func TestComputeAddress(t *testing.T) {
	a1, err := ComputeAddress([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := ComputeAddress([]byte("hello"))
	a3, _ := ComputeAddress([]byte("hello!"))

	if a1 != a2 {
		t.Errorf("same bytes gave different addresses: %s %s", a1, a2)
	}
	if a1 == a3 {
		t.Error("different bytes gave the same address")
	}
	if a1[:4] != "bafk" {
		t.Errorf("expected a raw CIDv1 (bafk...), got %s", a1)
	}

	ok, err := VerifyAddress(a1, []byte("hello"))
	if err != nil || !ok {
		t.Errorf("VerifyAddress(match) = %v, %v", ok, err)
	}
	ok, _ = VerifyAddress(a1, []byte("tampered"))
	if ok {
		t.Error("VerifyAddress accepted tampered bytes")
	}
	if _, err := VerifyAddress("not-a-cid", nil); err == nil {
		t.Error("expected decode error")
	}
}
