package blobstore

import (
	"context"
	"sync"

	"github.com/carefolio/records/pkg/errors"
)

// MemoryBackend is an in-process Backend for tests and local runs. Failures
// can be injected with FailPuts and FailGets.
type MemoryBackend struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPuts int
	failGets int
	puts     int
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

// FailPuts makes the next n Put calls fail as unavailable.
func (m *MemoryBackend) FailPuts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPuts = n
}

// FailGets makes the next n Get calls fail as unavailable.
func (m *MemoryBackend) FailGets(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGets = n
}

// Puts returns the number of Put calls that reached the backend.
func (m *MemoryBackend) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Delete drops address from the backend.
func (m *MemoryBackend) Delete(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, address)
}

func (m *MemoryBackend) Put(ctx context.Context, payload []byte, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failPuts > 0 {
		m.failPuts--
		return "", errors.NewBlobUnavailableError("store", "", errors.New("injected failure"))
	}
	address, err := ComputeAddress(payload)
	if err != nil {
		return "", errors.NewBlobUnavailableError("store", "", err)
	}
	m.objects[address] = append([]byte(nil), payload...)
	return address, nil
}

func (m *MemoryBackend) Get(ctx context.Context, address string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGets > 0 {
		m.failGets--
		return nil, errors.NewBlobUnavailableError("fetch", address, errors.New("injected failure"))
	}
	data, ok := m.objects[address]
	if !ok {
		return nil, errors.NewBlobNotFoundError(address, nil)
	}
	return append([]byte(nil), data...), nil
}
