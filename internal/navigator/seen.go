package navigator

import (
	"context"
	"sync"
)

// SeenCache remembers which PDF digests were already judged for one question.
type SeenCache interface {
	// Claim records digest and reports whether this was the first claim.
	Claim(ctx context.Context, digest string) (bool, error)
	// Release forgets a claim whose document never got a verdict.
	Release(ctx context.Context, digest string) error
}

type MemorySeen struct {
	mu     sync.Mutex
	digest map[string]struct{}
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{digest: map[string]struct{}{}}
}

func (m *MemorySeen) Claim(ctx context.Context, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.digest[digest]; ok {
		return false, nil
	}
	m.digest[digest] = struct{}{}
	return true, nil
}

func (m *MemorySeen) Release(ctx context.Context, digest string) error {
	m.mu.Lock()
	delete(m.digest, digest)
	m.mu.Unlock()
	return nil
}

func (m *MemorySeen) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.digest)
}
