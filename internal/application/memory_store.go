package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
)

// MemoryStore keeps the interaction history in memory and writes the whole
// document back through the repository after every mutation.
type MemoryStore struct {
	repo          ports.MemoryRepository
	mu            sync.Mutex
	memory        domain.Memory
	priorSessions int
}

func NewMemoryStore(repo ports.MemoryRepository) *MemoryStore {
	return &MemoryStore{repo: repo, memory: domain.NewMemory()}
}

// Load replaces the in-memory document with the persisted one. On failure the
// store is reset to an empty document and the returned error wraps
// domain.ErrMemoryLoad; the store stays usable.
func (s *MemoryStore) Load(ctx context.Context) error {
	memory, err := s.repo.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.memory = domain.NewMemory()
		s.priorSessions = 0
		return fmt.Errorf("%w: %w", domain.ErrMemoryLoad, err)
	}

	memory.ApplyDefaults()
	s.memory = memory
	s.priorSessions = len(memory.SessionHistory)
	return nil
}

// Append records the interaction, trims its sequence to the cap and saves.
// A save failure is returned wrapped in domain.ErrMemorySave; the record is
// kept in memory and goes out with the next successful save.
func (s *MemoryStore) Append(ctx context.Context, record domain.InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory.Append(record)
	return s.saveLocked(ctx)
}

func (s *MemoryStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(ctx)
}

func (s *MemoryStore) saveLocked(ctx context.Context) error {
	if err := s.repo.Save(ctx, s.memory.Clone()); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMemorySave, err)
	}
	return nil
}

func (s *MemoryStore) Counts() (heartbeats, stateUpdates int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.memory.Heartbeats), len(s.memory.StateUpdates)
}

// PriorSessions is the number of distinct sessions found at load time.
func (s *MemoryStore) PriorSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.priorSessions
}

func (s *MemoryStore) SessionsSeen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.memory.SessionHistory)
}

func (s *MemoryStore) Document() domain.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.memory.Clone()
}
