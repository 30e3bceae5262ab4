package ports

import (
	"context"

	"github.com/bnema/khaos-agent/internal/domain"
)

// MemoryRepository reads and overwrites the whole persisted memory document.
// Load returns a default document when nothing has been persisted yet.
type MemoryRepository interface {
	Load(ctx context.Context) (domain.Memory, error)
	Save(ctx context.Context, memory domain.Memory) error
}
