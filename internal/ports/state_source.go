package ports

import (
	"context"

	"github.com/bnema/khaos-agent/internal/domain"
)

// StateSource fetches the current DAO state. Failures should carry a
// *domain.SourceError so callers can report a readable reason.
type StateSource interface {
	Target() string
	Fetch(ctx context.Context) (domain.Snapshot, error)
}
