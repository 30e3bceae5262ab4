package simulated

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
)

const (
	DefaultTarget      = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	DefaultLatency     = 2 * time.Second
	DefaultFailureRate = 0.2

	FailureReason = "network timeout: the blockchain is having an existential crisis"

	memberDriftChance   = 0.3
	proposalDriftChance = 0.2
)

type Random interface {
	Float64() float64
}

type Config struct {
	Target      string
	Latency     time.Duration
	FailureRate float64
	Rand        Random
	Clock       ports.Clock
}

// Source is an in-process stand-in for a DAO contract. The first successful
// fetch returns the genesis state; later fetches drift it a little.
type Source struct {
	cfg Config

	mu    sync.Mutex
	state *domain.Snapshot
}

func New(cfg Config) *Source {
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	if cfg.Latency < 0 {
		cfg.Latency = 0
	}
	if cfg.FailureRate < 0 {
		cfg.FailureRate = 0
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}

	return &Source{cfg: cfg}
}

func (s *Source) Target() string {
	return s.cfg.Target
}

func (s *Source) Fetch(ctx context.Context) (domain.Snapshot, error) {
	if err := wait(ctx, s.cfg.Latency); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Rand.Float64() < s.cfg.FailureRate {
		return domain.Snapshot{}, &domain.SourceError{Reason: FailureReason}
	}

	now := s.cfg.Clock.Now().UTC()
	if s.state == nil {
		genesis := Genesis(now)
		s.state = &genesis
		return genesis.Clone(), nil
	}

	s.drift(now)
	return s.state.Clone(), nil
}

func (s *Source) drift(now time.Time) {
	if s.cfg.Rand.Float64() < memberDriftChance {
		s.state.MemberCount = max(1, s.state.MemberCount+s.step())
	}
	if s.cfg.Rand.Float64() < proposalDriftChance {
		s.state.ActiveItemCount = max(0, s.state.ActiveItemCount+s.step())
	}
	s.state.LastActivity = now
}

func (s *Source) step() int {
	if s.cfg.Rand.Float64() < 0.5 {
		return -1
	}
	return 1
}

// Genesis is the state the simulated DAO starts from.
func Genesis(now time.Time) domain.Snapshot {
	return domain.Snapshot{
		MemberCount:        7,
		ActiveItemCount:    2,
		Treasury:           "42.5 ETH",
		LastActivity:       now,
		GovernanceToken:    "CTGA",
		ConsensusThreshold: "51%",
		Items: []domain.Proposal{
			{
				ID:           1,
				Title:        "Upgrade AI Agent Integration",
				Status:       "voting",
				ForVotes:     4,
				AgainstVotes: 1,
				Deadline:     "2025-05-30",
			},
			{
				ID:       2,
				Title:    "Treasury Diversification Strategy",
				Status:   "discussion",
				Deadline: "2025-06-01",
			},
		},
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
