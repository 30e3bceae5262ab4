package ports

import "github.com/bnema/khaos-agent/internal/domain"

type PersonalityLoader interface {
	Load() (domain.Personality, error)
}
