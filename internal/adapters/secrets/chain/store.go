package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/khaos-agent/internal/adapters/secrets/file"
	passstore "github.com/bnema/khaos-agent/internal/adapters/secrets/pass"
	"github.com/bnema/khaos-agent/internal/ports"
)

// Store asks the primary backend first and falls back to the secondary one.
type Store struct {
	primary  ports.Credentials
	fallback ports.Credentials
}

var _ ports.Credentials = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary secret store is nil")
	errNilFallbackStore = errors.New("fallback secret store is nil")
)

func NewStore(primary ports.Credentials, fallback ports.Credentials) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	return &Store{primary: primary, fallback: fallback}, nil
}

func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Lookup(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Lookup(ctx, key)
	if err == nil {
		return value, nil
	}
	if shouldSkipFallback(err) {
		return "", err
	}

	fallbackValue, fallbackErr := s.fallback.Lookup(ctx, key)
	if fallbackErr == nil {
		return fallbackValue, nil
	}

	return "", fmt.Errorf("primary backend lookup failed: %w; fallback backend lookup failed: %w", err, fallbackErr)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
