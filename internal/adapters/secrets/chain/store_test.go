package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	values map[string]string
	err    error
	calls  int
}

func (s *stubStore) Lookup(_ context.Context, key string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	value, ok := s.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return value, nil
}

func TestStoreLookupPrefersPrimary(t *testing.T) {
	t.Parallel()

	primary := &stubStore{values: map[string]string{"k": "from-pass"}}
	fallback := &stubStore{values: map[string]string{"k": "from-file"}}
	store, err := NewStore(primary, fallback)
	require.NoError(t, err)

	value, err := store.Lookup(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "from-pass", value)
	assert.Zero(t, fallback.calls)
}

func TestStoreLookupFallsBack(t *testing.T) {
	t.Parallel()

	primary := &stubStore{err: errors.New("pass command unavailable")}
	fallback := &stubStore{values: map[string]string{"k": "from-file"}}
	store, err := NewStore(primary, fallback)
	require.NoError(t, err)

	value, err := store.Lookup(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)
}

func TestStoreLookupReportsBothFailures(t *testing.T) {
	t.Parallel()

	primaryErr := errors.New("pass failed")
	fallbackErr := errors.New("file failed")
	store, err := NewStore(&stubStore{err: primaryErr}, &stubStore{err: fallbackErr})
	require.NoError(t, err)

	_, err = store.Lookup(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, fallbackErr)
}

func TestStoreLookupSkipsFallbackOnCancellation(t *testing.T) {
	t.Parallel()

	fallback := &stubStore{values: map[string]string{"k": "v"}}
	store, err := NewStore(&stubStore{err: context.Canceled}, fallback)
	require.NoError(t, err)

	_, err = store.Lookup(context.Background(), "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallback.calls)
}

func TestNewStoreRejectsNil(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, &stubStore{})
	assert.Error(t, err)
	_, err = NewStore(&stubStore{}, nil)
	assert.Error(t, err)
}
