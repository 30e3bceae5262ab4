package domain

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalityMixValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mix     PersonalityMix
		wantErr string
	}{
		{name: "valid", mix: PersonalityMix{Sarcasm: 0.7, Philosophical: 0.2, Helpful: 0.1}},
		{name: "all sarcasm", mix: PersonalityMix{Sarcasm: 1}},
		{name: "sum too low", mix: PersonalityMix{Sarcasm: 0.5, Philosophical: 0.2, Helpful: 0.1}, wantErr: "must sum to 1"},
		{name: "sum too high", mix: PersonalityMix{Sarcasm: 0.7, Philosophical: 0.2, Helpful: 0.2}, wantErr: "must sum to 1"},
		{name: "negative share", mix: PersonalityMix{Sarcasm: 1.2, Philosophical: -0.2}, wantErr: "within [0,1]"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.mix.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestPersonalityValidateRequiresIdentity(t *testing.T) {
	t.Parallel()

	mix := PersonalityMix{Sarcasm: 0.7, Philosophical: 0.2, Helpful: 0.1}

	assert.ErrorContains(t, Personality{Fingerprint: "abc", Mix: mix}.Validate(), "name is required")
	assert.ErrorContains(t, Personality{Name: "KHAOS", Mix: mix}.Validate(), "fingerprint is required")
	assert.NoError(t, Personality{Name: "KHAOS", Fingerprint: "abc", Mix: mix}.Validate())
}

func TestPersonalityMixPercent(t *testing.T) {
	t.Parallel()

	s, p, h := PersonalityMix{Sarcasm: 0.7, Philosophical: 0.2, Helpful: 0.1}.Percent()
	assert.Equal(t, []int{70, 20, 10}, []int{s, p, h})
}

func TestMemoryAppendNeverExceedsCaps(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	memory := NewMemory()

	for i := 0; i < 400; i++ {
		kind := InteractionHeartbeat
		if rng.IntN(3) == 0 {
			kind = InteractionStateUpdate
		}
		memory.Append(InteractionRecord{SessionID: "s-1", Kind: kind, Text: fmt.Sprintf("tick %d", i)})

		require.LessOrEqual(t, len(memory.Heartbeats), HeartbeatCap)
		require.LessOrEqual(t, len(memory.StateUpdates), StateUpdateCap)
	}
}

func TestMemoryAppendEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	memory := NewMemory()
	for i := 1; i <= 101; i++ {
		memory.Append(InteractionRecord{SessionID: "s-1", Kind: InteractionHeartbeat, Text: fmt.Sprintf("tick %d", i)})
	}

	require.Len(t, memory.Heartbeats, HeartbeatCap)
	assert.Equal(t, "tick 2", memory.Heartbeats[0].Text)
	assert.Equal(t, "tick 101", memory.Heartbeats[HeartbeatCap-1].Text)
	assert.Empty(t, memory.StateUpdates)
}

func TestMemoryTracksSessionsOnce(t *testing.T) {
	t.Parallel()

	memory := NewMemory()
	memory.Append(InteractionRecord{SessionID: "a", Kind: InteractionHeartbeat})
	memory.Append(InteractionRecord{SessionID: "b", Kind: InteractionStateUpdate})
	memory.Append(InteractionRecord{SessionID: "a", Kind: InteractionHeartbeat})
	memory.RememberSession("")

	assert.Equal(t, []string{"a", "b"}, memory.SessionHistory)
}

func TestMemoryAppendCopiesSnapshot(t *testing.T) {
	t.Parallel()

	snapshot := &Snapshot{MemberCount: 7, Items: []Proposal{{ID: 1, Title: "Upgrade"}}}
	memory := NewMemory()
	memory.Append(InteractionRecord{Kind: InteractionStateUpdate, Snapshot: snapshot})

	snapshot.MemberCount = 99
	snapshot.Items[0].Title = "changed"

	stored := memory.StateUpdates[0].Snapshot
	require.NotNil(t, stored)
	assert.Equal(t, 7, stored.MemberCount)
	assert.Equal(t, "Upgrade", stored.Items[0].Title)
}

func TestSnapshotValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Snapshot{MemberCount: 1}.Validate())
	assert.ErrorContains(t, Snapshot{MemberCount: 0}.Validate(), "member count")
	assert.ErrorContains(t, Snapshot{MemberCount: 3, ActiveItemCount: -1}.Validate(), "active item count")
}

func TestConnectionStateValid(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{MemberCount: 7, LastActivity: time.Now()}

	assert.True(t, ConnectionState{}.Valid())
	assert.True(t, ConnectionState{Connected: true, Snapshot: snap}.Valid())
	assert.False(t, ConnectionState{Connected: true}.Valid())
	assert.False(t, ConnectionState{Snapshot: snap}.Valid())
	assert.Equal(t, "Disconnected", ConnectionState{}.Label())
}

func TestKindOfAndFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err   error
		kind  ErrorKind
		fatal bool
	}{
		{err: fmt.Errorf("load personality: %w", ErrConfigLoad), kind: ErrorKindConfigLoad, fatal: true},
		{err: fmt.Errorf("read: %w", ErrMemoryLoad), kind: ErrorKindMemoryLoad},
		{err: fmt.Errorf("write: %w", ErrMemorySave), kind: ErrorKindMemorySave},
		{err: fmt.Errorf("%w: %w", ErrExternalConnect, &SourceError{Reason: "timeout"}), kind: ErrorKindExternalConnect},
		{err: fmt.Errorf("%w: stale", ErrExternalRefresh), kind: ErrorKindExternalRefresh},
		{err: fmt.Errorf("heartbeat: %w", ErrLoopPanic), kind: ErrorKindLoop},
		{err: fmt.Errorf("something else"), kind: ErrorKindUnknown},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.kind, KindOf(tc.err), tc.err.Error())
		assert.Equal(t, tc.fatal, KindOf(tc.err).Fatal(), tc.err.Error())
	}
}

func TestFailureReasonUnwrapsSourceError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: %w", ErrExternalConnect, &SourceError{Reason: "timeout"})
	assert.Equal(t, "timeout", FailureReason(err))
	assert.Equal(t, "", FailureReason(nil))
}
