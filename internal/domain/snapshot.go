package domain

import (
	"fmt"
	"time"
)

type Proposal struct {
	ID           int
	Title        string
	Status       string
	ForVotes     int
	AgainstVotes int
	Deadline     string
}

// Snapshot is one observation of the external DAO state. It is replaced
// wholesale on every successful refresh and never edited in place.
type Snapshot struct {
	MemberCount        int
	ActiveItemCount    int
	Treasury           string
	LastActivity       time.Time
	GovernanceToken    string
	ConsensusThreshold string
	Items              []Proposal
}

func (s Snapshot) Validate() error {
	if s.MemberCount < 1 {
		return fmt.Errorf("member count must be at least 1, got %d", s.MemberCount)
	}
	if s.ActiveItemCount < 0 {
		return fmt.Errorf("active item count must not be negative, got %d", s.ActiveItemCount)
	}

	return nil
}

func (s Snapshot) Clone() Snapshot {
	clone := s
	if s.Items != nil {
		clone.Items = make([]Proposal, len(s.Items))
		copy(clone.Items, s.Items)
	}
	return clone
}

// ClonePtr copies a possibly nil snapshot pointer.
func ClonePtr(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	clone := s.Clone()
	return &clone
}

type ConnectionState struct {
	Connected bool
	Snapshot  *Snapshot
}

// Valid reports whether the snapshot presence matches the connection flag.
func (c ConnectionState) Valid() bool {
	if c.Connected {
		return c.Snapshot != nil
	}
	return c.Snapshot == nil
}

func (c ConnectionState) Label() string {
	if c.Connected {
		return "Connected"
	}
	return "Disconnected"
}
