package domain

import (
	"slices"
	"time"
)

type InteractionKind string

const (
	InteractionHeartbeat   InteractionKind = "heartbeat"
	InteractionStateUpdate InteractionKind = "state_update"
)

const (
	HeartbeatCap   = 100
	StateUpdateCap = 50
)

type InteractionRecord struct {
	SessionID string
	Timestamp time.Time
	Kind      InteractionKind
	Category  Category
	Text      string
	Snapshot  *Snapshot
}

func (r InteractionRecord) Clone() InteractionRecord {
	r.Snapshot = ClonePtr(r.Snapshot)
	return r
}

// Memory is the persisted interaction history of the agent.
type Memory struct {
	Heartbeats           []InteractionRecord
	StateUpdates         []InteractionRecord
	SessionHistory       []string
	Relationships        map[string]string
	LearnedPatterns      map[string]string
	PersonalityEvolution []string
}

func NewMemory() Memory {
	m := Memory{}
	m.ApplyDefaults()
	return m
}

func (m *Memory) ApplyDefaults() {
	if m.Heartbeats == nil {
		m.Heartbeats = []InteractionRecord{}
	}
	if m.StateUpdates == nil {
		m.StateUpdates = []InteractionRecord{}
	}
	if m.SessionHistory == nil {
		m.SessionHistory = []string{}
	}
	if m.Relationships == nil {
		m.Relationships = map[string]string{}
	}
	if m.LearnedPatterns == nil {
		m.LearnedPatterns = map[string]string{}
	}
	if m.PersonalityEvolution == nil {
		m.PersonalityEvolution = []string{}
	}
}

// Append stores the record in the sequence for its kind and evicts the
// oldest entries beyond that sequence's cap.
func (m *Memory) Append(record InteractionRecord) {
	switch record.Kind {
	case InteractionStateUpdate:
		m.StateUpdates = appendCapped(m.StateUpdates, record, StateUpdateCap)
	default:
		m.Heartbeats = appendCapped(m.Heartbeats, record, HeartbeatCap)
	}
	m.RememberSession(record.SessionID)
}

func (m *Memory) RememberSession(sessionID string) {
	if sessionID == "" || slices.Contains(m.SessionHistory, sessionID) {
		return
	}
	m.SessionHistory = append(m.SessionHistory, sessionID)
}

func (m Memory) Clone() Memory {
	clone := Memory{
		Heartbeats:           cloneRecords(m.Heartbeats),
		StateUpdates:         cloneRecords(m.StateUpdates),
		SessionHistory:       slices.Clone(m.SessionHistory),
		PersonalityEvolution: slices.Clone(m.PersonalityEvolution),
		Relationships:        cloneMap(m.Relationships),
		LearnedPatterns:      cloneMap(m.LearnedPatterns),
	}
	clone.ApplyDefaults()
	return clone
}

func appendCapped(records []InteractionRecord, record InteractionRecord, limit int) []InteractionRecord {
	records = append(records, record.Clone())
	if overflow := len(records) - limit; overflow > 0 {
		trimmed := make([]InteractionRecord, limit)
		copy(trimmed, records[overflow:])
		return trimmed
	}
	return records
}

func cloneRecords(records []InteractionRecord) []InteractionRecord {
	if records == nil {
		return nil
	}
	out := make([]InteractionRecord, len(records))
	for i, record := range records {
		out[i] = record.Clone()
	}
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
