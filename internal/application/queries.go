package application

import (
	"time"

	"github.com/bnema/khaos-agent/internal/domain"
)

// MemorySummary is the offline view of a persisted memory document.
type MemorySummary struct {
	Path            string                  `json:"path" yaml:"path"`
	Heartbeats      int                     `json:"heartbeats" yaml:"heartbeats"`
	HeartbeatCap    int                     `json:"heartbeat_cap" yaml:"heartbeat_cap"`
	StateUpdates    int                     `json:"state_updates" yaml:"state_updates"`
	StateUpdateCap  int                     `json:"state_update_cap" yaml:"state_update_cap"`
	Sessions        int                     `json:"sessions" yaml:"sessions"`
	LastSession     string                  `json:"last_session,omitempty" yaml:"last_session,omitempty"`
	LastHeartbeatAt time.Time               `json:"last_heartbeat_at,omitzero" yaml:"last_heartbeat_at,omitempty"`
	LastStateAt     time.Time               `json:"last_state_at,omitzero" yaml:"last_state_at,omitempty"`
	Categories      map[domain.Category]int `json:"categories" yaml:"categories"`
	LastSnapshot    *SnapshotSummary        `json:"last_snapshot,omitempty" yaml:"last_snapshot,omitempty"`
}

type SnapshotSummary struct {
	MemberCount     int    `json:"members" yaml:"members"`
	ActiveItemCount int    `json:"active_proposals" yaml:"active_proposals"`
	Treasury        string `json:"treasury" yaml:"treasury"`
}

func SummarizeMemory(path string, memory domain.Memory) MemorySummary {
	summary := MemorySummary{
		Path:           path,
		Heartbeats:     len(memory.Heartbeats),
		HeartbeatCap:   domain.HeartbeatCap,
		StateUpdates:   len(memory.StateUpdates),
		StateUpdateCap: domain.StateUpdateCap,
		Sessions:       len(memory.SessionHistory),
		Categories:     map[domain.Category]int{},
	}

	if n := len(memory.SessionHistory); n > 0 {
		summary.LastSession = memory.SessionHistory[n-1]
	}
	for _, record := range memory.Heartbeats {
		if record.Category != "" {
			summary.Categories[record.Category]++
		}
	}
	for _, record := range memory.StateUpdates {
		if record.Category != "" {
			summary.Categories[record.Category]++
		}
	}

	if n := len(memory.Heartbeats); n > 0 {
		summary.LastHeartbeatAt = memory.Heartbeats[n-1].Timestamp
	}
	if n := len(memory.StateUpdates); n > 0 {
		last := memory.StateUpdates[n-1]
		summary.LastStateAt = last.Timestamp
		if last.Snapshot != nil {
			summary.LastSnapshot = &SnapshotSummary{
				MemberCount:     last.Snapshot.MemberCount,
				ActiveItemCount: last.Snapshot.ActiveItemCount,
				Treasury:        last.Snapshot.Treasury,
			}
		}
	}

	return summary
}
