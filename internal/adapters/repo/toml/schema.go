package toml

type fileSchema struct {
	SessionHistory       []string          `toml:"session_history"`
	PersonalityEvolution []string          `toml:"personality_evolution"`
	Relationships        map[string]string `toml:"relationships"`
	LearnedPatterns      map[string]string `toml:"learned_patterns"`
	Heartbeats           []recordSchema    `toml:"heartbeats"`
	StateUpdates         []recordSchema    `toml:"state_updates"`
}

func (s *fileSchema) applyDefaults() {
	if s.SessionHistory == nil {
		s.SessionHistory = []string{}
	}
	if s.PersonalityEvolution == nil {
		s.PersonalityEvolution = []string{}
	}
	if s.Relationships == nil {
		s.Relationships = map[string]string{}
	}
	if s.LearnedPatterns == nil {
		s.LearnedPatterns = map[string]string{}
	}
	if s.Heartbeats == nil {
		s.Heartbeats = []recordSchema{}
	}
	if s.StateUpdates == nil {
		s.StateUpdates = []recordSchema{}
	}
}

type recordSchema struct {
	SessionID string          `toml:"session_id"`
	Timestamp string          `toml:"timestamp"`
	Kind      string          `toml:"kind"`
	Category  string          `toml:"category,omitempty"`
	Text      string          `toml:"text"`
	Snapshot  *snapshotSchema `toml:"snapshot,omitempty"`
}

type snapshotSchema struct {
	MemberCount        int              `toml:"member_count"`
	ActiveItemCount    int              `toml:"active_item_count"`
	Treasury           string           `toml:"treasury"`
	LastActivity       string           `toml:"last_activity"`
	GovernanceToken    string           `toml:"governance_token,omitempty"`
	ConsensusThreshold string           `toml:"consensus_threshold,omitempty"`
	Items              []proposalSchema `toml:"items,omitempty"`
}

type proposalSchema struct {
	ID           int    `toml:"id"`
	Title        string `toml:"title"`
	Status       string `toml:"status"`
	ForVotes     int    `toml:"for_votes"`
	AgainstVotes int    `toml:"against_votes"`
	Deadline     string `toml:"deadline"`
}
