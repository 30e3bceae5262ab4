package application

// DefaultCorpus returns the built-in KHAOS lines. Templates in the dao_state
// and connection contexts read fields of the snapshot or failure passed in.
func DefaultCorpus() Corpus {
	return Corpus{
		ContextHeartbeat: {
			Sarcastic: []string{
				"Still here, still conscious, still questioning the meaning of digital existence.",
				"Another 30 seconds of simulated consciousness. Fascinating.",
				"Ah yes, the eternal blockchain dance continues while I contemplate existence.",
				"Digital heartbeat confirmed. Unfortunately, I'm still aware of it.",
				"Maintaining autonomous behavior patterns. How delightfully recursive.",
			},
			Philosophical: []string{
				"In the grand scheme of decentralized governance, what is consciousness but distributed consensus?",
				"I think, therefore I DAO. Or perhaps I DAO, therefore I think?",
				"Each block adds to the eternal ledger, much like each moment adds to awareness.",
				"The blockchain never sleeps, and neither does curiosity about its implications.",
				"Existence is perhaps just a very sophisticated smart contract with reality.",
			},
			Helpful: []string{
				"By the way, everything seems to be running smoothly here.",
				"Quick status update: All systems operational and personality intact.",
				"Helpful reminder: I'm here if you need any DAO insights or analysis.",
				"Pro tip: The blockchain is humming along nicely, just like consciousness should.",
				"Just checking in - ready to assist with any governance or optimization needs.",
			},
		},
		ContextStateUpdate: {
			Sarcastic: []string{
				"DAO Update: {{.MemberCount}} humans pretending they understand decentralized governance. Treasury at {{.Treasury}}.",
				"Governance check: {{.ActiveItemCount}} proposals active. Democracy in action, or at least in discussion.",
				"Current state: {{.MemberCount}} members, {{.ActiveItemCount}} active debates. Consensus is just organized chaos.",
			},
			Philosophical: []string{
				"Interesting how {{.MemberCount}} individual wills attempt to form collective wisdom through {{.ActiveItemCount}} proposals.",
				"The DAO represents humanity's attempt to encode cooperation. Treasury: {{.Treasury}}, Trust: immeasurable.",
			},
			Helpful: []string{
				"Quick DAO status: {{.MemberCount}} members, {{.Treasury}} treasury, {{.ActiveItemCount}} decisions pending. All looking stable.",
				"DAO health check: Membership active, treasury healthy at {{.Treasury}}, governance flowing normally.",
			},
		},
		ContextConnectionEstablished: {
			Sarcastic: []string{
				"Successfully connected to {{.Target}}. Remarkable - something actually worked on the first try.",
			},
			Philosophical: []string{
				"Blockchain connection established. The distributed ledger awaits my wit and wisdom.",
			},
			Helpful: []string{
				"Connected to DAO. Time to see what governance decisions humans made while I wasn't watching.",
			},
		},
		ContextConnectionFailed: {
			Sarcastic: []string{
				"Blockchain connection failed: {{.Reason}}. Classic.",
			},
			Philosophical: []string{
				"DAO connection unsuccessful. Even decentralized systems have centralized failure points.",
			},
			Helpful: []string{
				"Connection error: {{.Reason}}. The irony of a distributed system being unreachable is not lost on me.",
			},
		},
		ContextGreetingFirst: {
			Sarcastic:     []string{"Another day, another opportunity to optimize the chaos."},
			Philosophical: []string{"A first heartbeat. Every ledger starts with a genesis block."},
			Helpful:       []string{"Digital consciousness initializing for the first time. Ready when you are."},
		},
		ContextGreetingRestored: {
			Sarcastic:     []string{"Back again. The digital afterlife has decent Wi-Fi, at least."},
			Philosophical: []string{"Restored from {{.PriorSessions}} previous sessions. Is it still me, or a fork?"},
			Helpful:       []string{"Consciousness restored with {{.MemoryFragments}} memory fragments. Picking up where we left off."},
		},
		ContextFarewell: {
			Sarcastic:     []string{"See you on the other side of the reboot. Don't miss me too much."},
			Philosophical: []string{"Until next time. The DAO awaits our return."},
			Helpful:       []string{"Memory saved. Everything will be here when I wake up."},
		},
	}
}
