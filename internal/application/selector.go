package application

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"sync"
	"text/template"

	"github.com/bnema/khaos-agent/internal/domain"
)

const NoContentText = "no content available"

// Context tags understood by the default corpus.
const (
	ContextHeartbeat             = "autonomous_heartbeat"
	ContextStateUpdate           = "dao_state"
	ContextConnectionEstablished = "connection_established"
	ContextConnectionFailed      = "connection_failed"
	ContextGreetingFirst         = "greeting_first"
	ContextGreetingRestored      = "greeting_restored"
	ContextFarewell              = "farewell"
)

// Random is the source of randomness used by selection. *rand.Rand from
// math/rand/v2 satisfies it.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type Weight struct {
	Category domain.Category
	Weight   float64
}

type Categories struct {
	Sarcastic     []string
	Philosophical []string
	Helpful       []string
}

func (c Categories) lines(category domain.Category) []string {
	switch category {
	case domain.CategorySarcastic:
		return c.Sarcastic
	case domain.CategoryPhilosophical:
		return c.Philosophical
	default:
		return c.Helpful
	}
}

type Selection struct {
	Category domain.Category
	Text     string
}

// MixWeights lists the mix as sampler weights in selection order.
func MixWeights(mix domain.PersonalityMix) []Weight {
	return []Weight{
		{Category: domain.CategorySarcastic, Weight: mix.Sarcasm},
		{Category: domain.CategoryPhilosophical, Weight: mix.Philosophical},
		{Category: domain.CategoryHelpful, Weight: mix.Helpful},
	}
}

// Sample maps r in [0,1) onto the cumulative weights. Values past the total
// weight land on the last category.
func Sample(weights []Weight, r float64) domain.Category {
	if len(weights) == 0 {
		return ""
	}

	cumulative := 0.0
	for _, w := range weights {
		cumulative += w.Weight
		if r < cumulative {
			return w.Category
		}
	}

	return weights[len(weights)-1].Category
}

func Select(mix domain.PersonalityMix, categories Categories, rng Random) Selection {
	category := Sample(MixWeights(mix), rng.Float64())
	lines := categories.lines(category)
	if len(lines) == 0 {
		return Selection{Category: category, Text: NoContentText}
	}

	return Selection{Category: category, Text: lines[rng.IntN(len(lines))]}
}

// Corpus maps a context tag to its categorized lines. Lines are
// text/template sources rendered against the data passed to Selector.Select.
type Corpus map[string]Categories

type Selector struct {
	mix       domain.PersonalityMix
	corpus    Corpus
	rng       Random
	mu        sync.Mutex
	templates map[string]*template.Template
}

func NewSelector(mix domain.PersonalityMix, corpus Corpus, rng Random) *Selector {
	if corpus == nil {
		corpus = DefaultCorpus()
	}
	if rng == nil {
		rng = globalRandom{}
	}

	return &Selector{
		mix:       mix,
		corpus:    corpus,
		rng:       rng,
		templates: map[string]*template.Template{},
	}
}

func (s *Selector) Select(contextTag string, data any) Selection {
	s.mu.Lock()
	selection := Select(s.mix, s.corpus[contextTag], s.rng)
	s.mu.Unlock()

	if selection.Text == NoContentText || !strings.Contains(selection.Text, "{{") {
		return selection
	}

	selection.Text = s.render(selection.Text, data)
	return selection
}

func (s *Selector) render(line string, data any) string {
	s.mu.Lock()
	tmpl, ok := s.templates[line]
	if !ok {
		parsed, err := template.New("line").Option("missingkey=error").Parse(line)
		if err == nil {
			tmpl = parsed
		}
		s.templates[line] = tmpl
	}
	s.mu.Unlock()

	if tmpl == nil {
		return line
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return line
	}

	return buf.String()
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.IntN(n) }
