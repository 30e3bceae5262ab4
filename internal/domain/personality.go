package domain

import (
	"fmt"
	"math"
	"strings"
)

const mixTolerance = 1e-6

type Category string

const (
	CategorySarcastic     Category = "sarcastic"
	CategoryPhilosophical Category = "philosophical"
	CategoryHelpful       Category = "helpful"
)

type PersonalityMix struct {
	Sarcasm       float64
	Philosophical float64
	Helpful       float64
}

type Personality struct {
	Name        string
	Fingerprint string
	Mix         PersonalityMix
}

func (m PersonalityMix) Validate() error {
	for _, part := range []struct {
		name  string
		value float64
	}{
		{"sarcasm", m.Sarcasm},
		{"philosophical", m.Philosophical},
		{"helpful", m.Helpful},
	} {
		if math.IsNaN(part.value) || part.value < 0 || part.value > 1 {
			return fmt.Errorf("personality mix %s must be within [0,1], got %v", part.name, part.value)
		}
	}

	sum := m.Sarcasm + m.Philosophical + m.Helpful
	if math.Abs(sum-1) > mixTolerance {
		return fmt.Errorf("personality mix must sum to 1, got %v", sum)
	}

	return nil
}

// Percent returns the whole-number share of each category, in selection order.
func (m PersonalityMix) Percent() (sarcasm, philosophical, helpful int) {
	return int(math.Round(m.Sarcasm * 100)), int(math.Round(m.Philosophical * 100)), int(math.Round(m.Helpful * 100))
}

func (p Personality) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("personality name is required")
	}
	if strings.TrimSpace(p.Fingerprint) == "" {
		return fmt.Errorf("personality fingerprint is required")
	}

	return p.Mix.Validate()
}
