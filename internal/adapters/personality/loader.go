package personality

import (
	"fmt"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
	"github.com/spf13/viper"
)

const (
	PathKey     = "personality.path"
	DefaultPath = "personality-dna.json"

	nameKey          = "core_persona.name"
	fingerprintKey   = "core_persona.dna_profile.content_hash"
	sarcasmKey       = "core_persona.personality_mix.sarcasm"
	philosophicalKey = "core_persona.personality_mix.philosophical"
	helpfulKey       = "core_persona.personality_mix.helpful"
)

// Loader reads the personality definition file. The format follows the file
// extension (json, yaml, toml).
type Loader struct {
	path string
}

var _ ports.PersonalityLoader = (*Loader)(nil)

func NewLoader(cfg *viper.Viper) *Loader {
	path := DefaultPath
	if cfg != nil {
		if configured := cfg.GetString(PathKey); configured != "" {
			path = configured
		}
	}
	return &Loader{path: path}
}

func (l *Loader) Path() string {
	return l.path
}

func (l *Loader) Load() (domain.Personality, error) {
	v := viper.New()
	v.SetConfigFile(l.path)
	if err := v.ReadInConfig(); err != nil {
		return domain.Personality{}, fmt.Errorf("%w: read personality file %s: %w", domain.ErrConfigLoad, l.path, err)
	}

	for _, key := range []string{nameKey, fingerprintKey, sarcasmKey, philosophicalKey, helpfulKey} {
		if !v.IsSet(key) {
			return domain.Personality{}, fmt.Errorf("%w: personality file %s: missing %s", domain.ErrConfigLoad, l.path, key)
		}
	}

	personality := domain.Personality{
		Name:        v.GetString(nameKey),
		Fingerprint: v.GetString(fingerprintKey),
		Mix: domain.PersonalityMix{
			Sarcasm:       v.GetFloat64(sarcasmKey),
			Philosophical: v.GetFloat64(philosophicalKey),
			Helpful:       v.GetFloat64(helpfulKey),
		},
	}
	if err := personality.Validate(); err != nil {
		return domain.Personality{}, fmt.Errorf("%w: personality file %s: %w", domain.ErrConfigLoad, l.path, err)
	}

	return personality, nil
}
