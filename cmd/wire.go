package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	promadapter "github.com/bnema/khaos-agent/internal/adapters/metrics/prom"
	"github.com/bnema/khaos-agent/internal/adapters/personality"
	tomlrepo "github.com/bnema/khaos-agent/internal/adapters/repo/toml"
	gocronadapter "github.com/bnema/khaos-agent/internal/adapters/scheduler/gocron"
	chainstore "github.com/bnema/khaos-agent/internal/adapters/secrets/chain"
	"github.com/bnema/khaos-agent/internal/adapters/source/httpjson"
	"github.com/bnema/khaos-agent/internal/adapters/source/simulated"
	"github.com/bnema/khaos-agent/internal/application"
	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	envPrefix = "KHAOS"

	keyHeartbeatInterval  = "heartbeat.interval"
	keyHealthInterval     = "health.interval"
	keyStabilize          = "startup.stabilize"
	keyMaxRefreshFailures = "client.max_refresh_failures"
	keyFetchTimeout       = "client.fetch_timeout"
	keySourceKind         = "source.kind"
	keySourceURL          = "source.url"
	keySourceTarget       = "source.target"
	keySourceLatency      = "source.latency"
	keySourceFailureRate  = "source.failure_rate"
	keySourceTokenRef     = "source.token_ref"
	keySecretsDir         = "secrets.dir"
	keyLogLevel           = "log.level"
	keyLogFormat          = "log.format"
	keyLogFile            = "log.file"
	keyLogMaxSizeMB       = "log.max_size_mb"
	keyLogMaxBackups      = "log.max_backups"
	keyMetricsAddr        = "metrics.addr"

	sourceSimulated = "simulated"
	sourceHTTP      = "http"

	defaultLogLevel    = "info"
	schedulerStopAfter = 15 * time.Second
)

func newConfig() *viper.Viper {
	cfg := viper.New()
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault(personality.PathKey, personality.DefaultPath)
	cfg.SetDefault(keyHeartbeatInterval, application.DefaultHeartbeatInterval)
	cfg.SetDefault(keyHealthInterval, application.DefaultHealthInterval)
	cfg.SetDefault(keyStabilize, application.DefaultStabilizeDelay)
	cfg.SetDefault(keyMaxRefreshFailures, application.DefaultMaxRefreshFailures)
	cfg.SetDefault(keyFetchTimeout, application.DefaultFetchTimeout)
	cfg.SetDefault(keySourceKind, sourceSimulated)
	cfg.SetDefault(keySourceLatency, simulated.DefaultLatency)
	cfg.SetDefault(keySourceFailureRate, simulated.DefaultFailureRate)
	cfg.SetDefault(keyLogLevel, defaultLogLevel)
	cfg.SetDefault(keyLogFormat, "text")
	cfg.SetDefault(keyLogMaxSizeMB, 10)
	cfg.SetDefault(keyLogMaxBackups, 3)

	return cfg
}

type agent struct {
	orchestrator *application.Orchestrator
	memory       *application.MemoryStore
	memoryPath   string
	metrics      *promadapter.Metrics
}

// wireAgent builds the orchestrator and everything it owns. Any error here is
// a configuration error and stops the process.
func wireAgent(ctx context.Context, c *cli) (*agent, error) {
	var loader ports.PersonalityLoader = personality.NewLoader(c.cfg)
	persona, err := loader.Load()
	if err != nil {
		return nil, err
	}

	repo, err := tomlrepo.NewRepository(c.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: wire memory repository: %w", domain.ErrConfigLoad, err)
	}

	source, err := buildSource(ctx, c.cfg)
	if err != nil {
		return nil, err
	}

	sched, err := gocronadapter.New(gocronadapter.Options{Logger: c.log, StopTimeout: schedulerStopAfter})
	if err != nil {
		return nil, fmt.Errorf("%w: wire scheduler: %w", domain.ErrConfigLoad, err)
	}

	clock := ports.SystemClock{}
	memory := application.NewMemoryStore(repo)
	metrics := promadapter.New()
	sessionID := uuid.NewString()

	orchestrator := application.NewOrchestrator(
		application.OrchestratorConfig{
			HeartbeatInterval: c.cfg.GetDuration(keyHeartbeatInterval),
			HealthInterval:    c.cfg.GetDuration(keyHealthInterval),
			StabilizeDelay:    c.cfg.GetDuration(keyStabilize),
		},
		application.OrchestratorDeps{
			SessionID:   sessionID,
			Personality: persona,
			Selector:    application.NewSelector(persona.Mix, application.DefaultCorpus(), nil),
			Memory:      memory,
			Client:      newStateClient(c.cfg, source, clock),
			Scheduler:   sched,
			Clock:       clock,
			Logger:      c.log,
			Metrics:     metrics,
		},
	)

	c.log.WithFields(logrus.Fields{
		"session":     sessionID,
		"personality": persona.Name,
		"memory":      repo.Path(),
		"source":      c.cfg.GetString(keySourceKind),
	}).Debug("agent wired")

	return &agent{
		orchestrator: orchestrator,
		memory:       memory,
		memoryPath:   repo.Path(),
		metrics:      metrics,
	}, nil
}

func newStateClient(cfg *viper.Viper, source ports.StateSource, clock ports.Clock) *application.StateClient {
	return application.NewStateClient(source, application.StateClientConfig{
		MaxRefreshFailures: cfg.GetInt(keyMaxRefreshFailures),
		FetchTimeout:       cfg.GetDuration(keyFetchTimeout),
	}, clock)
}

func buildSource(ctx context.Context, cfg *viper.Viper) (ports.StateSource, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.GetString(keySourceKind)))
	switch kind {
	case sourceSimulated:
		return simulated.New(simulated.Config{
			Target:      cfg.GetString(keySourceTarget),
			Latency:     cfg.GetDuration(keySourceLatency),
			FailureRate: cfg.GetFloat64(keySourceFailureRate),
		}), nil
	case sourceHTTP:
		token, err := resolveToken(ctx, cfg)
		if err != nil {
			return nil, err
		}
		source, err := httpjson.New(httpjson.Config{
			URL:    cfg.GetString(keySourceURL),
			Target: cfg.GetString(keySourceTarget),
			Token:  token,
			Client: &http.Client{},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: wire http source: %w", domain.ErrConfigLoad, err)
		}
		return source, nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q (expected %s or %s)", domain.ErrConfigLoad, kind, sourceSimulated, sourceHTTP)
	}
}

func resolveToken(ctx context.Context, cfg *viper.Viper) (string, error) {
	ref := cfg.GetString(keySourceTokenRef)
	if ref == "" {
		return "", nil
	}

	dir := cfg.GetString(keySecretsDir)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: resolve home directory: %w", domain.ErrConfigLoad, err)
		}
		dir = filepath.Join(homeDir, ".khaos", "secrets")
	}

	store, err := chainstore.NewPassFirstWithFileFallback(dir)
	if err != nil {
		return "", fmt.Errorf("%w: wire secret store chain: %w", domain.ErrConfigLoad, err)
	}

	token, err := store.Lookup(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%w: resolve source token %q: %w", domain.ErrConfigLoad, ref, err)
	}

	return token, nil
}
