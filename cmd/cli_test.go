package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	tomlrepo "github.com/bnema/khaos-agent/internal/adapters/repo/toml"
	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const personalityFixture = `{
  "core_persona": {
    "name": "KHAOS",
    "dna_profile": {"content_hash": "0x9f8e7d6c"},
    "personality_mix": {"sarcasm": 0.4, "philosophical": 0.35, "helpful": 0.25}
  }
}`

const stateDocument = `{"members": 9, "activeProposals": 3, "treasury": "40.1 ETH", "lastActivity": "2026-05-30T10:00:00Z"}`

func TestVersionPrintsVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestStatusWithoutMemory(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "KHAOS Memory")
	assert.Contains(t, stdout, filepath.Join(home, ".khaos", "agent-memory.toml"))
	assert.Contains(t, stdout, "No memories yet")
}

func TestStatusRendersPersistedMemory(t *testing.T) {
	home := t.TempDir()
	writeMemoryFixture(t, home)

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "heartbeats:")
	assert.Contains(t, stdout, "2/100")
	assert.Contains(t, stdout, "last session: session-b")
	assert.Contains(t, stdout, "last DAO state: 7 members, 2 proposals, 42.5 ETH")
}

func TestStatusJSONOutput(t *testing.T) {
	home := t.TempDir()
	writeMemoryFixture(t, home)

	stdout, _, err := executeCLI(t, home, "status", "--json")
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"heartbeats\": 2")
	assert.Contains(t, stdout, "\"state_updates\": 1")
	assert.Contains(t, stdout, "\"sessions\": 2")
}

func TestStatusYAMLOutput(t *testing.T) {
	home := t.TempDir()
	writeMemoryFixture(t, home)

	stdout, _, err := executeCLI(t, home, "status", "--yaml")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &decoded))
	assert.Equal(t, 2, decoded["heartbeats"])
	assert.Equal(t, "session-b", decoded["last_session"])
}

func TestStatusRejectsBothFormats(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "status", "--json", "--yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestStatusHonoursMemoryPathEnv(t *testing.T) {
	home := t.TempDir()
	custom := filepath.Join(t.TempDir(), "elsewhere.toml")
	t.Setenv("KHAOS_MEMORY_PATH", custom)

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, custom)
}

func TestProbeSimulatedSource(t *testing.T) {
	quietSimulation(t)

	stdout, stderr, err := executeCLI(t, t.TempDir(), "probe")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "connection: Connected")
	assert.Contains(t, stdout, "target: 0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	assert.Contains(t, stdout, "members: 7")
	assert.Contains(t, stdout, "treasury: 42.5 ETH")
}

func TestProbeSimulatedFailure(t *testing.T) {
	quietSimulation(t)
	t.Setenv("KHAOS_SOURCE_FAILURE_RATE", "1")

	stdout, _, err := executeCLI(t, t.TempDir(), "probe")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternalConnect)
	assert.Contains(t, stdout, "connection: Disconnected")
	assert.Contains(t, stdout, "existential crisis")
}

func TestProbeHTTPSourceSendsStoredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer rpc-token-123", r.Header.Get("Authorization"))
		_, _ = fmt.Fprint(w, stateDocument)
	}))
	defer server.Close()

	secrets := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(secrets, "dao"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(secrets, "dao", "rpc"), []byte("rpc-token-123\n"), 0o600))

	t.Setenv("KHAOS_SOURCE_KIND", "http")
	t.Setenv("KHAOS_SOURCE_URL", server.URL)
	t.Setenv("KHAOS_SOURCE_TARGET", "dao-testnet")
	t.Setenv("KHAOS_SOURCE_TOKEN_REF", "dao/rpc")
	t.Setenv("KHAOS_SECRETS_DIR", secrets)

	stdout, _, err := executeCLI(t, t.TempDir(), "probe")
	require.NoError(t, err)
	assert.Contains(t, stdout, "target: dao-testnet")
	assert.Contains(t, stdout, "members: 9")
	assert.Contains(t, stdout, "active proposals: 3")
}

func TestProbeHTTPSourceShowsSpinner(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = fmt.Fprint(w, stateDocument)
	}))
	defer server.Close()

	t.Setenv("KHAOS_SOURCE_KIND", "http")
	t.Setenv("KHAOS_SOURCE_URL", server.URL)

	_, stderr, err := executeCLI(t, t.TempDir(), "probe")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Connecting to "+server.URL)
}

func TestProbeHTTPSourceReportsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	t.Setenv("KHAOS_SOURCE_KIND", "http")
	t.Setenv("KHAOS_SOURCE_URL", server.URL)

	stdout, _, err := executeCLI(t, t.TempDir(), "probe")
	require.Error(t, err)
	assert.Contains(t, stdout, "last error: unexpected status 502")
}

func TestProbeMissingTokenIsConfigError(t *testing.T) {
	t.Setenv("KHAOS_SOURCE_KIND", "http")
	t.Setenv("KHAOS_SOURCE_URL", "http://127.0.0.1:1")
	t.Setenv("KHAOS_SOURCE_TOKEN_REF", "dao/absent")
	t.Setenv("KHAOS_SECRETS_DIR", t.TempDir())

	_, _, err := executeCLI(t, t.TempDir(), "probe")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestProbeUnknownSourceKind(t *testing.T) {
	t.Setenv("KHAOS_SOURCE_KIND", "carrier-pigeon")

	_, _, err := executeCLI(t, t.TempDir(), "probe")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestRunMissingPersonalityIsFatal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("KHAOS_PERSONALITY_PATH", filepath.Join(home, "absent.json"))

	_, _, err := executeCLI(t, home, "run")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
	assert.Equal(t, domain.ErrorKindConfigLoad, domain.KindOf(err))
}

func TestRunUntilCancelled(t *testing.T) {
	home := t.TempDir()
	fastAgent(t, home)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	stdout, stderr, err := executeCLIContext(ctx, t, home, "run")
	require.NoError(t, err, "stderr: %s", stderr)

	assert.Contains(t, stdout, "KHAOS Status Report")
	assert.Contains(t, stdout, "KHAOS (DNA 0x9f8e7d6c)")
	assert.Contains(t, stdout, "connection: Connected")
	assert.Contains(t, stdout, "KHAOS Final Report")
	assert.Contains(t, stderr, "agent fully operational")
	assert.Contains(t, stderr, "shutdown complete")

	memory := loadMemory(t, home)
	assert.NotEmpty(t, memory.Heartbeats)
	assert.NotEmpty(t, memory.StateUpdates)
	assert.Len(t, memory.SessionHistory, 1)
}

func TestRunRestoresPriorSessions(t *testing.T) {
	home := t.TempDir()
	fastAgent(t, home)

	for range 2 {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		_, stderr, err := executeCLIContext(ctx, t, home, "run")
		cancel()
		require.NoError(t, err, "stderr: %s", stderr)
	}

	assert.Len(t, loadMemory(t, home).SessionHistory, 2)
}

func TestRunCorruptMemoryIsNotFatal(t *testing.T) {
	home := t.TempDir()
	fastAgent(t, home)

	memoryPath := filepath.Join(home, ".khaos", "agent-memory.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(memoryPath), 0o700))
	require.NoError(t, os.WriteFile(memoryPath, []byte("heartbeats = [[[ not toml"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	stdout, stderr, err := executeCLIContext(ctx, t, home, "run")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stderr, "could not restore memory")
	assert.Contains(t, stdout, "KHAOS Final Report")
	assert.NotEmpty(t, loadMemory(t, home).Heartbeats)
}

func TestRunServesMetrics(t *testing.T) {
	home := t.TempDir()
	fastAgent(t, home)
	t.Setenv("HOME", home)
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"run", "--metrics-addr", addr})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && bytes.Contains(body, []byte("khaos_dao_connected 1"))
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestEnvFileIsLoaded(t *testing.T) {
	home := t.TempDir()
	custom := filepath.Join(home, "from-dotenv.toml")
	envFile := filepath.Join(home, "khaos.env")
	require.NoError(t, os.WriteFile(envFile, []byte("KHAOS_MEMORY_PATH="+custom+"\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("KHAOS_MEMORY_PATH") })

	stdout, _, err := executeCLI(t, home, "--env-file", envFile, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, custom)
}

func TestExplicitMissingEnvFileFails(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "--env-file", filepath.Join(home, "absent.env"), "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestConfigFileIsRead(t *testing.T) {
	home := t.TempDir()
	custom := filepath.Join(home, "configured.toml")
	configPath := filepath.Join(home, "khaos.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf("[memory]\npath = %q\n", custom)), 0o600))

	stdout, _, err := executeCLI(t, home, "--config", configPath, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, custom)
}

func TestUnsupportedLogFormatFails(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "--log-format", "xml", "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIContext(context.Background(), t, home, args...)
}

func executeCLIContext(ctx context.Context, t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// quietSimulation removes latency and failures from the simulated source.
func quietSimulation(t *testing.T) {
	t.Helper()
	t.Setenv("KHAOS_SOURCE_LATENCY", "0s")
	t.Setenv("KHAOS_SOURCE_FAILURE_RATE", "0")
}

func fastAgent(t *testing.T, home string) {
	t.Helper()

	path := filepath.Join(home, "personality-dna.json")
	require.NoError(t, os.WriteFile(path, []byte(personalityFixture), 0o644))

	quietSimulation(t)
	t.Setenv("KHAOS_PERSONALITY_PATH", path)
	t.Setenv("KHAOS_STARTUP_STABILIZE", "0s")
	t.Setenv("KHAOS_HEARTBEAT_INTERVAL", "30ms")
	t.Setenv("KHAOS_HEALTH_INTERVAL", "60ms")
}

func memoryRepo(t *testing.T, home string) *tomlrepo.Repository {
	t.Helper()

	cfg := viper.New()
	cfg.Set(tomlrepo.MemoryPathKey, filepath.Join(home, ".khaos", "agent-memory.toml"))
	repo, err := tomlrepo.NewRepository(cfg)
	require.NoError(t, err)
	return repo
}

func loadMemory(t *testing.T, home string) domain.Memory {
	t.Helper()

	memory, err := memoryRepo(t, home).Load(context.Background())
	require.NoError(t, err)
	return memory
}

func writeMemoryFixture(t *testing.T, home string) {
	t.Helper()

	at := time.Date(2026, 5, 30, 12, 0, 0, 0, time.UTC)
	snapshot := domain.Snapshot{MemberCount: 7, ActiveItemCount: 2, Treasury: "42.5 ETH", LastActivity: at}

	memory := domain.NewMemory()
	memory.Append(domain.InteractionRecord{SessionID: "session-a", Timestamp: at, Kind: domain.InteractionHeartbeat, Category: domain.CategorySarcastic, Text: "still here"})
	memory.Append(domain.InteractionRecord{SessionID: "session-b", Timestamp: at.Add(time.Minute), Kind: domain.InteractionHeartbeat, Category: domain.CategoryHelpful, Text: "all systems nominal"})
	memory.Append(domain.InteractionRecord{SessionID: "session-b", Timestamp: at.Add(2 * time.Minute), Kind: domain.InteractionStateUpdate, Category: domain.CategoryHelpful, Text: "7 members", Snapshot: &snapshot})

	require.NoError(t, memoryRepo(t, home).Save(context.Background(), memory))
}

func freeAddr(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}
