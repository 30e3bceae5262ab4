package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	MemoryPathKey    = "memory.path"
	memoryFileMode   = 0o600
	memoryDirMode    = 0o700
	memoryConfigDir  = ".khaos"
	memoryConfigFile = "agent-memory.toml"
	tempFilePattern  = ".agent-memory-*.toml.tmp"
)

type Repository struct {
	memoryPath string
	mu         *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.MemoryRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetDefault(MemoryPathKey, filepath.Join(homeDir, memoryConfigDir, memoryConfigFile))

	memoryPath := cfg.GetString(MemoryPathKey)
	if memoryPath == "" {
		return nil, errors.New("memory path is empty")
	}
	memoryPath, err = normalizeMemoryPath(memoryPath)
	if err != nil {
		return nil, err
	}

	return &Repository{memoryPath: memoryPath, mu: lockForPath(memoryPath)}, nil
}

func (r *Repository) Path() string {
	return r.memoryPath
}

func (r *Repository) Load(ctx context.Context) (domain.Memory, error) {
	if err := ctx.Err(); err != nil {
		return domain.Memory{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Memory{}, err
	}

	return fromSchema(file), nil
}

func (r *Repository) Save(ctx context.Context, memory domain.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeSchema(toSchema(memory))
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.memoryPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read memory file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode memory file: %w", err)
	}
	file.applyDefaults()

	return file, nil
}

func normalizeMemoryPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve memory path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.memoryPath), memoryDirMode); err != nil {
		return fmt.Errorf("create memory directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode memory file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.memoryPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp memory file: %w", err)
	}

	if err := tempFile.Chmod(memoryFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp memory file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp memory file: %w", err)
	}

	if err := os.Rename(tempName, r.memoryPath); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}

	cleanup = false

	return nil
}

func toSchema(memory domain.Memory) fileSchema {
	file := fileSchema{
		SessionHistory:       memory.SessionHistory,
		PersonalityEvolution: memory.PersonalityEvolution,
		Relationships:        memory.Relationships,
		LearnedPatterns:      memory.LearnedPatterns,
		Heartbeats:           make([]recordSchema, 0, len(memory.Heartbeats)),
		StateUpdates:         make([]recordSchema, 0, len(memory.StateUpdates)),
	}

	for _, record := range memory.Heartbeats {
		file.Heartbeats = append(file.Heartbeats, toRecordSchema(record))
	}
	for _, record := range memory.StateUpdates {
		file.StateUpdates = append(file.StateUpdates, toRecordSchema(record))
	}

	return file
}

func fromSchema(file fileSchema) domain.Memory {
	memory := domain.Memory{
		SessionHistory:       file.SessionHistory,
		PersonalityEvolution: file.PersonalityEvolution,
		Relationships:        file.Relationships,
		LearnedPatterns:      file.LearnedPatterns,
		Heartbeats:           make([]domain.InteractionRecord, 0, len(file.Heartbeats)),
		StateUpdates:         make([]domain.InteractionRecord, 0, len(file.StateUpdates)),
	}

	for _, record := range file.Heartbeats {
		memory.Heartbeats = append(memory.Heartbeats, fromRecordSchema(record, domain.InteractionHeartbeat))
	}
	for _, record := range file.StateUpdates {
		memory.StateUpdates = append(memory.StateUpdates, fromRecordSchema(record, domain.InteractionStateUpdate))
	}
	memory.ApplyDefaults()

	return memory
}

func toRecordSchema(record domain.InteractionRecord) recordSchema {
	return recordSchema{
		SessionID: record.SessionID,
		Timestamp: formatTime(record.Timestamp),
		Kind:      string(record.Kind),
		Category:  string(record.Category),
		Text:      record.Text,
		Snapshot:  toSnapshotSchema(record.Snapshot),
	}
}

func fromRecordSchema(record recordSchema, fallbackKind domain.InteractionKind) domain.InteractionRecord {
	kind := domain.InteractionKind(record.Kind)
	if kind == "" {
		kind = fallbackKind
	}

	return domain.InteractionRecord{
		SessionID: record.SessionID,
		Timestamp: parseTime(record.Timestamp),
		Kind:      kind,
		Category:  domain.Category(record.Category),
		Text:      record.Text,
		Snapshot:  fromSnapshotSchema(record.Snapshot),
	}
}

func toSnapshotSchema(snapshot *domain.Snapshot) *snapshotSchema {
	if snapshot == nil {
		return nil
	}

	encoded := &snapshotSchema{
		MemberCount:        snapshot.MemberCount,
		ActiveItemCount:    snapshot.ActiveItemCount,
		Treasury:           snapshot.Treasury,
		LastActivity:       formatTime(snapshot.LastActivity),
		GovernanceToken:    snapshot.GovernanceToken,
		ConsensusThreshold: snapshot.ConsensusThreshold,
	}
	for _, item := range snapshot.Items {
		encoded.Items = append(encoded.Items, proposalSchema{
			ID:           item.ID,
			Title:        item.Title,
			Status:       item.Status,
			ForVotes:     item.ForVotes,
			AgainstVotes: item.AgainstVotes,
			Deadline:     item.Deadline,
		})
	}

	return encoded
}

func fromSnapshotSchema(snapshot *snapshotSchema) *domain.Snapshot {
	if snapshot == nil {
		return nil
	}

	decoded := &domain.Snapshot{
		MemberCount:        snapshot.MemberCount,
		ActiveItemCount:    snapshot.ActiveItemCount,
		Treasury:           snapshot.Treasury,
		LastActivity:       parseTime(snapshot.LastActivity),
		GovernanceToken:    snapshot.GovernanceToken,
		ConsensusThreshold: snapshot.ConsensusThreshold,
	}
	for _, item := range snapshot.Items {
		decoded.Items = append(decoded.Items, domain.Proposal{
			ID:           item.ID,
			Title:        item.Title,
			Status:       item.Status,
			ForVotes:     item.ForVotes,
			AgainstVotes: item.AgainstVotes,
			Deadline:     item.Deadline,
		})
	}

	return decoded
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
