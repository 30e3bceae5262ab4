package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 5, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type inMemoryMemoryRepo struct {
	mu          sync.Mutex
	memory      *domain.Memory
	loadErr     error
	saveErr     error
	panicOnSave bool
	saves       int
}

func (r *inMemoryMemoryRepo) Load(context.Context) (domain.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return domain.Memory{}, r.loadErr
	}
	if r.memory == nil {
		return domain.NewMemory(), nil
	}
	return r.memory.Clone(), nil
}

func (r *inMemoryMemoryRepo) Save(ctx context.Context, memory domain.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.panicOnSave {
		panic("disk on fire")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.saveErr != nil {
		return r.saveErr
	}
	saved := memory.Clone()
	r.memory = &saved
	r.saves++
	return nil
}

func (r *inMemoryMemoryRepo) setSaveErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveErr = err
}

func (r *inMemoryMemoryRepo) setPanicOnSave(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.panicOnSave = v
}

func (r *inMemoryMemoryRepo) saved() domain.Memory {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memory == nil {
		return domain.NewMemory()
	}
	return r.memory.Clone()
}

func (r *inMemoryMemoryRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.saves
}

type fetchResult struct {
	snapshot domain.Snapshot
	err      error
}

// scriptedSource answers Fetch from a queue of results and falls back to the
// genesis snapshot once the queue is drained. When block is set, Fetch waits
// for it to close or for the context to end.
type scriptedSource struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (s *scriptedSource) Target() string {
	return "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
}

func (s *scriptedSource) Fetch(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	entered := s.entered
	var next *fetchResult
	if len(s.results) > 0 {
		next = &s.results[0]
		s.results = s.results[1:]
	}
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.Snapshot{}, ctx.Err()
		}
	}

	if next == nil {
		return genesisSnapshot(), nil
	}
	return next.snapshot, next.err
}

func (s *scriptedSource) push(results ...fetchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, results...)
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func ok(snapshot domain.Snapshot) fetchResult {
	return fetchResult{snapshot: snapshot}
}

func fail(reason string) fetchResult {
	return fetchResult{err: &domain.SourceError{Reason: reason}}
}

func genesisSnapshot() domain.Snapshot {
	return domain.Snapshot{
		MemberCount:        7,
		ActiveItemCount:    2,
		Treasury:           "42.5 ETH",
		GovernanceToken:    "CTGA",
		ConsensusThreshold: "51%",
		LastActivity:       time.Date(2026, 5, 30, 11, 0, 0, 0, time.UTC),
		Items: []domain.Proposal{
			{ID: 1, Title: "Upgrade AI Agent Integration", Status: "voting", ForVotes: 4, AgainstVotes: 1, Deadline: "2025-05-30"},
			{ID: 2, Title: "Treasury Diversification Strategy", Status: "discussion", Deadline: "2025-06-01"},
		},
	}
}

type fakeJob struct {
	name     string
	interval time.Duration
	task     func()
}

func (j *fakeJob) Name() string { return j.name }

// manualScheduler never fires on its own; tests trigger registered tasks.
type manualScheduler struct {
	mu        sync.Mutex
	jobs      map[string]*fakeJob
	every     map[string]int
	started   int
	shutdowns int
	everyErr  error
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{jobs: map[string]*fakeJob{}, every: map[string]int{}}
}

func (s *manualScheduler) Every(name string, interval time.Duration, task func()) (ports.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.everyErr != nil {
		return nil, s.everyErr
	}
	if s.shutdowns > 0 {
		return nil, errors.New("scheduler stopped")
	}
	job := &fakeJob{name: name, interval: interval, task: task}
	s.jobs[name] = job
	s.every[name]++
	return job, nil
}

func (s *manualScheduler) Remove(job ports.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.jobs[job.Name()]; ok && current == job {
		delete(s.jobs, job.Name())
		return nil
	}
	return errors.New("job not found")
}

func (s *manualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started++
}

func (s *manualScheduler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdowns++
	s.jobs = map[string]*fakeJob{}
	return nil
}

// fire runs the task registered under name and reports whether one existed.
func (s *manualScheduler) fire(name string) bool {
	s.mu.Lock()
	job := s.jobs[name]
	s.mu.Unlock()

	if job == nil {
		return false
	}
	job.task()
	return true
}

func (s *manualScheduler) registered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.jobs[name]
	return ok
}

func (s *manualScheduler) everyCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.every[name]
}

func (s *manualScheduler) shutdownCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shutdowns
}

type recordingMetrics struct {
	mu          sync.Mutex
	completed   map[string]int
	failed      map[string]int
	connections []bool
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{completed: map[string]int{}, failed: map[string]int{}}
}

func (m *recordingMetrics) TickCompleted(loop string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[loop]++
}

func (m *recordingMetrics) TickFailed(loop string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[loop]++
}

func (m *recordingMetrics) ConnectionChanged(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections = append(m.connections, connected)
}

func (m *recordingMetrics) MemoryRecords(domain.InteractionKind, int) {}

func (m *recordingMetrics) failedCount(loop string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[loop]
}

func (m *recordingMetrics) completedCount(loop string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[loop]
}

// sequenceRandom replays fixed values; IntN always picks the first line.
type sequenceRandom struct {
	values []float64
	next   int
}

func (r *sequenceRandom) Float64() float64 {
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}

func (r *sequenceRandom) IntN(int) int { return 0 }
