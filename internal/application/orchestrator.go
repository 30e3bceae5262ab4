package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHealthInterval    = 120 * time.Second
	DefaultStabilizeDelay    = 2 * time.Second

	LoopHeartbeat    = "heartbeat"
	LoopHealth       = "health"
	LoopStateRefresh = "state_refresh"
)

type OrchestratorConfig struct {
	HeartbeatInterval time.Duration
	HealthInterval    time.Duration
	StabilizeDelay    time.Duration
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.StabilizeDelay < 0 {
		c.StabilizeDelay = 0
	}
}

type OrchestratorDeps struct {
	SessionID   string
	Personality domain.Personality
	Selector    *Selector
	Memory      *MemoryStore
	Client      *StateClient
	Scheduler   ports.Scheduler
	Clock       ports.Clock
	Logger      logrus.FieldLogger
	Metrics     ports.Metrics
}

type StatusReport struct {
	SessionID       string
	PersonalityName string
	Fingerprint     string
	Running         bool
	HeartbeatAlive  bool
	MemoryFragments int
	StateUpdates    int
	PriorSessions   int
	Connection      ClientStatus
}

type FinalReport struct {
	SessionID          string
	StartedAt          time.Time
	StoppedAt          time.Time
	Runtime            time.Duration
	HeartbeatTicks     int64
	StateUpdateTicks   int64
	HeartbeatRecords   int
	StateUpdateRecords int
	SessionsSeen       int
	SaveError          string
}

// Orchestrator owns the agent lifetime: it is the only component that starts
// or stops the periodic loops and decides when to restart or reconnect.
type Orchestrator struct {
	cfg         OrchestratorConfig
	sessionID   string
	personality domain.Personality
	selector    *Selector
	memory      *MemoryStore
	client      *StateClient
	scheduler   ports.Scheduler
	clock       ports.Clock
	log         logrus.FieldLogger
	metrics     ports.Metrics

	life       context.Context
	cancelLife context.CancelFunc
	stopping   atomic.Bool

	mu             sync.Mutex
	initializing   bool
	running        bool
	startedAt      time.Time
	heartbeatJob   ports.Job
	heartbeatSince time.Time
	healthJob      ports.Job

	lastBeat         atomic.Int64
	heartbeatTicks   atomic.Int64
	stateUpdateTicks atomic.Int64

	// Held for the whole of one tick so the same loop never overlaps itself.
	heartbeatBusy sync.Mutex
	healthBusy    sync.Mutex

	shutdownOnce sync.Once
	final        FinalReport
}

func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps) *Orchestrator {
	cfg.applyDefaults()
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Selector == nil {
		deps.Selector = NewSelector(deps.Personality.Mix, nil, nil)
	}

	life, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		cfg:         cfg,
		sessionID:   deps.SessionID,
		personality: deps.Personality,
		selector:    deps.Selector,
		memory:      deps.Memory,
		client:      deps.Client,
		scheduler:   deps.Scheduler,
		clock:       deps.Clock,
		log:         deps.Logger.WithField("session", deps.SessionID),
		metrics:     deps.Metrics,
		life:        life,
		cancelLife:  cancel,
	}
}

// Initialize starts the heartbeat, waits for the stabilization delay, makes
// one connection attempt and schedules the health loop. A failed connection
// does not fail initialization; the health loop keeps retrying.
func (o *Orchestrator) Initialize(ctx context.Context) (StatusReport, error) {
	o.mu.Lock()
	switch {
	case o.stopping.Load():
		o.mu.Unlock()
		return StatusReport{}, fmt.Errorf("initialize: %w", domain.ErrShuttingDown)
	case o.running || o.initializing:
		o.mu.Unlock()
		return StatusReport{}, fmt.Errorf("initialize: %w", domain.ErrAlreadyRunning)
	}
	o.initializing = true
	o.startedAt = o.clock.Now()
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.initializing = false
		o.mu.Unlock()
	}()

	ctx, release := o.scope(ctx)
	defer release()

	o.log.WithField("personality", o.personality.Name).Info("phase 1: activating heartbeat")
	o.scheduler.Start()
	if err := o.startHeartbeat(); err != nil {
		return StatusReport{}, fmt.Errorf("start heartbeat loop: %w", err)
	}

	if err := o.sleep(ctx, o.cfg.StabilizeDelay); err != nil {
		return StatusReport{}, fmt.Errorf("stabilize: %w", err)
	}

	o.log.WithField("target", o.client.Status().Target).Info("phase 2: connecting to DAO")
	if err := o.connect(ctx); err != nil {
		o.log.Warn("continuing without DAO connection, the health loop will retry")
	}

	o.log.Info("phase 3: status report")
	o.logStatus(o.Status())

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopping.Load() {
		return StatusReport{}, fmt.Errorf("initialize: %w", domain.ErrShuttingDown)
	}
	o.running = true

	job, err := o.scheduler.Every(LoopHealth, o.cfg.HealthInterval, o.healthTick)
	if err != nil {
		o.running = false
		return StatusReport{}, fmt.Errorf("start health loop: %w", err)
	}
	o.healthJob = job

	o.log.WithFields(logrus.Fields{
		"heartbeat_interval": o.cfg.HeartbeatInterval.String(),
		"health_interval":    o.cfg.HealthInterval.String(),
	}).Info("agent fully operational")

	return o.statusLocked(), nil
}

// Shutdown stops every loop, disconnects from the DAO, flushes memory and
// returns the final report. Only the first call does any work; later calls
// return the same report.
func (o *Orchestrator) Shutdown(ctx context.Context) FinalReport {
	o.shutdownOnce.Do(func() {
		o.final = o.shutdown(ctx)
	})
	return o.final
}

func (o *Orchestrator) shutdown(ctx context.Context) FinalReport {
	o.log.Info("initiating graceful shutdown")
	o.stopping.Store(true)
	o.cancelLife()

	o.mu.Lock()
	jobs := []ports.Job{o.heartbeatJob, o.healthJob}
	heartbeatWasAlive := o.heartbeatJob != nil
	o.heartbeatJob = nil
	o.healthJob = nil
	o.mu.Unlock()

	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := o.scheduler.Remove(job); err != nil {
			o.log.WithError(err).WithField("loop", job.Name()).Warn("remove scheduled loop")
		}
	}
	if err := o.scheduler.Shutdown(); err != nil {
		o.log.WithError(err).Warn("scheduler shutdown")
	}

	// Wait for ticks that were already running; they observe the stopping
	// flag and the cancelled lifetime context. The locks are never released.
	o.heartbeatBusy.Lock()
	o.healthBusy.Lock()

	if o.client.Status().Connected {
		o.log.Info("disconnecting from DAO")
		o.client.Disconnect()
		o.metrics.ConnectionChanged(false)
		o.log.Info("DAO connection terminated, the blockchain will have to govern itself for now")
	}

	if heartbeatWasAlive {
		farewell := o.selector.Select(ContextFarewell, nil)
		o.log.WithField("category", farewell.Category).Info("heartbeat stopped: " + farewell.Text)
	}

	report := FinalReport{
		SessionID:        o.sessionID,
		StoppedAt:        o.clock.Now(),
		HeartbeatTicks:   o.heartbeatTicks.Load(),
		StateUpdateTicks: o.stateUpdateTicks.Load(),
	}

	if err := o.memory.Save(ctx); err != nil {
		report.SaveError = err.Error()
		o.log.WithError(err).WithField("kind", domain.KindOf(err)).Error("final memory save failed")
	}

	o.mu.Lock()
	report.StartedAt = o.startedAt
	o.running = false
	o.mu.Unlock()

	if !report.StartedAt.IsZero() {
		report.Runtime = report.StoppedAt.Sub(report.StartedAt)
	}
	report.HeartbeatRecords, report.StateUpdateRecords = o.memory.Counts()
	report.SessionsSeen = o.memory.SessionsSeen()

	o.log.WithFields(logrus.Fields{
		"runtime":           report.Runtime.Round(time.Second).String(),
		"heartbeat_records": report.HeartbeatRecords,
		"dao_interactions":  report.StateUpdateRecords,
		"heartbeat_ticks":   report.HeartbeatTicks,
		"state_ticks":       report.StateUpdateTicks,
	}).Info("shutdown complete")

	return report
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.running
}

func (o *Orchestrator) Status() StatusReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() StatusReport {
	heartbeats, stateUpdates := o.memory.Counts()

	return StatusReport{
		SessionID:       o.sessionID,
		PersonalityName: o.personality.Name,
		Fingerprint:     o.personality.Fingerprint,
		Running:         o.running,
		HeartbeatAlive:  o.heartbeatAliveLocked(),
		MemoryFragments: heartbeats,
		StateUpdates:    stateUpdates,
		PriorSessions:   o.memory.PriorSessions(),
		Connection:      o.client.Status(),
	}
}

// HeartbeatAlive reports whether the heartbeat loop is registered and has
// beaten within two periods of its last beat or its start.
func (o *Orchestrator) HeartbeatAlive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.heartbeatAliveLocked()
}

func (o *Orchestrator) heartbeatAliveLocked() bool {
	if o.heartbeatJob == nil {
		return false
	}

	last := o.heartbeatSince
	if beat := o.lastBeat.Load(); beat != 0 {
		if t := time.Unix(0, beat); t.After(last) {
			last = t
		}
	}

	return o.clock.Now().Sub(last) <= 2*o.cfg.HeartbeatInterval
}

func (o *Orchestrator) startHeartbeat() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopping.Load() {
		return domain.ErrShuttingDown
	}
	if o.heartbeatJob != nil {
		o.log.Warn("heartbeat already running, cannot start twice")
		return nil
	}

	o.logGreeting()

	job, err := o.scheduler.Every(LoopHeartbeat, o.cfg.HeartbeatInterval, o.heartbeatTick)
	if err != nil {
		return err
	}
	o.heartbeatJob = job
	o.heartbeatSince = o.clock.Now()

	o.log.WithField("interval", o.cfg.HeartbeatInterval.String()).Info("heartbeat loop started")
	return nil
}

func (o *Orchestrator) stopHeartbeat() {
	o.mu.Lock()
	job := o.heartbeatJob
	o.heartbeatJob = nil
	o.mu.Unlock()

	if job == nil {
		return
	}
	if err := o.scheduler.Remove(job); err != nil {
		o.log.WithError(err).Warn("remove heartbeat loop")
	}
}

func (o *Orchestrator) logGreeting() {
	heartbeats, _ := o.memory.Counts()
	prior := o.memory.PriorSessions()

	data := struct {
		PriorSessions   int
		MemoryFragments int
	}{PriorSessions: prior, MemoryFragments: heartbeats}

	fields := logrus.Fields{"fingerprint": o.personality.Fingerprint}
	tag := ContextGreetingFirst
	if prior > 0 {
		tag = ContextGreetingRestored
		fields["prior_sessions"] = prior
		fields["memory_fragments"] = heartbeats
	} else {
		sarcasm, philosophical, helpful := o.personality.Mix.Percent()
		fields["mix"] = fmt.Sprintf("%d%% wit, %d%% philosophy, %d%% helpfulness", sarcasm, philosophical, helpful)
	}

	greeting := o.selector.Select(tag, data)
	o.log.WithFields(fields).Info(greeting.Text)
}

func (o *Orchestrator) heartbeatTick() {
	o.runTick(LoopHeartbeat, &o.heartbeatBusy, func(ctx context.Context) error {
		now := o.clock.Now()
		selection := o.selector.Select(ContextHeartbeat, nil)

		o.lastBeat.Store(now.UnixNano())
		o.heartbeatTicks.Add(1)
		o.log.WithFields(logrus.Fields{"loop": LoopHeartbeat, "category": selection.Category}).Info(selection.Text)

		err := o.memory.Append(ctx, domain.InteractionRecord{
			SessionID: o.sessionID,
			Timestamp: now,
			Kind:      domain.InteractionHeartbeat,
			Category:  selection.Category,
			Text:      selection.Text,
		})
		heartbeats, _ := o.memory.Counts()
		o.metrics.MemoryRecords(domain.InteractionHeartbeat, heartbeats)
		return err
	})
}

func (o *Orchestrator) healthTick() {
	o.runTick(LoopHealth, &o.healthBusy, func(ctx context.Context) error {
		var errs []error
		if !o.HeartbeatAlive() {
			o.log.Warn("heartbeat loop is not alive, restarting it")
			o.stopHeartbeat()
			if err := o.startHeartbeat(); err != nil {
				errs = append(errs, fmt.Errorf("restart heartbeat loop: %w", err))
			}
		}
		if err := o.reconcileState(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}

// reconcileState refreshes the cached DAO snapshot when connected and
// reconnects when not. Refresh and connection failures are logged here and
// only change the connection state.
func (o *Orchestrator) reconcileState(ctx context.Context) error {
	if !o.client.Status().Connected {
		o.log.Info("attempting DAO reconnection")
		_ = o.connect(ctx)
		return nil
	}

	snapshot, err := o.client.Refresh(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCallInFlight) || errors.Is(err, domain.ErrResultDiscarded) {
			o.log.WithError(err).Debug("state refresh skipped")
			return nil
		}

		status := o.client.Status()
		entry := o.log.WithFields(logrus.Fields{
			"reason": domain.FailureReason(err),
			"kind":   domain.KindOf(err),
		})
		if !status.Connected {
			entry.Warn("DAO connection dropped after consecutive refresh failures")
			o.metrics.ConnectionChanged(false)
		} else {
			entry.WithField("consecutive_failures", status.ConsecutiveFailures).Warn("state refresh failed, keeping stale snapshot")
		}
		return nil
	}

	if o.stopping.Load() {
		return nil
	}

	o.stateUpdateTicks.Add(1)
	selection := o.selector.Select(ContextStateUpdate, snapshot)
	o.log.WithFields(logrus.Fields{
		"loop":      LoopStateRefresh,
		"category":  selection.Category,
		"members":   snapshot.MemberCount,
		"proposals": snapshot.ActiveItemCount,
		"treasury":  snapshot.Treasury,
	}).Info(selection.Text)

	err = o.memory.Append(ctx, domain.InteractionRecord{
		SessionID: o.sessionID,
		Timestamp: o.clock.Now(),
		Kind:      domain.InteractionStateUpdate,
		Category:  selection.Category,
		Text:      selection.Text,
		Snapshot:  &snapshot,
	})
	_, stateUpdates := o.memory.Counts()
	o.metrics.MemoryRecords(domain.InteractionStateUpdate, stateUpdates)
	return err
}

func (o *Orchestrator) connect(ctx context.Context) error {
	target := o.client.Status().Target
	err := o.client.Connect(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCallInFlight) || errors.Is(err, domain.ErrResultDiscarded) {
			o.log.WithError(err).Debug("connection attempt skipped")
			return err
		}

		reason := domain.FailureReason(err)
		data := struct{ Target, Reason string }{Target: target, Reason: reason}
		commentary := o.selector.Select(ContextConnectionFailed, data)
		o.log.WithFields(logrus.Fields{"target": target, "reason": reason}).Warn(commentary.Text)
		return err
	}

	status := o.client.Status()
	data := struct{ Target, Reason string }{Target: target}
	commentary := o.selector.Select(ContextConnectionEstablished, data)
	entry := o.log.WithField("target", target)
	if status.Snapshot != nil {
		entry = entry.WithFields(logrus.Fields{
			"members":   status.Snapshot.MemberCount,
			"proposals": status.Snapshot.ActiveItemCount,
		})
	}
	entry.Info(commentary.Text)
	o.metrics.ConnectionChanged(true)

	return nil
}

func (o *Orchestrator) runTick(loop string, busy *sync.Mutex, fn func(context.Context) error) {
	if o.stopping.Load() {
		return
	}
	if !busy.TryLock() {
		o.log.WithField("loop", loop).Debug("previous tick still running, skipping")
		return
	}
	defer busy.Unlock()

	if o.stopping.Load() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s tick: %w: %v", loop, domain.ErrLoopPanic, r)
			o.log.WithError(err).WithField("loop", loop).Error("tick aborted")
			o.metrics.TickFailed(loop)
		}
	}()

	if err := fn(o.life); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{
			"loop": loop,
			"kind": domain.KindOf(err),
		}).Warn("tick completed with errors")
		o.metrics.TickFailed(loop)
		return
	}
	o.metrics.TickCompleted(loop)
}

func (o *Orchestrator) logStatus(report StatusReport) {
	fields := logrus.Fields{
		"heartbeat":        aliveLabel(report.HeartbeatAlive),
		"fingerprint":      report.Fingerprint,
		"memory_fragments": report.MemoryFragments,
		"prior_sessions":   report.PriorSessions,
		"connection":       report.Connection.ConnectionState().Label(),
		"target":           report.Connection.Target,
	}
	if snap := report.Connection.Snapshot; snap != nil {
		fields["members"] = snap.MemberCount
		fields["proposals"] = snap.ActiveItemCount
		fields["treasury"] = snap.Treasury
	}
	o.log.WithFields(fields).Info("status report")
}

// scope derives a context that is also cancelled when shutdown begins.
func (o *Orchestrator) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func aliveLabel(alive bool) string {
	if alive {
		return "active"
	}
	return "dormant"
}
