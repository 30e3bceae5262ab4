package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/khaos-agent/internal/domain"
	"github.com/bnema/khaos-agent/internal/ports"
)

const (
	DefaultMaxRefreshFailures = 3
	DefaultFetchTimeout       = 10 * time.Second
)

type StateClientConfig struct {
	// MaxRefreshFailures is the number of consecutive refresh failures after
	// which the client drops to Disconnected.
	MaxRefreshFailures int
	// FetchTimeout bounds a single call to the source. Zero disables it.
	FetchTimeout time.Duration
}

type ClientStatus struct {
	Target              string
	Connected           bool
	Snapshot            *domain.Snapshot
	Stale               bool
	ConsecutiveFailures int
	LastUpdate          time.Time
	LastError           string
}

func (s ClientStatus) ConnectionState() domain.ConnectionState {
	return domain.ConnectionState{Connected: s.Connected, Snapshot: s.Snapshot}
}

// StateClient caches the last snapshot observed from a StateSource and
// tracks whether the source is considered reachable.
type StateClient struct {
	source ports.StateSource
	clock  ports.Clock
	cfg    StateClientConfig

	mu         sync.Mutex
	state      domain.ConnectionState
	stale      bool
	failures   int
	lastUpdate time.Time
	lastErr    string
	inflight   *pendingCall
}

type pendingCall struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

func NewStateClient(source ports.StateSource, cfg StateClientConfig, clock ports.Clock) *StateClient {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.MaxRefreshFailures <= 0 {
		cfg.MaxRefreshFailures = DefaultMaxRefreshFailures
	}

	return &StateClient{source: source, cfg: cfg, clock: clock}
}

// Connect makes one attempt to fetch an initial snapshot. It is a no-op when
// already connected. Failures leave the client Disconnected and are returned
// wrapped in domain.ErrExternalConnect.
func (c *StateClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Connected {
		c.mu.Unlock()
		return nil
	}
	call, err := c.beginLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer call.cancel()

	snapshot, err := c.fetch(call.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.finishLocked(call) {
		return fmt.Errorf("connect: %w", domain.ErrResultDiscarded)
	}
	if err != nil {
		c.lastErr = domain.FailureReason(err)
		return fmt.Errorf("%w: %w", domain.ErrExternalConnect, err)
	}

	c.state = domain.ConnectionState{Connected: true, Snapshot: &snapshot}
	c.stale = false
	c.failures = 0
	c.lastErr = ""
	c.lastUpdate = c.clock.Now()

	return nil
}

// Refresh replaces the cached snapshot with a fresh one. On failure the
// previous snapshot is kept and flagged stale until MaxRefreshFailures
// consecutive failures, at which point the client disconnects.
func (c *StateClient) Refresh(ctx context.Context) (domain.Snapshot, error) {
	c.mu.Lock()
	if !c.state.Connected {
		c.mu.Unlock()
		return domain.Snapshot{}, fmt.Errorf("refresh: %w", domain.ErrNotConnected)
	}
	call, err := c.beginLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("refresh: %w", err)
	}
	defer call.cancel()

	snapshot, err := c.fetch(call.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.finishLocked(call) {
		return domain.Snapshot{}, fmt.Errorf("refresh: %w", domain.ErrResultDiscarded)
	}
	if err != nil {
		c.failures++
		c.stale = true
		c.lastErr = domain.FailureReason(err)
		if c.failures >= c.cfg.MaxRefreshFailures {
			c.dropLocked()
		}
		return domain.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrExternalRefresh, err)
	}

	stored := snapshot.Clone()
	c.state.Snapshot = &stored
	c.stale = false
	c.failures = 0
	c.lastErr = ""
	c.lastUpdate = c.clock.Now()

	return snapshot, nil
}

// Disconnect cancels any pending call and drops the cached snapshot. A call
// that completes afterwards has its result discarded.
func (c *StateClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil {
		c.inflight.cancel()
		c.inflight = nil
	}
	c.dropLocked()
}

func (c *StateClient) Status() ClientStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ClientStatus{
		Target:              c.source.Target(),
		Connected:           c.state.Connected,
		Snapshot:            domain.ClonePtr(c.state.Snapshot),
		Stale:               c.stale,
		ConsecutiveFailures: c.failures,
		LastUpdate:          c.lastUpdate,
		LastError:           c.lastErr,
	}
}

func (c *StateClient) dropLocked() {
	c.state = domain.ConnectionState{}
	c.stale = false
	c.failures = 0
}

func (c *StateClient) beginLocked(parent context.Context) (*pendingCall, error) {
	if c.inflight != nil {
		return nil, domain.ErrCallInFlight
	}

	ctx, cancel := context.WithCancel(parent)
	if c.cfg.FetchTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		outer := cancel
		cancel = func() {
			cancelTimeout()
			outer()
		}
	}

	call := &pendingCall{parent: parent, ctx: ctx, cancel: cancel}
	c.inflight = call
	return call, nil
}

// finishLocked reports whether the call's result may still be applied.
func (c *StateClient) finishLocked(call *pendingCall) bool {
	if c.inflight != call {
		return false
	}
	c.inflight = nil

	return call.parent.Err() == nil
}

func (c *StateClient) fetch(ctx context.Context) (domain.Snapshot, error) {
	snapshot, err := c.source.Fetch(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Snapshot{}, &domain.SourceError{Reason: "timeout"}
		}
		return domain.Snapshot{}, err
	}
	if err := snapshot.Validate(); err != nil {
		return domain.Snapshot{}, &domain.SourceError{Reason: fmt.Sprintf("inconsistent snapshot: %v", err)}
	}

	return snapshot.Clone(), nil
}
