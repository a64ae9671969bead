// Package orchestrator owns per-instance sessions, fetches upstream data, and keeps each
// instance refreshed on its own schedule.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"example.com/pelotonbridge/internal/domain"
	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/peloton"
)

var (
	// ErrUnknownInstance is returned for operations on an id that was never configured.
	ErrUnknownInstance = errors.New("unknown instance")
	// ErrNotAuthenticated is reported when a fetch runs before a successful login.
	ErrNotAuthenticated = errors.New("instance is not logged in")
	// ErrMissingCredentials is reported when login is attempted without a username or password.
	ErrMissingCredentials = errors.New("username and password are required")
	// ErrEmptySession is reported when a 2xx login response carries no session id.
	ErrEmptySession = errors.New("login response did not include a session")
	// ErrCredentialsChanged is returned when the credentials were replaced while an
	// operation was in flight. Its result is discarded and nothing is reported.
	ErrCredentialsChanged = errors.New("credentials changed while the operation was in flight")
)

// Upstream is the subset of the Peloton API the orchestrator calls.
type Upstream interface {
	Login(ctx context.Context, username, password string) (peloton.Session, error)
	Me(ctx context.Context, sessionToken string) (json.RawMessage, error)
	RecentWorkouts(ctx context.Context, sessionToken, userID string, limit int) (json.RawMessage, error)
	CurrentChallenges(ctx context.Context, sessionToken, userID string) (json.RawMessage, error)
}

// Option configures optional behaviour for the Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSnapshotRecorder archives workout counts after each successful profile fetch.
func WithSnapshotRecorder(recorder domain.SnapshotRecorder) Option {
	return func(o *Orchestrator) {
		o.snapshots = recorder
	}
}

// WithTickerFactory replaces the ticker used by refresh loops.
func WithTickerFactory(factory TickerFactory) Option {
	return func(o *Orchestrator) {
		o.newTicker = factory
	}
}

// WithClock overrides the time source used to stamp cached payloads.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator holds the instance table. All state changes go through its methods.
type Orchestrator struct {
	upstream  Upstream
	publisher messages.Publisher
	snapshots domain.SnapshotRecorder
	logger    *log.Logger
	newTicker TickerFactory
	now       func() time.Time

	mu        sync.RWMutex
	instances map[string]*instance
	closed    bool

	baseCtx context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	tasks   sync.WaitGroup
}

// New constructs an Orchestrator that reports every outcome through publisher.
func New(upstream Upstream, publisher messages.Publisher, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		upstream:  upstream,
		publisher: publisher,
		logger:    log.New(log.Writer(), "[orchestrator] ", log.LstdFlags|log.Lshortfile),
		newTicker: NewTimeTicker,
		now:       func() time.Time { return time.Now().UTC() },
		instances: make(map[string]*instance),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Configure creates the instance or replaces its configuration. The config is normalised
// once here. Changing credentials drops the session, cached payloads and refresh loop;
// changing only the refresh period restarts a running loop. It reports whether a new
// instance was created.
func (o *Orchestrator) Configure(id string, cfg domain.InstanceConfig) bool {
	cfg = cfg.Normalize()

	o.mu.Lock()
	inst, exists := o.instances[id]
	if !exists {
		o.instances[id] = newInstance(id, cfg)
		o.mu.Unlock()
		setInstanceCount(o.Count())
		o.debugf(cfg, id, "instance configured (display=%s, refresh=%ds)", cfg.DisplayType, cfg.RefreshEverySeconds)
		return true
	}
	o.mu.Unlock()

	inst.mu.Lock()
	previous := inst.config
	inst.config = cfg
	var stopped *refreshHandle
	rearm := false
	if !previous.SameCredentials(cfg) {
		inst.sessionToken = ""
		inst.userID = ""
		inst.user = nil
		inst.recent = nil
		inst.challenges = nil
		inst.signInFailed = false
		inst.generation++
		stopped, inst.refresh = inst.refresh, nil
	} else if inst.refresh != nil && previous.RefreshEverySeconds != cfg.RefreshEverySeconds {
		stopped, inst.refresh = inst.refresh, nil
		rearm = true
	}
	gen := inst.generation
	inst.mu.Unlock()

	stopped.stop()
	if rearm {
		o.arm(inst, gen)
	}
	o.debugf(cfg, id, "instance reconfigured (display=%s, refresh=%ds)", cfg.DisplayType, cfg.RefreshEverySeconds)
	return false
}

// Has reports whether id has been configured.
func (o *Orchestrator) Has(id string) bool {
	return o.lookup(id) != nil
}

// Count returns the number of configured instances.
func (o *Orchestrator) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.instances)
}

// Session returns the session token and user id held for id.
func (o *Orchestrator) Session(id string) (token, userID string, err error) {
	inst := o.lookup(id)
	if inst == nil {
		return "", "", ErrUnknownInstance
	}
	s := inst.session()
	return s.token, s.userID, nil
}

// ClearSession forgets the session held for id. Cached payloads and any refresh loop are kept;
// refreshes fail with ErrNotAuthenticated until the next login, and a failed login stops the loop.
func (o *Orchestrator) ClearSession(id string) error {
	inst := o.lookup(id)
	if inst == nil {
		return ErrUnknownInstance
	}
	inst.clearSession(false)
	return nil
}

// Refreshing reports whether a refresh loop is armed for id.
func (o *Orchestrator) Refreshing(id string) bool {
	inst := o.lookup(id)
	if inst == nil {
		return false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.refresh != nil
}

// Wait blocks until in-flight fetches started by refresh ticks have finished.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// Close stops every refresh loop and waits for them to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.loops.Wait()
	o.tasks.Wait()
}

func (o *Orchestrator) lookup(id string) *instance {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.instances[id]
}

func (o *Orchestrator) emit(ctx context.Context, id, name string, payload any) {
	msg, err := messages.New(name, id, payload)
	if err != nil {
		o.logger.Printf("encode %s for instance %s: %v", name, id, err)
		return
	}
	if err := o.publisher.Publish(ctx, msg); err != nil {
		o.logger.Printf("publish %s for instance %s: %v", msg.Name, id, err)
	}
}

func (o *Orchestrator) debugf(cfg domain.InstanceConfig, id, format string, args ...any) {
	if !cfg.Debug {
		return
	}
	o.logger.Printf("["+id+"] "+format, args...)
}
