// Package router maps inbound named messages onto orchestrator operations.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"example.com/pelotonbridge/internal/domain"
	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/orchestrator"
)

var (
	// ErrDropped is wrapped by every error that means the message was ignored.
	ErrDropped = errors.New("message dropped")
	// ErrUnknownInstance is returned when a message other than SET_CONFIG names an unconfigured instance.
	ErrUnknownInstance = fmt.Errorf("%w: %w", ErrDropped, orchestrator.ErrUnknownInstance)
	// ErrUnknownMessage is returned for a name the router has no operation for.
	ErrUnknownMessage = fmt.Errorf("%w: unknown message name", ErrDropped)
	// ErrInvalidPayload is returned when a SET_CONFIG payload cannot be decoded.
	ErrInvalidPayload = fmt.Errorf("%w: invalid payload", ErrDropped)
	// ErrMissingInstance is returned when a message carries no instance id.
	ErrMissingInstance = fmt.Errorf("%w: missing instance id", ErrDropped)
)

// Orchestrator is the set of operations the router dispatches to.
type Orchestrator interface {
	Configure(id string, cfg domain.InstanceConfig) bool
	Has(id string) bool
	Login(ctx context.Context, id string) (orchestrator.Outcome, error)
	FetchProfile(ctx context.Context, id string) (orchestrator.Outcome, error)
	FetchRecentWorkouts(ctx context.Context, id string) (orchestrator.Outcome, error)
	FetchChallenges(ctx context.Context, id string) (orchestrator.Outcome, error)
}

// Command is one inbound message. Name may be given with or without the namespace prefix.
type Command struct {
	Name       string          `json:"name"`
	InstanceID string          `json:"instance_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Option configures optional behaviour for the Router.
type Option func(*Router)

// WithLogger overrides the logger used to report dropped messages.
func WithLogger(logger *log.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// Router validates inbound commands and runs the matching orchestrator operation.
type Router struct {
	orch   Orchestrator
	logger *log.Logger
	wg     sync.WaitGroup
}

// New constructs a Router for orch.
func New(orch Orchestrator, opts ...Option) *Router {
	r := &Router{
		orch:   orch,
		logger: log.New(log.Writer(), "[router] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type operation func(ctx context.Context, id string) (orchestrator.Outcome, error)

// Route applies cmd and blocks until its operation has finished.
func (r *Router) Route(ctx context.Context, cmd Command) error {
	op, err := r.prepare(cmd)
	if err != nil || op == nil {
		return err
	}
	return r.run(ctx, cmd, op)
}

// Handle applies cmd without waiting for upstream calls. SET_CONFIG and validation happen
// before Handle returns so a LOGIN sent right after SET_CONFIG always finds its instance.
// The operation outlives ctx's cancellation.
func (r *Router) Handle(ctx context.Context, cmd Command) error {
	op, err := r.prepare(cmd)
	if err != nil || op == nil {
		return err
	}
	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.run(detached, cmd, op); err != nil {
			r.logger.Printf("%s for instance %s: %v", cmd.Name, cmd.InstanceID, err)
		}
	}()
	return nil
}

// Wait blocks until operations started by Handle have finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// prepare validates cmd. SET_CONFIG is applied here and yields no operation.
func (r *Router) prepare(cmd Command) (operation, error) {
	name := messages.Base(cmd.Name)
	if cmd.InstanceID == "" {
		return nil, r.drop(name, cmd.InstanceID, ErrMissingInstance)
	}

	if name == messages.SetConfig {
		var cfg domain.InstanceConfig
		if len(cmd.Payload) > 0 {
			if err := json.Unmarshal(cmd.Payload, &cfg); err != nil {
				return nil, r.drop(name, cmd.InstanceID, fmt.Errorf("%w: %v", ErrInvalidPayload, err))
			}
		}
		r.orch.Configure(cmd.InstanceID, cfg)
		recordRouted(name)
		return nil, nil
	}

	var op operation
	switch name {
	case messages.Login:
		op = r.orch.Login
	case messages.RequestUser:
		op = r.orch.FetchProfile
	case messages.RequestRecentWorkouts:
		op = r.orch.FetchRecentWorkouts
	case messages.RequestChallenges:
		op = r.orch.FetchChallenges
	default:
		return nil, r.drop(name, cmd.InstanceID, ErrUnknownMessage)
	}

	if !r.orch.Has(cmd.InstanceID) {
		return nil, r.drop(name, cmd.InstanceID, ErrUnknownInstance)
	}
	return op, nil
}

func (r *Router) run(ctx context.Context, cmd Command, op operation) error {
	name := messages.Base(cmd.Name)
	if _, err := op(ctx, cmd.InstanceID); err != nil {
		if errors.Is(err, orchestrator.ErrUnknownInstance) {
			return r.drop(name, cmd.InstanceID, ErrUnknownInstance)
		}
		return err
	}
	recordRouted(name)
	return nil
}

func (r *Router) drop(name, instanceID string, err error) error {
	recordDropped(reason(err))
	r.logger.Printf("dropping %s for instance %q: %v", name, instanceID, err)
	return err
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownInstance):
		return "unknown_instance"
	case errors.Is(err, ErrUnknownMessage):
		return "unknown_message"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrMissingInstance):
		return "missing_instance"
	default:
		return "other"
	}
}
