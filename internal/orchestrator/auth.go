package orchestrator

import (
	"context"

	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/peloton"
)

// Operation names a unit of work the orchestrator performs for an instance.
type Operation string

const (
	OpLogin          Operation = "login"
	OpProfile        Operation = "profile"
	OpRecentWorkouts Operation = "recent_workouts"
	OpChallenges     Operation = "challenges"
)

// Outcome is the tagged result of one operation. The same result is also reported to the
// instance as an outbound message.
type Outcome struct {
	InstanceID string
	Operation  Operation
	Err        error
	// Reused is set when a login was satisfied by the session already held.
	Reused bool
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Login authenticates the instance, or reuses its session when one is already held.
// A fresh login triggers the initial fetch set and arms the refresh loop. Failure leaves
// the instance without a session and stops its refresh loop until the next explicit login.
// A login overtaken by a credential change returns ErrCredentialsChanged in the Outcome.
func (o *Orchestrator) Login(ctx context.Context, id string) (Outcome, error) {
	inst := o.lookup(id)
	if inst == nil {
		return Outcome{}, ErrUnknownInstance
	}

	inst.loginMu.Lock()
	defer inst.loginMu.Unlock()

	current := inst.session()
	cfg := current.config
	out := Outcome{InstanceID: id, Operation: OpLogin}

	if current.token != "" {
		o.debugf(cfg, id, "already logged in")
		recordLogin(loginReused)
		out.Reused = true
		o.emit(ctx, id, messages.UserIsLoggedIn, messages.InstancePayload{InstanceID: id})
		return out, nil
	}

	inst.clearSession(false)

	if !cfg.HasCredentials() {
		out.Err = ErrMissingCredentials
		if !o.failLogin(ctx, inst, current.generation, out.Err) {
			out.Err = ErrCredentialsChanged
		}
		return out, nil
	}

	o.debugf(cfg, id, "logging in as %s", cfg.Username)
	session, err := o.upstream.Login(ctx, cfg.Username, cfg.Password)
	if err == nil && session.SessionID == "" {
		err = ErrEmptySession
	}
	if err != nil {
		out.Err = err
		if !o.failLogin(ctx, inst, current.generation, err) {
			out.Err = ErrCredentialsChanged
		}
		return out, nil
	}

	if !inst.adoptSession(current.generation, session.SessionID, session.UserID) {
		o.logger.Printf("discarding login for instance %s: credentials changed", id)
		out.Err = ErrCredentialsChanged
		return out, nil
	}
	o.debugf(cfg, id, "successfully logged in")
	recordLogin(loginSucceeded)
	o.emit(ctx, id, messages.UserIsLoggedIn, messages.InstancePayload{InstanceID: id})

	o.arm(inst, current.generation)
	return out, nil
}

// failLogin reports err and stops the refresh loop; a failed login blocks refreshes until
// the next successful one. It reports false, doing nothing, when the credentials changed.
func (o *Orchestrator) failLogin(ctx context.Context, inst *instance, gen uint64, err error) bool {
	stopped, current := inst.failSession(gen)
	if !current {
		o.logger.Printf("discarding login failure for instance %s: credentials changed", inst.id)
		return false
	}
	stopped.stop()
	recordLogin(loginFailed)
	o.logger.Printf("login failed for instance %s: %v", inst.id, err)
	o.emit(ctx, inst.id, messages.FailedToLogIn, messages.BodyPayload{
		InstanceID: inst.id,
		Body:       peloton.ResponseBody(err),
	})
	return true
}
