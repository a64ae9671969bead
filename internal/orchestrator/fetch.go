package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"example.com/pelotonbridge/internal/domain"
	"example.com/pelotonbridge/internal/messages"
	"example.com/pelotonbridge/internal/observability"
	"example.com/pelotonbridge/internal/peloton"
)

const archiveTimeout = 5 * time.Second

// fetcher describes one upstream dataset. call performs the request; store decodes the body,
// caches it on the instance and returns the success payload.
type fetcher struct {
	op      Operation
	success string
	failure string
	call    func(ctx context.Context, s sessionView) (json.RawMessage, error)
	store   func(inst *instance, s sessionView, body json.RawMessage, now time.Time) (any, error)
}

// FetchProfile fetches api/me and caches it as the instance's user.
func (o *Orchestrator) FetchProfile(ctx context.Context, id string) (Outcome, error) {
	return o.fetch(ctx, id, fetcher{
		op:      OpProfile,
		success: messages.RetrievedUserData,
		failure: messages.FailedToRetrieveUserData,
		call: func(ctx context.Context, s sessionView) (json.RawMessage, error) {
			return o.upstream.Me(ctx, s.token)
		},
		store: func(inst *instance, s sessionView, body json.RawMessage, now time.Time) (any, error) {
			profile, err := domain.ParseProfile(body, now)
			if err != nil {
				return nil, err
			}
			if !inst.cache(s.generation, func() { inst.user = profile }) {
				return nil, ErrCredentialsChanged
			}

			observability.RecordProfileFetched(now)
			o.archive(inst.id, s, profile)
			return messages.UserPayload{InstanceID: inst.id, PelotonUser: profile.Raw}, nil
		},
	})
}

// FetchRecentWorkouts fetches the newest recentWorkoutsLimit workouts.
func (o *Orchestrator) FetchRecentWorkouts(ctx context.Context, id string) (Outcome, error) {
	return o.fetch(ctx, id, fetcher{
		op:      OpRecentWorkouts,
		success: messages.RetrievedRecentWorkoutData,
		failure: messages.FailedToRetrieveRecentWorkoutData,
		call: func(ctx context.Context, s sessionView) (json.RawMessage, error) {
			return o.upstream.RecentWorkouts(ctx, s.token, s.userID, s.config.RecentWorkoutsLimit)
		},
		store: func(inst *instance, s sessionView, body json.RawMessage, now time.Time) (any, error) {
			recent, err := domain.ParseRecentWorkouts(body, now)
			if err != nil {
				return nil, err
			}
			if !inst.cache(s.generation, func() { inst.recent = recent }) {
				return nil, ErrCredentialsChanged
			}
			return messages.BodyPayload{InstanceID: inst.id, Body: recent.Raw}, nil
		},
	})
}

// FetchChallenges fetches the challenges the user has currently joined.
func (o *Orchestrator) FetchChallenges(ctx context.Context, id string) (Outcome, error) {
	return o.fetch(ctx, id, fetcher{
		op:      OpChallenges,
		success: messages.RetrievedChallengeData,
		failure: messages.FailedToRetrieveChallengeData,
		call: func(ctx context.Context, s sessionView) (json.RawMessage, error) {
			return o.upstream.CurrentChallenges(ctx, s.token, s.userID)
		},
		store: func(inst *instance, s sessionView, body json.RawMessage, now time.Time) (any, error) {
			challenges, err := domain.ParseChallenges(body, now)
			if err != nil {
				return nil, err
			}
			if !inst.cache(s.generation, func() { inst.challenges = challenges }) {
				return nil, ErrCredentialsChanged
			}
			return messages.BodyPayload{InstanceID: inst.id, Body: challenges.Raw}, nil
		},
	})
}

func (o *Orchestrator) fetch(ctx context.Context, id string, f fetcher) (Outcome, error) {
	inst := o.lookup(id)
	if inst == nil {
		return Outcome{}, ErrUnknownInstance
	}

	s := inst.session()
	out := Outcome{InstanceID: id, Operation: f.op}

	if s.token == "" {
		out.Err = ErrNotAuthenticated
		o.failFetch(ctx, id, s.config, f, out.Err, nil)
		return out, nil
	}

	o.debugf(s.config, id, "fetching %s", f.op)
	body, err := f.call(ctx, s)
	if err != nil {
		out.Err = err
		o.failFetch(ctx, id, s.config, f, err, peloton.ResponseBody(err))
		return out, nil
	}

	payload, err := f.store(inst, s, body, o.now())
	if errors.Is(err, ErrCredentialsChanged) {
		o.logger.Printf("discarding %s for instance %s: credentials changed", f.op, id)
		out.Err = err
		return out, nil
	}
	if err != nil {
		out.Err = err
		o.failFetch(ctx, id, s.config, f, err, body)
		return out, nil
	}

	recordFetch(f.op, fetchSucceeded)
	o.debugf(s.config, id, "successfully retrieved %s", f.op)
	o.emit(ctx, id, f.success, payload)
	return out, nil
}

// failFetch reports the failure and leaves previously cached data untouched.
func (o *Orchestrator) failFetch(ctx context.Context, id string, cfg domain.InstanceConfig, f fetcher, err error, body json.RawMessage) {
	recordFetch(f.op, fetchFailed)
	o.debugf(cfg, id, "failed to retrieve %s: %v", f.op, err)
	o.emit(ctx, id, f.failure, messages.BodyPayload{InstanceID: id, Body: body})
}

// archive writes the workout counts in the background. Close waits for pending writes.
func (o *Orchestrator) archive(id string, s sessionView, profile *domain.Profile) {
	if o.snapshots == nil {
		return
	}
	counts := append([]domain.WorkoutCategoryCount(nil), profile.WorkoutCounts...)
	snapshot := domain.WorkoutCountSnapshot{
		ID:         uuid.NewString(),
		InstanceID: id,
		UserID:     s.userID,
		Counts:     counts,
		FetchedAt:  profile.FetchedAt,
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := o.snapshots.RecordSnapshot(ctx, snapshot); err != nil {
			o.logger.Printf("archive workout counts for instance %s: %v", id, err)
		}
	}()
}
