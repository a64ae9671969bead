package orchestrator

import (
	"encoding/json"
	"time"

	"example.com/pelotonbridge/internal/domain"
)

// DisplayUndefined is reported for a display type the renderer has no view for.
const DisplayUndefined domain.DisplayType = "undefined"

// View is the render-ready state of one instance.
type View struct {
	InstanceID     string                        `json:"instance_id"`
	Config         domain.InstanceConfig         `json:"config"`
	DisplayType    domain.DisplayType            `json:"display_type"`
	LoggedIn       bool                          `json:"logged_in"`
	SignInFailed   bool                          `json:"sign_in_failed"`
	Refreshing     bool                          `json:"refreshing"`
	PelotonUser    json.RawMessage               `json:"peloton_user,omitempty"`
	WorkoutCounts  []domain.WorkoutCategoryCount `json:"workout_counts"`
	RecentWorkouts []json.RawMessage             `json:"recent_workouts"`
	Challenges     []json.RawMessage             `json:"challenges"`
	UserFetchedAt  *time.Time                    `json:"user_fetched_at,omitempty"`
}

// View derives the render-ready state for id from its cached payloads.
func (o *Orchestrator) View(id string) (View, error) {
	inst := o.lookup(id)
	if inst == nil {
		return View{}, ErrUnknownInstance
	}

	inst.mu.Lock()
	cfg := inst.config
	user, recent, challenges := inst.user, inst.recent, inst.challenges
	view := View{
		InstanceID:   id,
		Config:       cfg.Redacted(),
		LoggedIn:     inst.sessionToken != "",
		SignInFailed: inst.signInFailed,
		Refreshing:   inst.refresh != nil,
	}
	inst.mu.Unlock()

	switch cfg.DisplayType {
	case domain.DisplayWorkoutCount, domain.DisplayRecentWorkouts, domain.DisplayChallenges:
		view.DisplayType = cfg.DisplayType
	default:
		view.DisplayType = DisplayUndefined
	}

	counts := domain.ComputeWorkoutCounts(user, cfg)
	if counts.FellBack {
		o.debugf(cfg, id, "invalid sort order %q, applying %s", cfg.SortOrder, counts.SortOrderApplied)
	}
	view.WorkoutCounts = counts.Counts
	view.RecentWorkouts = domain.ComputeRecentWorkouts(recent, cfg)
	view.Challenges = domain.ComputeChallenges(challenges)

	if user != nil {
		view.PelotonUser = user.Raw
		fetched := user.FetchedAt
		view.UserFetchedAt = &fetched
	}
	return view, nil
}
