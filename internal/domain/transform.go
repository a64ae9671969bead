package domain

import (
	"encoding/json"
	"sort"
)

// WorkoutCountsResult carries the derived view plus whether the configured sort order was
// unrecognised and alpha_asc was applied instead.
type WorkoutCountsResult struct {
	Counts           []WorkoutCategoryCount
	SortOrderApplied SortOrder
	FellBack         bool
}

// ComputeWorkoutCounts filters and sorts the profile's workout counts for display.
// The profile's slice is never modified.
func ComputeWorkoutCounts(profile *Profile, cfg InstanceConfig) WorkoutCountsResult {
	if profile == nil {
		return WorkoutCountsResult{Counts: []WorkoutCategoryCount{}, SortOrderApplied: SortAlphaAsc}
	}

	omit := make(map[string]struct{}, len(cfg.CategoriesToOmit))
	for _, slug := range cfg.CategoriesToOmit {
		omit[slug] = struct{}{}
	}

	showZero := cfg.ShouldShowZeroCounts()
	out := make([]WorkoutCategoryCount, 0, len(profile.WorkoutCounts))
	for _, wc := range profile.WorkoutCounts {
		if !showZero && wc.Count == 0 {
			continue
		}
		if _, skip := omit[wc.Slug]; skip {
			continue
		}
		out = append(out, wc)
	}

	applied, fellBack := cfg.SortOrder, false
	var less func(i, j int) bool
	switch cfg.SortOrder {
	case SortAlphaAsc:
		less = func(i, j int) bool { return out[i].Name < out[j].Name }
	case SortAlphaDesc:
		less = func(i, j int) bool { return out[i].Name > out[j].Name }
	case SortCountAsc:
		less = func(i, j int) bool { return out[i].Count < out[j].Count }
	case SortCountDesc:
		less = func(i, j int) bool { return out[i].Count > out[j].Count }
	default:
		applied, fellBack = SortAlphaAsc, true
		less = func(i, j int) bool { return out[i].Name < out[j].Name }
	}
	sort.SliceStable(out, less)

	return WorkoutCountsResult{Counts: out, SortOrderApplied: applied, FellBack: fellBack}
}

// ComputeRecentWorkouts returns at most cfg.RecentWorkoutsLimit entries in upstream order.
func ComputeRecentWorkouts(recent *RecentWorkouts, cfg InstanceConfig) []json.RawMessage {
	if recent == nil {
		return []json.RawMessage{}
	}
	limit := cfg.RecentWorkoutsLimit
	if limit < 0 || limit > len(recent.Data) {
		limit = len(recent.Data)
	}
	out := make([]json.RawMessage, limit)
	copy(out, recent.Data[:limit])
	return out
}

// ComputeChallenges returns the cached challenge list unchanged.
func ComputeChallenges(challenges *Challenges) []json.RawMessage {
	if challenges == nil {
		return []json.RawMessage{}
	}
	out := make([]json.RawMessage, len(challenges.Challenges))
	copy(out, challenges.Challenges)
	return out
}
