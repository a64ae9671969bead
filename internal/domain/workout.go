// Package domain defines the instance configuration, upstream payload views, and the
// pure transformations applied before data is rendered by a widget.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload is returned when an upstream body cannot be decoded into the expected shape.
var ErrMalformedPayload = errors.New("malformed upstream payload")

// WorkoutCategoryCount is a {slug, name, count} triplet taken verbatim from the profile payload.
type WorkoutCategoryCount struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Profile is the last successfully fetched api/me payload.
type Profile struct {
	Raw           json.RawMessage
	WorkoutCounts []WorkoutCategoryCount
	FetchedAt     time.Time
}

// RecentWorkouts is the last successfully fetched page of workouts.
type RecentWorkouts struct {
	Raw       json.RawMessage
	Data      []json.RawMessage
	FetchedAt time.Time
}

// Challenges is the last successfully fetched list of joined challenges.
type Challenges struct {
	Raw        json.RawMessage
	Challenges []json.RawMessage
	FetchedAt  time.Time
}

// ParseProfile decodes the workout counts from an api/me body and keeps the raw body.
func ParseProfile(body json.RawMessage, fetchedAt time.Time) (*Profile, error) {
	var payload struct {
		WorkoutCounts []WorkoutCategoryCount `json:"workout_counts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: profile: %v", ErrMalformedPayload, err)
	}
	return &Profile{
		Raw:           cloneRaw(body),
		WorkoutCounts: payload.WorkoutCounts,
		FetchedAt:     fetchedAt,
	}, nil
}

// ParseRecentWorkouts decodes the data list of a workouts page.
func ParseRecentWorkouts(body json.RawMessage, fetchedAt time.Time) (*RecentWorkouts, error) {
	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: workouts: %v", ErrMalformedPayload, err)
	}
	return &RecentWorkouts{
		Raw:       cloneRaw(body),
		Data:      payload.Data,
		FetchedAt: fetchedAt,
	}, nil
}

// ParseChallenges decodes the challenge list of a current challenges response.
func ParseChallenges(body json.RawMessage, fetchedAt time.Time) (*Challenges, error) {
	var payload struct {
		Challenges []json.RawMessage `json:"challenges"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: challenges: %v", ErrMalformedPayload, err)
	}
	return &Challenges{
		Raw:        cloneRaw(body),
		Challenges: payload.Challenges,
		FetchedAt:  fetchedAt,
	}, nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
