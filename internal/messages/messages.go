// Package messages defines the named-message envelope exchanged with widget instances.
package messages

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix namespaces every message name on the shared channel.
const Prefix = "MMM-Peloton"

// Inbound message names.
const (
	SetConfig             = "SET_CONFIG"
	Login                 = "LOGIN"
	RequestUser           = "REQUEST_USER"
	RequestRecentWorkouts = "REQUEST_RECENT_WORKOUTS"
	RequestChallenges     = "REQUEST_CHALLENGES"
)

// Outbound message names.
const (
	UserIsLoggedIn                    = "USER_IS_LOGGED_IN"
	FailedToLogIn                     = "FAILED_TO_LOG_IN"
	RetrievedUserData                 = "RETRIEVED_USER_DATA"
	FailedToRetrieveUserData          = "FAILED_TO_RETRIEVE_USER_DATA"
	RetrievedRecentWorkoutData        = "RETRIEVED_RECENT_WORKOUT_DATA"
	FailedToRetrieveRecentWorkoutData = "FAILED_TO_RETRIEVE_RECENT_USER_WORKOUT_DATA"
	RetrievedChallengeData            = "RETRIEVED_CHALLENGE_DATA"
	FailedToRetrieveChallengeData     = "FAILED_TO_RETRIEVE_CHALLENGE_DATA"
)

// Message is a named message addressed to or from one instance.
type Message struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	InstanceID string          `json:"instance_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Publisher delivers outbound messages to the UI layer.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Normalize returns the namespaced form of name. Already namespaced names are unchanged.
func Normalize(name string) string {
	if strings.HasPrefix(name, Prefix+"_") {
		return name
	}
	return Prefix + "_" + name
}

// Base strips the namespace prefix from name.
func Base(name string) string {
	return strings.TrimPrefix(name, Prefix+"_")
}

// New builds an outbound message with a namespaced name and a JSON-encoded payload.
func New(name, instanceID string, payload any) (Message, error) {
	msg := Message{
		ID:         uuid.NewString(),
		Name:       Normalize(name),
		InstanceID: instanceID,
		CreatedAt:  time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = raw
	}
	return msg, nil
}

// BodyPayload is carried by failure messages and by the recent workouts and challenges messages.
type BodyPayload struct {
	InstanceID string          `json:"instanceId"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// UserPayload is carried by RETRIEVED_USER_DATA.
type UserPayload struct {
	InstanceID  string          `json:"instanceId"`
	PelotonUser json.RawMessage `json:"peloton_user"`
}

// InstancePayload is carried by messages with no other data.
type InstancePayload struct {
	InstanceID string `json:"instanceId"`
}
