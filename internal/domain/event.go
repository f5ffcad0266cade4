package domain

import (
	"errors"
	"time"
)

// ErrEmptyID is returned when a store reports success without assigning an identifier.
var ErrEmptyID = errors.New("store returned an empty event id")

// NewEvent is an alert as submitted by a producer, before it is persisted.
type NewEvent struct {
	Type        string         `json:"type" validate:"required,max=256"`
	SourceIP    string         `json:"source_ip" validate:"required,max=64"`
	ActionTaken string         `json:"action_taken" validate:"required,max=256"`
	Details     map[string]any `json:"details"`
}

// Event represents a persisted intrusion-detection alert. ID is assigned by the
// store and Timestamp by the distributor; neither changes afterwards.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	SourceIP    string         `json:"source_ip"`
	ActionTaken string         `json:"action_taken"`
	Details     map[string]any `json:"details"`
	Timestamp   time.Time      `json:"timestamp"`
}

// CloneDetails returns a shallow copy of details that is never nil.
func CloneDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
