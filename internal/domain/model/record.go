package model

import (
	"slices"
	"time"
)

// EventTypeStatusUpdate marks audit entries synthesized by status transitions.
const EventTypeStatusUpdate = "status-update"

// Event is one entry in an entity's append-only audit log.
type Event struct {
	Type      string    `json:"type"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the part every stored entity shares.
type Record[S ~string] struct {
	ID        string    `json:"id"`
	Status    S         `json:"status"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *Record[S]) Base() *Record[S] {
	return r
}

// Append adds e to the log. The slice is clipped first so copies handed out
// earlier never observe the new entry.
func (r *Record[S]) Append(e Event) {
	r.Events = append(slices.Clip(r.Events), e)
}
