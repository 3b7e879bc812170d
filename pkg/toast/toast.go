package toast

import (
	"encoding/json"
	"time"
)

// EventName is the client event carrying the current toast list.
const EventName = "campusdesk:toast"

// DefaultDuration is how long a toast stays visible unless overridden.
const DefaultDuration = 4000 * time.Millisecond

// Type represents the toast notification type.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeSuccess, TypeError, TypeInfo:
		return true
	}
	return false
}

// Toast is a single notification.
type Toast struct {
	ID        string
	Message   string
	Type      Type
	Duration  time.Duration
	CreatedAt time.Time
}

type toastJSON struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	Type       Type      `json:"type"`
	DurationMs int64     `json:"duration"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MarshalJSON encodes Duration as integer milliseconds.
func (t Toast) MarshalJSON() ([]byte, error) {
	return json.Marshal(toastJSON{
		ID:         t.ID,
		Message:    t.Message,
		Type:       t.Type,
		DurationMs: t.Duration.Milliseconds(),
		CreatedAt:  t.CreatedAt,
	})
}

// UnmarshalJSON decodes the MarshalJSON form.
func (t *Toast) UnmarshalJSON(data []byte) error {
	var raw toastJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Toast{
		ID:        raw.ID,
		Message:   raw.Message,
		Type:      raw.Type,
		Duration:  time.Duration(raw.DurationMs) * time.Millisecond,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}

// Toaster is the capability handed to consumers. It can only emit; it can
// neither list nor remove toasts. Each method returns the new toast's id.
//
// duration is optional; DefaultDuration applies when omitted.
type Toaster interface {
	Success(message string, duration ...time.Duration) string
	Error(message string, duration ...time.Duration) string
	Info(message string, duration ...time.Duration) string
}
