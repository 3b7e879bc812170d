package slices

import (
	"encoding/json"

	"github.com/vango-dev/campusdesk/internal/errors"
	"github.com/vango-dev/campusdesk/pkg/persist"
	"github.com/vango-dev/campusdesk/pkg/store"
)

// Slice keys in the root state.
const (
	KeyAuth      = "auth"
	KeyStudents  = "students"
	KeyFinancial = "financial"
	KeyClasses   = "classes"
)

// Status values shared by all slices.
const (
	StatusIdle      = "idle"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Reducers returns the four campusdesk slice reducers, each wrapped for
// persistence.
func Reducers() map[string]store.Reducer {
	return map[string]store.Reducer{
		KeyAuth:      persist.Reducer[AuthState](KeyAuth, store.Slice(initialAuth(), reduceAuth)),
		KeyStudents:  persist.Reducer[StudentsState](KeyStudents, store.Slice(initialStudents(), reduceStudents)),
		KeyFinancial: persist.Reducer[FinancialState](KeyFinancial, store.Slice(initialFinancial(), reduceFinancial)),
		KeyClasses:   persist.Reducer[ClassesState](KeyClasses, store.Slice(initialClasses(), reduceClasses)),
	}
}

// DecodePayload converts an action payload to T. Values already of type T
// are returned as is; anything else, typically a map decoded from JSON, is
// re-encoded and decoded into T.
func DecodePayload[T any](payload any) (T, error) {
	var out T
	if v, ok := payload.(T); ok {
		return v, nil
	}
	if payload == nil {
		return out, errors.New("E014").WithDetail("payload is missing")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return out, errors.New("E014").Wrap(err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, errors.New("E014").Wrap(err)
	}
	return out, nil
}

// payloadError describes a decode failure in the slice Error field.
func payloadError(action store.Action, err error) string {
	return action.Type + ": " + err.Error()
}
