package slices

import (
	"time"

	"github.com/vango-dev/campusdesk/pkg/store"
)

// Students action types.
const (
	StudentsLoaded  = "students/loaded"
	StudentsAdded   = "students/added"
	StudentsUpdated = "students/updated"
	StudentsRemoved = "students/removed"
)

// Student is an enrolled student record.
type Student struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Grade      string    `json:"grade,omitempty"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// StudentsState is the students slice.
type StudentsState struct {
	Items  []Student `json:"items"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// Find returns the student with id.
func (s StudentsState) Find(id string) (Student, bool) {
	for _, st := range s.Items {
		if st.ID == id {
			return st, true
		}
	}
	return Student{}, false
}

// StudentsLoadedAction replaces the student list.
func StudentsLoadedAction(items []Student) store.Action {
	return store.Action{Type: StudentsLoaded, Payload: items}
}

// StudentAdded builds a StudentsAdded action.
func StudentAdded(s Student) store.Action {
	return store.Action{Type: StudentsAdded, Payload: s}
}

// StudentUpdated builds a StudentsUpdated action.
func StudentUpdated(s Student) store.Action {
	return store.Action{Type: StudentsUpdated, Payload: s}
}

// StudentRemoved builds a StudentsRemoved action.
func StudentRemoved(id string) store.Action {
	return store.Action{Type: StudentsRemoved, Payload: id}
}

func initialStudents() StudentsState {
	return StudentsState{Items: []Student{}, Status: StatusIdle}
}

func reduceStudents(s StudentsState, a store.Action) StudentsState {
	switch a.Type {
	case StudentsLoaded:
		items, err := DecodePayload[[]Student](a.Payload)
		if err != nil {
			s.Status, s.Error = StatusFailed, payloadError(a, err)
			return s
		}
		return StudentsState{Items: append([]Student{}, items...), Status: StatusSucceeded}

	case StudentsAdded:
		st, err := DecodePayload[Student](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		if _, exists := s.Find(st.ID); exists || st.ID == "" {
			s.Error = a.Type + ": duplicate or empty id " + st.ID
			return s
		}
		items := make([]Student, 0, len(s.Items)+1)
		items = append(items, s.Items...)
		s.Items = append(items, st)
		s.Error = ""
		return s

	case StudentsUpdated:
		st, err := DecodePayload[Student](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		items := make([]Student, len(s.Items))
		copy(items, s.Items)
		found := false
		for i := range items {
			if items[i].ID == st.ID {
				items[i] = st
				found = true
			}
		}
		if !found {
			s.Error = a.Type + ": unknown student " + st.ID
			return s
		}
		s.Items, s.Error = items, ""
		return s

	case StudentsRemoved:
		id, err := DecodePayload[string](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		items := make([]Student, 0, len(s.Items))
		for _, st := range s.Items {
			if st.ID != id {
				items = append(items, st)
			}
		}
		s.Items, s.Error = items, ""
		return s

	case AuthLogout:
		return initialStudents()
	}
	return s
}
