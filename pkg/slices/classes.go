package slices

import (
	"strconv"

	"github.com/vango-dev/campusdesk/pkg/store"
)

// Classes action types.
const (
	ClassesLoaded            = "classes/loaded"
	ClassesAdded             = "classes/added"
	ClassesRemoved           = "classes/removed"
	ClassesStudentEnrolled   = "classes/studentEnrolled"
	ClassesStudentUnenrolled = "classes/studentUnenrolled"
)

// Class is a course section. Capacity 0 means unlimited.
type Class struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Teacher    string   `json:"teacher,omitempty"`
	Room       string   `json:"room,omitempty"`
	Capacity   int      `json:"capacity,omitempty"`
	StudentIDs []string `json:"studentIds"`
}

// Enrollment is the payload of the enrollment actions.
type Enrollment struct {
	ClassID   string `json:"classId"`
	StudentID string `json:"studentId"`
}

// ClassesState is the classes slice.
type ClassesState struct {
	Items  []Class `json:"items"`
	Status string  `json:"status"`
	Error  string  `json:"error,omitempty"`
}

// ClassesLoadedAction replaces the class list.
func ClassesLoadedAction(items []Class) store.Action {
	return store.Action{Type: ClassesLoaded, Payload: items}
}

// ClassAdded builds a ClassesAdded action.
func ClassAdded(c Class) store.Action {
	return store.Action{Type: ClassesAdded, Payload: c}
}

// ClassRemoved builds a ClassesRemoved action.
func ClassRemoved(id string) store.Action {
	return store.Action{Type: ClassesRemoved, Payload: id}
}

// StudentEnrolled builds a ClassesStudentEnrolled action.
func StudentEnrolled(classID, studentID string) store.Action {
	return store.Action{Type: ClassesStudentEnrolled, Payload: Enrollment{ClassID: classID, StudentID: studentID}}
}

// StudentUnenrolled builds a ClassesStudentUnenrolled action.
func StudentUnenrolled(classID, studentID string) store.Action {
	return store.Action{Type: ClassesStudentUnenrolled, Payload: Enrollment{ClassID: classID, StudentID: studentID}}
}

func initialClasses() ClassesState {
	return ClassesState{Items: []Class{}, Status: StatusIdle}
}

func cloneClass(c Class) Class {
	c.StudentIDs = append([]string{}, c.StudentIDs...)
	return c
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func reduceClasses(s ClassesState, a store.Action) ClassesState {
	switch a.Type {
	case ClassesLoaded:
		items, err := DecodePayload[[]Class](a.Payload)
		if err != nil {
			s.Status, s.Error = StatusFailed, payloadError(a, err)
			return s
		}
		out := make([]Class, len(items))
		for i, c := range items {
			out[i] = cloneClass(c)
		}
		return ClassesState{Items: out, Status: StatusSucceeded}

	case ClassesAdded:
		c, err := DecodePayload[Class](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		for _, existing := range s.Items {
			if existing.ID == c.ID {
				s.Error = a.Type + ": duplicate class " + c.ID
				return s
			}
		}
		items := make([]Class, 0, len(s.Items)+1)
		items = append(items, s.Items...)
		s.Items, s.Error = append(items, cloneClass(c)), ""
		return s

	case ClassesRemoved:
		id, err := DecodePayload[string](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		items := make([]Class, 0, len(s.Items))
		for _, c := range s.Items {
			if c.ID != id {
				items = append(items, c)
			}
		}
		s.Items, s.Error = items, ""
		return s

	case ClassesStudentEnrolled, ClassesStudentUnenrolled:
		e, err := DecodePayload[Enrollment](a.Payload)
		if err != nil {
			s.Error = payloadError(a, err)
			return s
		}
		return enroll(s, a.Type, e)

	case StudentsRemoved:
		// A removed student leaves every class.
		id, err := DecodePayload[string](a.Payload)
		if err != nil {
			return s
		}
		items := make([]Class, len(s.Items))
		for i, c := range s.Items {
			c.StudentIDs = without(c.StudentIDs, id)
			items[i] = c
		}
		s.Items = items
		return s

	case AuthLogout:
		return initialClasses()
	}
	return s
}

func enroll(s ClassesState, actionType string, e Enrollment) ClassesState {
	idx := -1
	for i, c := range s.Items {
		if c.ID == e.ClassID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.Error = actionType + ": unknown class " + e.ClassID
		return s
	}

	c := cloneClass(s.Items[idx])
	if actionType == ClassesStudentEnrolled {
		for _, id := range c.StudentIDs {
			if id == e.StudentID {
				s.Error = ""
				return s
			}
		}
		if c.Capacity > 0 && len(c.StudentIDs) >= c.Capacity {
			s.Error = actionType + ": class " + c.ID + " is full (" + strconv.Itoa(c.Capacity) + ")"
			return s
		}
		c.StudentIDs = append(c.StudentIDs, e.StudentID)
	} else {
		c.StudentIDs = without(c.StudentIDs, e.StudentID)
	}

	items := make([]Class, len(s.Items))
	copy(items, s.Items)
	items[idx] = c
	s.Items, s.Error = items, ""
	return s
}
