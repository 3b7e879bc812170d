// Package slices defines the campusdesk state slices: auth, students,
// financial and classes.
//
// Each slice is a typed reducer built with store.Slice and wrapped with
// persist.Reducer so it survives restarts. Action creators build actions
// with typed payloads; the reducers also accept the map form that arrives
// from JSON over HTTP.
//
//	st, err := store.Configure(store.Options{Reducers: slices.Reducers()})
//	st.Dispatch(slices.StudentAdded(slices.Student{ID: "s1", Name: "Ada"}))
//
// Dispatching AuthLogout resets every slice to its initial state.
package slices
