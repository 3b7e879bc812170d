// Package store composes independent state slices into one root state
// container with synchronous dispatch.
//
// A store is built once at startup from a fixed mapping of slice names to
// reducers. The key set never changes afterwards:
//
//	st, err := store.Configure(store.Options{
//	    Reducers: map[string]store.Reducer{
//	        "auth":     auth.Reducer,
//	        "students": students.Reducer,
//	    },
//	})
//	if err != nil {
//	    return err // E010/E011/E013: fail before serving anything
//	}
//
//	st.Dispatch(store.Action{Type: "students/added", Payload: s})
//	students, _ := store.Select[students.State](st.GetState(), "students")
//
// # Middleware
//
// Every dispatch passes through a middleware chain before the reducers run.
// The first link is always the serializability guard, which walks Payload
// and Meta and logs a warning for values that cannot be encoded (functions,
// channels, errors, non-finite floats...). Actions whose type is in
// SerializableCheck.IgnoredActions are skipped; by default these are the
// persistence actions "persist/PERSIST" and "persist/REHYDRATE". A warning
// never blocks the dispatch.
//
// # Subscriptions
//
// Subscribe registers a listener that runs after every dispatch, outside the
// store lock, so listeners may call GetState or Dispatch.
package store
