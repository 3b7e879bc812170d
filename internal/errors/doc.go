// Package errors provides coded, actionable errors for campusdesk.
//
// Every failure that crosses a package boundary carries a short code
// (e.g. "E010") that maps to a registered template with a category, a
// one-line message and a longer explanation:
//
//	err := errors.New("E010").
//	    WithDetail(`slice "students" has a nil reducer`).
//	    WithSuggestion("Register every slice reducer before calling store.Configure")
//
//	fmt.Println(err.Format())
//	// ERROR E010: Undefined key in reducer mapping
//	//
//	//   slice "students" has a nil reducer
//	//
//	//   Hint: Register every slice reducer before calling store.Configure
//
// # Error Categories
//
//   - toast: toast capability used outside a provider scope
//   - store: store construction and dispatch failures
//   - persist: snapshot storage failures
//   - config: configuration file and environment problems
//   - transport: HTTP and websocket failures
//
// CampusError implements Unwrap so errors.Is and errors.As see through it.
// Is matches on Code, so sentinel comparisons like
// errors.Is(err, errors.New("E001")) work.
package errors
