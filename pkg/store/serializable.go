package store

import (
	"encoding"
	"encoding/json"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DefaultIgnoredActions are the action types the serializability guard skips
// when SerializableCheck.IgnoredActions is nil. Persistence actions carry
// callbacks and errors by design.
var DefaultIgnoredActions = []string{"persist/PERSIST", "persist/REHYDRATE"}

// DefaultWarnAfter is how long a single check may take before the guard
// warns that the payload is too large to walk on every dispatch.
const DefaultWarnAfter = 32 * time.Millisecond

// SerializableCheck configures the serializability guard.
type SerializableCheck struct {
	// IgnoredActions lists action types that are not checked.
	// nil means DefaultIgnoredActions; an empty non-nil slice checks everything.
	IgnoredActions []string

	// IgnoredPaths lists dotted paths (e.g. "payload.callback", "meta.arg")
	// whose subtrees are skipped.
	IgnoredPaths []string

	// Disabled turns the guard off entirely.
	Disabled bool

	// WarnAfter is the slow-check warning threshold. Default: 32ms.
	WarnAfter time.Duration
}

// Violation describes one non-serializable value found in an action.
type Violation struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Kind   string `json:"kind"`
}

var (
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func serializableMiddleware(check SerializableCheck, logger *slog.Logger, report func(Violation)) Middleware {
	ignored := check.IgnoredActions
	if ignored == nil {
		ignored = DefaultIgnoredActions
	}
	ignoredActions := make(map[string]struct{}, len(ignored))
	for _, t := range ignored {
		ignoredActions[t] = struct{}{}
	}
	ignoredPaths := make(map[string]struct{}, len(check.IgnoredPaths))
	for _, p := range check.IgnoredPaths {
		ignoredPaths[p] = struct{}{}
	}
	warnAfter := check.WarnAfter
	if warnAfter <= 0 {
		warnAfter = DefaultWarnAfter
	}

	return func(api API) func(next Dispatcher) Dispatcher {
		return func(next Dispatcher) Dispatcher {
			return func(action Action) (Action, error) {
				if check.Disabled {
					return next(action)
				}
				if _, skip := ignoredActions[action.Type]; skip {
					return next(action)
				}

				start := time.Now()
				found := FindNonSerializable("payload", action.Payload, ignoredPaths)
				found = append(found, FindNonSerializable("meta", action.Meta, ignoredPaths)...)
				if elapsed := time.Since(start); elapsed > warnAfter {
					logger.Warn("serializability check is slow",
						"action", action.Type,
						"elapsed", elapsed,
						"threshold", warnAfter)
				}

				for _, v := range found {
					v.Action = action.Type
					logger.Warn("non-serializable value in action",
						"action", v.Action,
						"path", v.Path,
						"kind", v.Kind)
					if report != nil {
						report(v)
					}
				}
				return next(action)
			}
		}
	}
}

// FindNonSerializable walks value and returns every non-serializable leaf.
// root names the top of the walk ("payload"); paths are dotted from there.
// Subtrees whose path is in ignored are skipped.
func FindNonSerializable(root string, value any, ignored map[string]struct{}) []Violation {
	w := walker{ignored: ignored, seen: make(map[uintptr]struct{})}
	w.walk(root, reflect.ValueOf(value))
	return w.found
}

type walker struct {
	ignored map[string]struct{}
	seen    map[uintptr]struct{}
	found   []Violation
}

func (w *walker) add(path, kind string) {
	w.found = append(w.found, Violation{Path: path, Kind: kind})
}

func (w *walker) walk(path string, v reflect.Value) {
	if _, skip := w.ignored[path]; skip {
		return
	}
	if !v.IsValid() {
		return
	}

	// Interface and pointer layers first, so nil checks and marshaler
	// detection see the concrete value.
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		w.walk(path, v.Elem())
		return
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if v.Type().Implements(errorType) {
			w.add(path, "error")
			return
		}
		ptr := v.Pointer()
		if _, ok := w.seen[ptr]; ok {
			w.add(path, "cycle")
			return
		}
		w.seen[ptr] = struct{}{}
		defer delete(w.seen, ptr)
		w.walk(path, v.Elem())
		return
	}

	t := v.Type()
	if t.Implements(errorType) {
		w.add(path, "error")
		return
	}
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			w.add(path, "non-finite float")
		}

	case reflect.Complex64, reflect.Complex128:
		w.add(path, "complex")

	case reflect.Func:
		if !v.IsNil() {
			w.add(path, "func")
		}

	case reflect.Chan:
		if !v.IsNil() {
			w.add(path, "chan")
		}

	case reflect.UnsafePointer:
		w.add(path, "unsafe.Pointer")

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return
		}
		for i := 0; i < v.Len(); i++ {
			w.walk(path+"."+strconv.Itoa(i), v.Index(i))
		}

	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			w.walk(path+"."+strconv.Itoa(i), v.Index(i))
		}

	case reflect.Map:
		if k := t.Key().Kind(); k != reflect.String && !t.Key().Implements(textMarshalerType) && !isIntegerKind(k) {
			w.add(path, "map key "+k.String())
			return
		}
		if v.IsNil() {
			return
		}
		ptr := v.Pointer()
		if _, ok := w.seen[ptr]; ok {
			w.add(path, "cycle")
			return
		}
		w.seen[ptr] = struct{}{}
		defer delete(w.seen, ptr)
		iter := v.MapRange()
		for iter.Next() {
			w.walk(path+"."+mapKeyString(iter.Key()), iter.Value())
		}

	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				tagName, _, _ := strings.Cut(tag, ",")
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			w.walk(path+"."+name, v.Field(i))
		}
	}
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func mapKeyString(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		if b, err := tm.MarshalText(); err == nil {
			return string(b)
		}
	}
	return k.String()
}
