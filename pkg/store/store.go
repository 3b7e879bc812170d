package store

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/campusdesk/internal/errors"
)

// InitAction is dispatched to every reducer with nil state to obtain its
// initial state. Reducers should treat it like any unknown action.
const InitAction = "@@campusdesk/INIT"

// Action is a request to change state. Type is required.
type Action struct {
	Type    string         `json:"type"`
	Payload any            `json:"payload,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Reducer computes the next slice state from the current one.
// Called with nil state it must return the slice's initial state.
type Reducer func(state any, action Action) any

// State is a snapshot of the root state keyed by slice name.
// Callers must not mutate slice values in place.
type State map[string]any

// Dispatcher submits an action and returns it, possibly transformed.
type Dispatcher func(action Action) (Action, error)

// API is the view of the store handed to middleware.
type API interface {
	GetState() State
	Dispatch(action Action) (Action, error)
}

// Middleware wraps dispatch. It follows the usual
// api -> next -> action layering so a middleware can observe, transform,
// delay or swallow actions.
type Middleware func(api API) func(next Dispatcher) Dispatcher

// Options configures a store.
type Options struct {
	// Reducers maps slice names to reducers. Required.
	Reducers map[string]Reducer

	// Middleware runs after the serializability guard, in order.
	Middleware []Middleware

	// SerializableCheck configures the serializability guard.
	SerializableCheck SerializableCheck

	// OnViolation is called for every serializability violation, after it
	// has been logged.
	OnViolation func(Violation)

	// Logger receives warnings. Default: slog.Default() with component=store.
	Logger *slog.Logger
}

// Store holds the root state.
type Store struct {
	mu       sync.RWMutex
	reducers map[string]Reducer
	keys     []string
	state    State

	dispatch Dispatcher

	subMu   sync.RWMutex
	subs    []subscriber
	nextSub uint64

	// notifying is set while one goroutine runs listeners; dirty asks it
	// to run them once more. Both are guarded by notifyMu.
	notifyMu  sync.Mutex
	notifying bool
	dirty     bool

	violations atomic.Uint64
	logger     *slog.Logger
}

type subscriber struct {
	id uint64
	fn func()
}

// Configure builds a store from opts. It fails when the reducer mapping is
// empty, has an empty key or nil reducer, or when a reducer produces a nil
// initial state.
func Configure(opts Options) (*Store, error) {
	if len(opts.Reducers) == 0 {
		return nil, errors.New("E011").
			WithSuggestion("Pass at least one reducer in store.Options.Reducers")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "store")
	}

	s := &Store{
		reducers: make(map[string]Reducer, len(opts.Reducers)),
		state:    make(State, len(opts.Reducers)),
		logger:   logger,
	}

	for key, r := range opts.Reducers {
		if key == "" {
			return nil, errors.New("E010").WithDetail("a reducer is registered under an empty slice name")
		}
		if r == nil {
			return nil, errors.New("E010").
				WithDetail("slice " + strconv.Quote(key) + " has a nil reducer").
				WithSuggestion("Register every slice reducer before calling store.Configure")
		}
		s.reducers[key] = r
		s.keys = append(s.keys, key)
	}
	sort.Strings(s.keys)

	init := Action{Type: InitAction}
	for _, key := range s.keys {
		initial := s.reducers[key](nil, init)
		if initial == nil {
			return nil, errors.New("E013").WithDetail("slice " + strconv.Quote(key) + " returned nil for " + InitAction)
		}
		s.state[key] = initial
	}

	chain := make([]Middleware, 0, len(opts.Middleware)+1)
	chain = append(chain, serializableMiddleware(opts.SerializableCheck, logger, func(v Violation) {
		s.violations.Add(1)
		if opts.OnViolation != nil {
			opts.OnViolation(v)
		}
	}))
	for _, mw := range opts.Middleware {
		if mw != nil {
			chain = append(chain, mw)
		}
	}

	var api API = s
	d := Dispatcher(s.reduce)
	for i := len(chain) - 1; i >= 0; i-- {
		d = chain[i](api)(d)
	}
	s.dispatch = d

	logger.Debug("store configured", "slices", s.keys, "middleware", len(chain))
	return s, nil
}

// Must is like Configure but panics on error. Use it in main or package
// initialisation where a half-built store must never be served.
func Must(opts Options) *Store {
	s, err := Configure(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// GetState returns a snapshot of the root state.
func (s *Store) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(State, len(s.state))
	for k, v := range s.state {
		snap[k] = v
	}
	return snap
}

// Keys returns the slice names in sorted order.
func (s *Store) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Dispatch runs action through the middleware chain and every reducer.
// It returns once all reducers have run and listeners have been notified,
// or, when another goroutine is already notifying, once that goroutine
// has been asked to notify again.
func (s *Store) Dispatch(action Action) (Action, error) {
	if action.Type == "" {
		return action, errors.New("E012")
	}
	return s.dispatch(action)
}

// reduce is the innermost dispatcher.
func (s *Store) reduce(action Action) (Action, error) {
	if action.Type == "" {
		return action, errors.New("E012")
	}

	s.apply(action)
	s.notify()
	return action, nil
}

// apply runs every reducer. A panicking reducer leaves the state unchanged
// and the lock released.
func (s *Store) apply(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(State, len(s.state))
	for _, key := range s.keys {
		next[key] = s.reducers[key](s.state[key], action)
	}
	s.state = next
}

// Subscribe registers fn to run after every dispatch. The returned function
// removes the listener; calling it more than once is a no-op.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// notify runs listeners one pass at a time, never concurrently. A dispatch
// that lands during a pass (from another goroutine or from a listener)
// triggers one more pass, so the last pass always starts after the last
// state change. Each pass uses a copy of the listener list, so
// subscribe/unsubscribe during notification takes effect on the next pass.
func (s *Store) notify() {
	s.notifyMu.Lock()
	s.dirty = true
	if s.notifying {
		s.notifyMu.Unlock()
		return
	}
	s.notifying = true

	finished := false
	defer func() {
		if !finished {
			// A listener panicked; let the next dispatch notify.
			s.notifyMu.Lock()
			s.notifying = false
			s.notifyMu.Unlock()
		}
	}()

	for {
		if !s.dirty {
			s.notifying = false
			finished = true
			s.notifyMu.Unlock()
			return
		}
		s.dirty = false
		s.notifyMu.Unlock()

		s.subMu.RLock()
		subs := make([]subscriber, len(s.subs))
		copy(subs, s.subs)
		s.subMu.RUnlock()

		for _, sub := range subs {
			sub.fn()
		}
		s.notifyMu.Lock()
	}
}

// SerializableViolations returns how many violations the guard has reported.
func (s *Store) SerializableViolations() uint64 {
	return s.violations.Load()
}

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Select reads a typed slice from a state snapshot.
func Select[T any](state State, key string) (T, bool) {
	v, ok := state[key].(T)
	return v, ok
}

// Slice adapts a typed reducer. With nil (or foreign) state it starts from
// initial.
func Slice[S any](initial S, reduce func(state S, action Action) S) Reducer {
	return func(state any, action Action) any {
		cur, ok := state.(S)
		if !ok {
			cur = initial
		}
		if reduce == nil {
			return cur
		}
		return reduce(cur, action)
	}
}
