package persist

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/campusdesk/internal/errors"
	"github.com/vango-dev/campusdesk/pkg/store"
)

// Action types dispatched by the persistor.
const (
	Persist   = "persist/PERSIST"
	Rehydrate = "persist/REHYDRATE"
	Flush     = "persist/FLUSH"
	Purge     = "persist/PURGE"
)

// IgnoredActions is the serializability ignore-set for persistence actions.
var IgnoredActions = []string{Persist, Rehydrate}

// DefaultThrottle is the delay between a state change and its write.
const DefaultThrottle = time.Second

// Config configures a Persistor.
type Config struct {
	// Key names the snapshot in storage. Default: "root".
	Key string

	// Whitelist limits which slices are persisted. Empty means all.
	Whitelist []string

	// Version is written into every snapshot. A stored snapshot with a
	// different version goes through Migrate, or is discarded if Migrate
	// is nil.
	Version int

	// Migrate upgrades stored slices from an older version.
	Migrate func(version int, slices map[string]json.RawMessage) (map[string]json.RawMessage, error)

	// Throttle delays writes after a change. Zero writes synchronously on
	// every dispatch. Negative means DefaultThrottle.
	Throttle time.Duration

	// WriteTimeout bounds each background write. Default: 10s.
	WriteTimeout time.Duration
}

// PersistPayload is the payload of the Persist action.
type PersistPayload struct {
	Key string
	// Register is called by wrapped reducers with their slice key.
	Register func(key string)
}

// RehydratePayload is the payload of the Rehydrate action.
type RehydratePayload struct {
	Key     string
	Version int
	// State holds the stored JSON of every restorable slice.
	State map[string]json.RawMessage
	// Err is set when the snapshot could not be loaded or decoded.
	Err error
}

// snapshot is the stored envelope.
type snapshot struct {
	Version int                        `json:"version"`
	SavedAt time.Time                  `json:"savedAt"`
	Slices  map[string]json.RawMessage `json:"slices"`
}

// Reducer wraps a slice reducer so it registers on Persist and restores its
// state of type S on Rehydrate. Fields missing from the stored JSON keep
// their current values.
func Reducer[S any](key string, r store.Reducer) store.Reducer {
	return func(state any, action store.Action) any {
		switch action.Type {
		case Persist:
			if p, ok := action.Payload.(PersistPayload); ok && p.Register != nil {
				p.Register(key)
			}
		case Rehydrate:
			p, ok := action.Payload.(RehydratePayload)
			if !ok || p.Err != nil {
				break
			}
			raw, ok := p.State[key]
			if !ok {
				break
			}
			next, ok := restore[S](r(state, action), raw)
			if !ok {
				break
			}
			return next
		}
		return r(state, action)
	}
}

// restore decodes raw over a deep copy of current, so values shared with
// earlier snapshots are never written to.
func restore[S any](current any, raw json.RawMessage) (S, bool) {
	var next S
	if cur, ok := current.(S); ok {
		base, err := json.Marshal(cur)
		if err != nil || json.Unmarshal(base, &next) != nil {
			return next, false
		}
	}
	if err := json.Unmarshal(raw, &next); err != nil {
		return next, false
	}
	return next, true
}

// Persistor mirrors store state into Storage.
type Persistor struct {
	store   *store.Store
	storage Storage
	cfg     Config
	logger  *slog.Logger

	mu          sync.Mutex
	registered  map[string]bool
	lastSaved   []byte
	timer       *time.Timer
	unsubscribe func()
	started     bool
	stopped     bool

	// writeMu serializes encode and save, so an older encoding is never
	// saved after a newer one.
	writeMu sync.Mutex
}

// NewPersistor creates a persistor. Call Start to rehydrate and begin
// writing.
func NewPersistor(st *store.Store, storage Storage, cfg Config, logger *slog.Logger) *Persistor {
	if cfg.Key == "" {
		cfg.Key = "root"
	}
	if cfg.Throttle < 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default().With("component", "persist")
	}
	return &Persistor{
		store:      st,
		storage:    storage,
		cfg:        cfg,
		logger:     logger,
		registered: make(map[string]bool),
	}
}

// Start dispatches Persist, loads the stored snapshot, dispatches Rehydrate
// and subscribes to the store. A load or decode failure is returned after
// the persistor has started, so callers may choose to continue with the
// initial state.
func (p *Persistor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	if _, err := p.store.Dispatch(store.Action{
		Type:    Persist,
		Payload: PersistPayload{Key: p.cfg.Key, Register: p.register},
	}); err != nil {
		return err
	}

	payload := RehydratePayload{Key: p.cfg.Key, Version: p.cfg.Version}
	payload.State, payload.Err = p.load(ctx)

	if _, err := p.store.Dispatch(store.Action{Type: Rehydrate, Payload: payload}); err != nil {
		return err
	}

	restored := make([]string, 0, len(payload.State))
	for k := range payload.State {
		restored = append(restored, k)
	}
	sort.Strings(restored)
	p.logger.Info("state rehydrated",
		"key", p.cfg.Key,
		"registered", p.Registered(),
		"restored", restored)

	for _, k := range p.cfg.Whitelist {
		if !p.isRegistered(k) {
			p.logger.Warn("whitelisted slice is not wrapped with persist.Reducer", "slice", k)
		}
	}

	unsub := p.store.Subscribe(p.onChange)
	p.mu.Lock()
	p.unsubscribe = unsub
	p.mu.Unlock()

	return payload.Err
}

func (p *Persistor) register(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered[key] = true
}

func (p *Persistor) isRegistered(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered[key]
}

// Registered returns the slice keys that answered Persist, sorted.
func (p *Persistor) Registered() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.registered))
	for k := range p.registered {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p *Persistor) load(ctx context.Context) (map[string]json.RawMessage, error) {
	data, err := p.storage.Load(ctx, p.cfg.Key)
	if err != nil {
		return nil, errors.New("E020").Wrap(err)
	}
	if data == nil {
		return nil, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.New("E022").Wrap(err)
	}

	slices := snap.Slices
	if snap.Version != p.cfg.Version {
		if p.cfg.Migrate == nil {
			p.logger.Warn("discarding snapshot with different version",
				"stored", snap.Version,
				"current", p.cfg.Version)
			return nil, nil
		}
		slices, err = p.cfg.Migrate(snap.Version, slices)
		if err != nil {
			return nil, errors.New("E022").WithDetail("snapshot migration failed").Wrap(err)
		}
	}

	out := make(map[string]json.RawMessage, len(slices))
	for k, v := range slices {
		if p.allowed(k) {
			out[k] = v
		}
	}
	p.mu.Lock()
	p.lastSaved = data
	p.mu.Unlock()
	return out, nil
}

func (p *Persistor) allowed(key string) bool {
	if len(p.cfg.Whitelist) == 0 {
		return true
	}
	for _, k := range p.cfg.Whitelist {
		if k == key {
			return true
		}
	}
	return false
}

func (p *Persistor) onChange() {
	if p.cfg.Throttle == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		if err := p.write(ctx); err != nil {
			p.logger.Error("persist write failed", "key", p.cfg.Key, "error", err)
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.timer != nil {
		return
	}
	p.timer = time.AfterFunc(p.cfg.Throttle, func() {
		p.mu.Lock()
		p.timer = nil
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		if err := p.write(ctx); err != nil {
			p.logger.Error("persist write failed", "key", p.cfg.Key, "error", err)
		}
	})
}

// encode builds the snapshot bytes for the current state.
func (p *Persistor) encode() ([]byte, error) {
	state := p.store.GetState()
	slices := make(map[string]json.RawMessage, len(state))
	for k, v := range state {
		if !p.allowed(k) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.New("E021").WithDetail("slice " + k + " is not JSON encodable").Wrap(err)
		}
		slices[k] = raw
	}
	return json.Marshal(snapshot{Version: p.cfg.Version, Slices: slices})
}

// write saves the current state unless its slices are unchanged since the
// last write.
func (p *Persistor) write(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	data, err := p.encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	same := p.lastSaved != nil && sameSlices(p.lastSaved, data)
	p.mu.Unlock()
	if same {
		return nil
	}

	// SavedAt is stamped after the comparison so it never causes a write.
	var snap snapshot
	_ = json.Unmarshal(data, &snap)
	snap.SavedAt = time.Now().UTC()
	stamped, err := json.Marshal(snap)
	if err != nil {
		return errors.New("E021").Wrap(err)
	}

	if err := p.storage.Save(ctx, p.cfg.Key, stamped); err != nil {
		return errors.New("E021").Wrap(err)
	}

	p.mu.Lock()
	p.lastSaved = stamped
	p.mu.Unlock()
	p.logger.Debug("state persisted", "key", p.cfg.Key, "bytes", len(stamped))
	return nil
}

// sameSlices compares the version and slices of two encoded snapshots.
func sameSlices(a, b []byte) bool {
	var sa, sb snapshot
	if json.Unmarshal(a, &sa) != nil || json.Unmarshal(b, &sb) != nil {
		return false
	}
	if sa.Version != sb.Version || len(sa.Slices) != len(sb.Slices) {
		return false
	}
	for k, va := range sa.Slices {
		vb, ok := sb.Slices[k]
		if !ok || string(va) != string(vb) {
			return false
		}
	}
	return true
}

// Flush writes pending changes immediately and dispatches Flush.
func (p *Persistor) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if err := p.write(ctx); err != nil {
		return err
	}
	_, err := p.store.Dispatch(store.Action{Type: Flush, Payload: map[string]any{"key": p.cfg.Key}})
	return err
}

// Purge deletes the stored snapshot and dispatches Purge. In-memory state
// is untouched; writing resumes with the next state change.
func (p *Persistor) Purge(ctx context.Context) error {
	if err := p.purge(ctx); err != nil {
		return err
	}
	_, err := p.store.Dispatch(store.Action{Type: Purge, Payload: map[string]any{"key": p.cfg.Key}})
	return err
}

func (p *Persistor) purge(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	current, err := p.encode()
	if err != nil {
		return err
	}
	if err := p.storage.Delete(ctx, p.cfg.Key); err != nil {
		return errors.New("E021").WithDetail("purge failed").Wrap(err)
	}
	p.mu.Lock()
	p.lastSaved = current
	p.mu.Unlock()
	return nil
}

// Stop unsubscribes from the store and flushes. It is idempotent.
func (p *Persistor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	unsub := p.unsubscribe
	p.unsubscribe = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return p.write(ctx)
}

// ReadSnapshot decodes a stored snapshot without a store, for inspection.
func ReadSnapshot(ctx context.Context, storage Storage, key string) (version int, savedAt time.Time, slices map[string]json.RawMessage, err error) {
	data, err := storage.Load(ctx, key)
	if err != nil {
		return 0, time.Time{}, nil, errors.New("E020").Wrap(err)
	}
	if data == nil {
		return 0, time.Time{}, nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, time.Time{}, nil, errors.New("E022").Wrap(err)
	}
	return snap.Version, snap.SavedAt, snap.Slices, nil
}
