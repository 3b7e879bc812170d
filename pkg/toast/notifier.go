package toast

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Notifier owns the toast list for one provider scope.
// It implements Toaster; Remove, List and Subscribe are for the owner only.
type Notifier struct {
	mu     sync.Mutex
	toasts []Toast
	timers map[string]Timer
	closed bool
	seq    uint64

	// publishing is set while one goroutine delivers lists to subscribers;
	// dirty asks it to deliver the current list once more.
	publishing bool
	dirty      bool

	scheduler       Scheduler
	now             func() time.Time
	newID           func() string
	defaultDuration time.Duration
	logger          *slog.Logger

	subMu   sync.RWMutex
	subs    []listener
	nextSub uint64
}

type listener struct {
	id uint64
	fn func([]Toast)
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(n *Notifier) {
		if s != nil {
			n.scheduler = s
		}
	}
}

// WithClock sets the function used to stamp CreatedAt and ids.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// WithIDGenerator replaces the id scheme. The generator must not return an
// id that is still live.
func WithIDGenerator(gen func() string) Option {
	return func(n *Notifier) {
		n.newID = gen
	}
}

// WithDefaultDuration overrides DefaultDuration for this scope.
func WithDefaultDuration(d time.Duration) Option {
	return func(n *Notifier) {
		if d >= 0 {
			n.defaultDuration = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier creates an empty provider scope.
func NewNotifier(opts ...Option) *Notifier {
	n := &Notifier{
		timers:          make(map[string]Timer),
		scheduler:       realScheduler{},
		now:             time.Now,
		defaultDuration: DefaultDuration,
		logger:          slog.Default().With("component", "toast"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Success shows a success toast.
//
//	n.Success("Changes saved!")
func (n *Notifier) Success(message string, duration ...time.Duration) string {
	return n.emit(message, TypeSuccess, duration)
}

// Error shows an error toast.
//
//	n.Error("Failed to delete student", 8*time.Second)
func (n *Notifier) Error(message string, duration ...time.Duration) string {
	return n.emit(message, TypeError, duration)
}

// Info shows an info toast.
func (n *Notifier) Info(message string, duration ...time.Duration) string {
	return n.emit(message, TypeInfo, duration)
}

// Emit shows a toast of the given type. Unknown types fall back to info.
func (n *Notifier) Emit(message string, typ Type, duration ...time.Duration) string {
	if !typ.Valid() {
		n.logger.Warn("unknown toast type, using info", "type", string(typ))
		typ = TypeInfo
	}
	return n.emit(message, typ, duration)
}

func (n *Notifier) emit(message string, typ Type, duration []time.Duration) string {
	d := n.defaultDuration
	if len(duration) > 0 {
		d = duration[0]
	}
	if d < 0 {
		d = 0
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.logger.Warn("toast emitted after provider closed", "type", string(typ), "message", message)
		return ""
	}

	now := n.now()
	n.seq++
	id := n.generateID(now, n.seq)
	t := Toast{
		ID:        id,
		Message:   message,
		Type:      typ,
		Duration:  d,
		CreatedAt: now,
	}
	n.toasts = append(n.toasts, t)
	// Scheduled under the lock so a zero-duration timer cannot fire before
	// the toast is in the list.
	n.timers[id] = n.scheduler.AfterFunc(d, func() { n.expire(id) })
	n.mu.Unlock()

	n.logger.Debug("toast emitted", "id", id, "type", string(typ), "duration", d)
	n.publish()
	return id
}

// generateID builds "<unix-millis base36>-<seq base36>-<random hex>".
// seq is unique per scope, which makes live ids collision-free.
func (n *Notifier) generateID(now time.Time, seq uint64) string {
	if n.newID != nil {
		return n.newID()
	}
	var b [3]byte
	_, _ = rand.Read(b[:])
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + strconv.FormatUint(seq, 36) + "-" + hex.EncodeToString(b[:])
}

// Remove dismisses the toast with id. It reports whether a toast was
// removed; unknown or already-removed ids are a no-op.
func (n *Notifier) Remove(id string) bool {
	n.mu.Lock()
	removed := n.removeLocked(id)
	n.mu.Unlock()

	if removed {
		n.publish()
	}
	return removed
}

// expire is the timer callback. It runs the same id-keyed removal as Remove
// against the current list.
func (n *Notifier) expire(id string) {
	n.mu.Lock()
	delete(n.timers, id)
	removed := n.removeLocked(id)
	n.mu.Unlock()

	if removed {
		n.logger.Debug("toast expired", "id", id)
		n.publish()
	}
}

func (n *Notifier) removeLocked(id string) bool {
	for i, t := range n.toasts {
		if t.ID == id {
			next := make([]Toast, 0, len(n.toasts)-1)
			next = append(next, n.toasts[:i]...)
			next = append(next, n.toasts[i+1:]...)
			n.toasts = next
			return true
		}
	}
	return false
}

func (n *Notifier) snapshotLocked() []Toast {
	out := make([]Toast, len(n.toasts))
	copy(out, n.toasts)
	return out
}

// List returns the visible toasts in display order.
func (n *Notifier) List() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshotLocked()
}

// Len returns the number of visible toasts.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.toasts)
}

// Pending returns the number of expiry timers that have not fired yet.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.timers)
}

// Active reports whether the scope still accepts toasts.
func (n *Notifier) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.closed
}

// Close stops every pending timer and clears the list. It is idempotent.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	hadToasts := len(n.toasts) > 0
	n.toasts = nil
	n.mu.Unlock()

	if hadToasts {
		n.publish()
	}
}

// Subscribe registers fn to receive the list after every change. Calls are
// never concurrent and the last call always carries the current list;
// lists superseded while a call is running are skipped.
func (n *Notifier) Subscribe(fn func([]Toast)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	n.subMu.Lock()
	n.nextSub++
	id := n.nextSub
	n.subs = append(n.subs, listener{id: id, fn: fn})
	n.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.subMu.Lock()
			defer n.subMu.Unlock()
			for i, l := range n.subs {
				if l.id == id {
					n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// publish delivers the current list. If another goroutine is already
// delivering, it marks the list dirty and returns; that goroutine delivers
// again before it stops, so subscribers never end on a stale list.
func (n *Notifier) publish() {
	n.mu.Lock()
	n.dirty = true
	if n.publishing {
		n.mu.Unlock()
		return
	}
	n.publishing = true

	finished := false
	defer func() {
		if !finished {
			// A subscriber panicked; let the next change publish.
			n.mu.Lock()
			n.publishing = false
			n.mu.Unlock()
		}
	}()

	for {
		if !n.dirty {
			n.publishing = false
			finished = true
			n.mu.Unlock()
			return
		}
		n.dirty = false
		snap := n.snapshotLocked()
		n.mu.Unlock()

		n.subMu.RLock()
		subs := make([]listener, len(n.subs))
		copy(subs, n.subs)
		n.subMu.RUnlock()

		for _, l := range subs {
			l.fn(snap)
		}
		n.mu.Lock()
	}
}
