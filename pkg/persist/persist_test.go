package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/campusdesk/internal/errors"
	"github.com/vango-dev/campusdesk/pkg/store"
)

type profile struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

type roster struct {
	Items []string `json:"items"`
}

func profileReducer() store.Reducer {
	return store.Slice(profile{}, func(s profile, a store.Action) profile {
		if a.Type == "auth/login" {
			s.Name, _ = a.Payload.(string)
			s.Token = "t-" + s.Name
		}
		return s
	})
}

func rosterReducer() store.Reducer {
	return store.Slice(roster{}, func(s roster, a store.Action) roster {
		if a.Type == "students/added" {
			name, _ := a.Payload.(string)
			s.Items = append(append([]string(nil), s.Items...), name)
		}
		return s
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPersistedStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Configure(store.Options{
		Reducers: map[string]store.Reducer{
			"auth":     Reducer[profile]("auth", profileReducer()),
			"students": Reducer[roster]("students", rosterReducer()),
			"scratch":  rosterReducer(),
		},
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestIgnoredActionsMatchStoreDefaults(t *testing.T) {
	if len(IgnoredActions) != 2 || IgnoredActions[0] != "persist/PERSIST" || IgnoredActions[1] != "persist/REHYDRATE" {
		t.Fatalf("IgnoredActions = %v", IgnoredActions)
	}
	if len(store.DefaultIgnoredActions) != len(IgnoredActions) {
		t.Fatalf("store defaults = %v", store.DefaultIgnoredActions)
	}
	for i := range IgnoredActions {
		if store.DefaultIgnoredActions[i] != IgnoredActions[i] {
			t.Fatalf("store defaults = %v, want %v", store.DefaultIgnoredActions, IgnoredActions)
		}
	}
}

func TestPersistor_SaveAndRehydrate(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{Key: "root", Version: 1}, quietLogger())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := p.Registered(); len(got) != 2 || got[0] != "auth" || got[1] != "students" {
		t.Errorf("Registered() = %v", got)
	}
	if st.SerializableViolations() != 0 {
		t.Errorf("persist actions triggered %d serializability violations", st.SerializableViolations())
	}

	st.Dispatch(store.Action{Type: "auth/login", Payload: "ada"})
	st.Dispatch(store.Action{Type: "students/added", Payload: "grace"})
	st.Dispatch(store.Action{Type: "students/added", Payload: "linus"})
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// A fresh process with the same storage.
	st2 := newPersistedStore(t)
	p2 := NewPersistor(st2, storage, Config{Key: "root", Version: 1}, quietLogger())
	if err := p2.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p2.Stop(ctx)

	state := st2.GetState()
	auth, _ := store.Select[profile](state, "auth")
	if auth.Name != "ada" || auth.Token != "t-ada" {
		t.Errorf("auth = %+v", auth)
	}
	students, _ := store.Select[roster](state, "students")
	if len(students.Items) != 2 || students.Items[1] != "linus" {
		t.Errorf("students = %+v", students)
	}
	scratch, _ := store.Select[roster](state, "scratch")
	if len(scratch.Items) != 0 {
		t.Errorf("unwrapped slice was rehydrated: %+v", scratch)
	}
}

func TestPersistor_Whitelist(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{Whitelist: []string{"auth"}}, quietLogger())
	p.Start(ctx)
	st.Dispatch(store.Action{Type: "auth/login", Payload: "ada"})
	st.Dispatch(store.Action{Type: "students/added", Payload: "grace"})
	p.Stop(ctx)

	_, _, slices, err := ReadSnapshot(ctx, storage, "root")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := slices["auth"]; !ok {
		t.Error("auth not persisted")
	}
	if _, ok := slices["students"]; ok {
		t.Error("students persisted despite whitelist")
	}
}

func TestPersistor_ThrottleZeroWritesOnEveryChange(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{Throttle: 0}, quietLogger())
	p.Start(ctx)
	defer p.Stop(ctx)

	st.Dispatch(store.Action{Type: "students/added", Payload: "grace"})

	_, savedAt, slices, err := ReadSnapshot(ctx, storage, "root")
	if err != nil {
		t.Fatal(err)
	}
	if savedAt.IsZero() {
		t.Error("savedAt not stamped")
	}
	var r roster
	if err := json.Unmarshal(slices["students"], &r); err != nil || len(r.Items) != 1 {
		t.Errorf("students = %s, %v", slices["students"], err)
	}
}

// stallingStorage blocks the first Save after arm until release is closed.
type stallingStorage struct {
	*MemoryStorage
	once    sync.Once
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStorage) Save(ctx context.Context, key string, data []byte) error {
	select {
	case <-s.armed:
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	default:
	}
	return s.MemoryStorage.Save(ctx, key, data)
}

func TestPersistor_SlowWriteIsNotOverwrittenByOlderState(t *testing.T) {
	ctx := context.Background()
	storage := &stallingStorage{
		MemoryStorage: NewMemoryStorage(),
		armed:         make(chan struct{}),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{Throttle: 0}, quietLogger())
	p.Start(ctx)
	defer p.Stop(ctx)

	close(storage.armed)
	first := make(chan struct{})
	go func() {
		st.Dispatch(store.Action{Type: "students/added", Payload: "grace"})
		close(first)
	}()
	<-storage.entered

	second := make(chan struct{})
	go func() {
		st.Dispatch(store.Action{Type: "students/added", Payload: "ada"})
		close(second)
	}()
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked behind a slow write")
	}
	close(storage.release)
	<-first

	_, _, slices, err := ReadSnapshot(ctx, storage, "root")
	if err != nil {
		t.Fatal(err)
	}
	var r roster
	json.Unmarshal(slices["students"], &r)
	if len(r.Items) != 2 {
		t.Errorf("stored students = %s, want both", slices["students"])
	}
}

func TestPersistor_ConcurrentDispatchStoresFinalState(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{Throttle: 0}, quietLogger())
	p.Start(ctx)
	defer p.Stop(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				st.Dispatch(store.Action{Type: "students/added", Payload: fmt.Sprintf("s%d-%d", i, j)})
			}
		}(i)
	}
	wg.Wait()

	_, _, slices, err := ReadSnapshot(ctx, storage, "root")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := json.Marshal(st.GetState()["students"])
	if string(slices["students"]) != string(want) {
		t.Errorf("stored students differ from GetState():\nstored %s\nstate  %s", slices["students"], want)
	}
}

func TestPersistor_ThrottledWrite(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{Throttle: 20 * time.Millisecond}, quietLogger())
	p.Start(ctx)
	defer p.Stop(ctx)

	st.Dispatch(store.Action{Type: "students/added", Payload: "grace"})
	if data, _ := storage.Load(ctx, "root"); data != nil {
		t.Fatal("throttled write happened synchronously")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if data, _ := storage.Load(ctx, "root"); data != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("throttled write never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPersistor_CorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	storage.Save(ctx, "root", []byte("{not json"))

	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{}, quietLogger())
	err := p.Start(ctx)
	if !errors.HasCode(err, "E022") {
		t.Fatalf("Start() error = %v, want E022", err)
	}
	defer p.Stop(ctx)

	// The store still works with initial state.
	auth, _ := store.Select[profile](st.GetState(), "auth")
	if auth != (profile{}) {
		t.Errorf("auth = %+v", auth)
	}
	if st.SerializableViolations() != 0 {
		t.Errorf("rehydrate with error payload triggered a violation")
	}
}

type failingStorage struct {
	*MemoryStorage
}

func (failingStorage) Load(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("disk on fire")
}

func TestPersistor_LoadFailure(t *testing.T) {
	st := newPersistedStore(t)
	p := NewPersistor(st, failingStorage{NewMemoryStorage()}, Config{}, quietLogger())
	defer p.Stop(context.Background())
	if err := p.Start(context.Background()); !errors.HasCode(err, "E020") {
		t.Fatalf("Start() error = %v, want E020", err)
	}
}

func TestPersistor_VersionMismatch(t *testing.T) {
	ctx := context.Background()
	v1 := func() *MemoryStorage {
		storage := NewMemoryStorage()
		storage.Save(ctx, "root", []byte(`{"version":1,"slices":{"auth":{"name":"old"}}}`))
		return storage
	}

	t.Run("discarded without migrate", func(t *testing.T) {
		storage := v1()
		st := newPersistedStore(t)
		p := NewPersistor(st, storage, Config{Version: 2, Throttle: -1}, quietLogger())
		if err := p.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer p.Stop(ctx)
		auth, _ := store.Select[profile](st.GetState(), "auth")
		if auth.Name != "" {
			t.Errorf("auth = %+v", auth)
		}
	})

	t.Run("migrated", func(t *testing.T) {
		storage := v1()
		st := newPersistedStore(t)
		p := NewPersistor(st, storage, Config{
			Version:  2,
			Throttle: -1,
			Migrate: func(version int, slices map[string]json.RawMessage) (map[string]json.RawMessage, error) {
				if version != 1 {
					return nil, fmt.Errorf("unexpected version %d", version)
				}
				slices["auth"] = json.RawMessage(`{"name":"migrated"}`)
				return slices, nil
			},
		}, quietLogger())
		if err := p.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer p.Stop(ctx)
		auth, _ := store.Select[profile](st.GetState(), "auth")
		if auth.Name != "migrated" {
			t.Errorf("auth = %+v", auth)
		}
	})
}

func TestPersistor_FlushAndPurge(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	st := newPersistedStore(t)
	p := NewPersistor(st, storage, Config{Throttle: time.Hour}, quietLogger())
	p.Start(ctx)
	defer p.Stop(ctx)

	st.Dispatch(store.Action{Type: "auth/login", Payload: "ada"})
	if data, _ := storage.Load(ctx, "root"); data != nil {
		t.Fatal("write happened before Flush")
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if data, _ := storage.Load(ctx, "root"); data == nil {
		t.Fatal("Flush did not write")
	}

	if err := p.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if data, _ := storage.Load(ctx, "root"); data != nil {
		t.Fatal("Purge left data behind")
	}
	auth, _ := store.Select[profile](st.GetState(), "auth")
	if auth.Name != "ada" {
		t.Errorf("Purge changed in-memory state: %+v", auth)
	}
}

func TestReducer_IgnoresForeignPayloads(t *testing.T) {
	r := Reducer[profile]("auth", profileReducer())
	initial := r(nil, store.Action{Type: store.InitAction})

	got := r(initial, store.Action{Type: Rehydrate, Payload: "not a payload"})
	if got != initial {
		t.Errorf("got %+v", got)
	}

	got = r(initial, store.Action{Type: Rehydrate, Payload: RehydratePayload{
		State: map[string]json.RawMessage{"auth": json.RawMessage(`{"name":`)},
	}})
	if got != initial {
		t.Errorf("invalid JSON changed state: %+v", got)
	}

	got = r(profile{Name: "keep", Token: "tok"}, store.Action{Type: Rehydrate, Payload: RehydratePayload{
		State: map[string]json.RawMessage{"auth": json.RawMessage(`{"name":"new"}`)},
	}})
	if p := got.(profile); p.Name != "new" || p.Token != "tok" {
		t.Errorf("merge = %+v", p)
	}

	got = r(initial, store.Action{Type: Rehydrate, Payload: RehydratePayload{
		Err:   fmt.Errorf("x"),
		State: map[string]json.RawMessage{"auth": json.RawMessage(`{"name":"new"}`)},
	}})
	if got != initial {
		t.Errorf("payload with Err applied: %+v", got)
	}
}
