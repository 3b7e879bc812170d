// Package persist saves store slices to durable storage and restores them
// at startup.
//
// The persistor talks to the store only through actions:
//
//   - persist/PERSIST is dispatched first. Its payload carries a Register
//     callback that every slice wrapped with persist.Reducer calls with its
//     key, so the persistor knows which slices can be rehydrated.
//   - persist/REHYDRATE carries the decoded snapshot (or the load error).
//     Wrapped reducers replace their state with the stored value.
//
// Both payloads hold functions or errors, which is why the store's
// serializability guard ignores exactly these two action types.
//
//	p := persist.NewPersistor(st, persist.NewFileStorage("var/state"), persist.Config{
//	    Key:       "root",
//	    Whitelist: []string{"auth", "students"},
//	    Throttle:  time.Second,
//	}, logger)
//	if err := p.Start(ctx); err != nil {
//	    logger.Warn("starting without persisted state", "error", err)
//	}
//	defer p.Stop(context.Background())
//
// # Storage Backends
//
//   - MemoryStorage: process memory, for tests and development
//   - FileStorage: one JSON file per key, written via temp file + rename
//   - SQLStorage: any database/sql driver; OpenSQLite uses modernc.org/sqlite
//   - S3Storage: an S3 bucket via aws-sdk-go-v2
//
// Every backend replaces a snapshot atomically, so a process killed mid-write
// leaves the previous snapshot intact.
package persist
