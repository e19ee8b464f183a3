// Package persistence keeps the SDK's persisted property blob: a single JSON
// object stored under one key in a storage.Store.
//
// Every read and write goes through a mutex. Storage and decoding failures
// never reach the caller; they are logged and the blob falls back to empty.
//
//	store := storage.NewMemoryStore()
//	p := persistence.New(store, identity.CookieName(apiKey))
//	p.Register(map[string]any{"distinct_id": id})
//	p.Get("distinct_id") // id
package persistence
