// Package storage provides the key-value backends the SDK persists identity
// and session state into.
//
// All backends implement Store. They mirror the browser storage types the
// analytics SDK was designed around:
//
//   - MemoryStore: process memory. Used as the fallback when nothing else is
//     available and as the tab-scoped ("session storage") store.
//   - FileStore: a JSON file on disk, the local-storage analogue that survives
//     restarts.
//   - CookieStore: cookies in an http.CookieJar for a site URL, with
//     cross-subdomain and secure options. Cookies are what server-side
//     collaborators read.
//   - RedisStore: a shared store for several processes of the same app,
//     the analogue of storage shared between browser tabs.
//   - SplitStore: full state in a primary store, identity subset in cookies.
//
// Missing keys are reported as ErrNotFound. Callers in the capture path log
// other errors and carry on with defaults.
package storage
