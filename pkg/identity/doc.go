// Package identity bridges visitor identity between server-rendered pages
// and browser SDKs through the persistence cookie.
//
// The cookie is named ph_<sanitized api key>_posthog and holds a JSON
// object. The server reads distinct_id, $user_state, $sesid and $device_id
// from it, and seeds an anonymous identity when none exists so the first
// server-side capture and the first client-side capture agree on the
// visitor.
//
//	r := chi.NewRouter()
//	r.Use(identity.Middleware(apiKey))
//	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
//		state, _ := identity.FromContext(r.Context())
//		_ = state.DistinctID
//	})
package identity
