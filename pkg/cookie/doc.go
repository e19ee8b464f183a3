// Package cookie reads and writes plain HTTP cookies whose values are
// percent-encoded, the way browser SDKs store JSON blobs in cookies.
//
// The Manager holds default attributes; each call can override them.
//
//	man := cookie.New(cookie.WithMaxAge(31536000), cookie.WithHTTPOnly(false))
//	man.Set(w, "ph_key_posthog", `{"distinct_id":"..."}`)
//	raw, err := man.Get(r, "ph_key_posthog") // unescaped JSON
//
// Values are escaped with url.PathEscape, which matches encodeURIComponent
// closely enough for browser code to decode them, and never produces spaces
// or commas that net/http would quote.
//
// Config can be filled from the environment with pkg/config.
package cookie
