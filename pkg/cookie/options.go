package cookie

import "net/http"

// Options are the attributes written with a cookie. The persistence cookie
// is shared with the browser SDK, so callers setting it keep HttpOnly false.
type Options struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// Option adjusts Options for a single Set or Delete call.
type Option func(*Options)

// WithPath scopes the cookie to path; the identity cookie uses "/".
func WithPath(path string) Option {
	return func(o *Options) {
		o.Path = path
	}
}

// WithDomain sets the cookie domain, typically the eTLD+1 of the site so
// every subdomain sees the same distinct id.
func WithDomain(domain string) Option {
	return func(o *Options) {
		o.Domain = domain
	}
}

// WithMaxAge sets Max-Age in seconds. Zero means a session cookie; a
// negative value expires the cookie immediately.
func WithMaxAge(seconds int) Option {
	return func(o *Options) {
		o.MaxAge = seconds
	}
}

// WithSecure restricts the cookie to HTTPS. Sites served over plain HTTP in
// development must leave it off or the browser drops the cookie.
func WithSecure(secure bool) Option {
	return func(o *Options) {
		o.Secure = secure
	}
}

// WithHTTPOnly hides the cookie from scripts. The identity cookie must stay
// readable by the JS snippet, so identity.Middleware passes false.
func WithHTTPOnly(httpOnly bool) Option {
	return func(o *Options) {
		o.HttpOnly = httpOnly
	}
}

// WithSameSite sets the SameSite mode; Lax keeps the identity cookie on
// top-level navigations from other sites.
func WithSameSite(sameSite http.SameSite) Option {
	return func(o *Options) {
		o.SameSite = sameSite
	}
}

func applyOptions(base Options, opts []Option) Options {
	result := base
	for _, opt := range opts {
		opt(&result)
	}
	return result
}
