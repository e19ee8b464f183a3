package identity

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/phkit/pkg/cookie"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

// CookieMaxAge is the lifetime of a seeded identity cookie, in seconds.
const CookieMaxAge = 31536000

type middlewareConfig struct {
	cookies *cookie.Manager
	newID   uuidv7.Generator
	log     *slog.Logger
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithCookieManager overrides the cookie manager, e.g. to set a Domain.
func WithCookieManager(m *cookie.Manager) MiddlewareOption {
	return func(c *middlewareConfig) {
		if m != nil {
			c.cookies = m
		}
	}
}

// WithIDGenerator overrides the distinct id generator for seeded visitors.
func WithIDGenerator(gen uuidv7.Generator) MiddlewareOption {
	return func(c *middlewareConfig) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithLogger sets the middleware logger.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// Middleware reads the persistence cookie for apiKey and stores the parsed
// State in the request context. Visitors without a valid cookie get a new
// anonymous one, which downstream handlers see on the request as well.
func Middleware(apiKey string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		cookies: cookie.New(cookie.WithMaxAge(CookieMaxAge), cookie.WithHTTPOnly(false)),
		newID:   uuidv7.New,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	name := CookieName(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, err := cfg.cookies.Get(r, name); err == nil {
				if state, ok := Parse(raw); ok {
					next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
					return
				}
				cfg.log.DebugContext(r.Context(), "replacing malformed identity cookie",
					logger.Component("identity"))
			}

			value := SerializeAnonymous(cfg.newID())
			state, _ := Parse(value)

			seeded := cfg.cookies.Cookie(name, value)
			http.SetCookie(w, seeded)

			r = r.WithContext(WithState(r.Context(), state))
			replaceRequestCookie(r, &http.Cookie{Name: name, Value: seeded.Value})

			next.ServeHTTP(w, r)
		})
	}
}

// FromRequest returns the identity for r: from the context when Middleware
// ran, otherwise parsed from the cookie.
func FromRequest(r *http.Request, apiKey string) (State, bool) {
	if state, ok := FromContext(r.Context()); ok {
		return state, true
	}
	c, err := r.Cookie(CookieName(apiKey))
	if err != nil {
		return State{}, false
	}
	raw, err := cookie.Decode(c.Value)
	if err != nil {
		return State{}, false
	}
	return Parse(raw)
}

// replaceRequestCookie swaps any cookie named like c on r for c. r must be
// a shallow copy owned by the caller; its header map is cloned first.
func replaceRequestCookie(r *http.Request, c *http.Cookie) {
	existing := r.Cookies()
	r.Header = r.Header.Clone()
	r.Header.Del("Cookie")
	for _, old := range existing {
		if old.Name != c.Name {
			r.AddCookie(old)
		}
	}
	r.AddCookie(c)
}
