package cookie

import (
	"errors"
	"net/http"
	"net/url"
	"time"
)

type Manager struct {
	defaults Options
}

// New creates a Manager. Defaults are Path "/" and SameSite Lax; cookies
// are readable from scripts unless WithHTTPOnly(true) is given.
func New(opts ...Option) *Manager {
	defaults := Options{
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{defaults: applyOptions(defaults, opts)}
}

// Cookie builds the cookie Set would write, without writing it.
func (m *Manager) Cookie(name, value string, opts ...Option) *http.Cookie {
	options := applyOptions(m.defaults, opts)
	return &http.Cookie{
		Name:     name,
		Value:    url.PathEscape(value),
		Path:     options.Path,
		Domain:   options.Domain,
		MaxAge:   options.MaxAge,
		Secure:   options.Secure,
		HttpOnly: options.HttpOnly,
		SameSite: options.SameSite,
	}
}

func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) {
	http.SetCookie(w, m.Cookie(name, value, opts...))
}

// Get returns the unescaped value of the named cookie.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	return Decode(c.Value)
}

func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     m.defaults.Path,
		Domain:   m.defaults.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: m.defaults.HttpOnly,
		SameSite: m.defaults.SameSite,
		Secure:   m.defaults.Secure,
	})
}

// Decode reverses the escaping applied by Set. Values that were never
// escaped are returned unchanged.
func Decode(raw string) (string, error) {
	v, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidFormat, err)
	}
	return v, nil
}
