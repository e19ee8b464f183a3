package storage

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultCookieMaxAge is how long identity cookies live.
const DefaultCookieMaxAge = 365 * 24 * time.Hour

// CookieStore keeps values as cookies in a jar for one site URL.
type CookieStore struct {
	jar            http.CookieJar
	site           *url.URL
	crossSubdomain bool
	secure         bool
	maxAge         time.Duration
}

// CookieOption configures a CookieStore.
type CookieOption func(*CookieStore)

// WithCrossSubdomain scopes cookies to the registrable domain (eTLD+1) so
// every subdomain of the site shares them.
func WithCrossSubdomain(enabled bool) CookieOption {
	return func(s *CookieStore) { s.crossSubdomain = enabled }
}

// WithSecure marks cookies Secure.
func WithSecure(secure bool) CookieOption {
	return func(s *CookieStore) { s.secure = secure }
}

// WithCookieMaxAge sets the cookie lifetime.
func WithCookieMaxAge(d time.Duration) CookieOption {
	return func(s *CookieStore) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// NewCookieJar returns a jar that knows the public suffix list, which is
// required for domain cookies to be accepted.
func NewCookieJar() http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails for non-nil options today.
		return nil
	}
	return jar
}

// NewCookieStore creates a store for site using jar. A nil jar yields a store
// that reports IsSupported false.
func NewCookieStore(jar http.CookieJar, site *url.URL, opts ...CookieOption) *CookieStore {
	s := &CookieStore{
		jar:            jar,
		site:           site,
		crossSubdomain: true,
		maxAge:         DefaultCookieMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Jar returns the underlying cookie jar, for use by an http.Client.
func (s *CookieStore) Jar() http.CookieJar { return s.jar }

// Domain returns the cookie domain attribute used for writes, empty when the
// cookie is host-only.
func (s *CookieStore) Domain() string {
	if !s.crossSubdomain || s.site == nil {
		return ""
	}
	return CookieDomain(s.site.Hostname())
}

// CookieDomain returns ".<eTLD+1>" for host, or "" for hosts that cannot
// carry a domain cookie (IPs, localhost, public suffixes).
func CookieDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return "." + domain
}

func (s *CookieStore) Get(key string) (string, error) {
	if !s.IsSupported() {
		return "", ErrUnsupported
	}
	for _, c := range s.jar.Cookies(s.site) {
		if c.Name != key {
			continue
		}
		v, err := url.QueryUnescape(c.Value)
		if err != nil {
			return c.Value, nil
		}
		return v, nil
	}
	return "", ErrNotFound
}

func (s *CookieStore) Set(key, value string) error {
	if !s.IsSupported() {
		return ErrUnsupported
	}
	s.jar.SetCookies(s.site, []*http.Cookie{{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     "/",
		Domain:   s.Domain(),
		MaxAge:   int(s.maxAge.Seconds()),
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}})
	return nil
}

func (s *CookieStore) Remove(key string) error {
	if !s.IsSupported() {
		return ErrUnsupported
	}
	s.jar.SetCookies(s.site, []*http.Cookie{{
		Name:   key,
		Path:   "/",
		Domain: s.Domain(),
		MaxAge: -1,
	}})
	return nil
}

func (s *CookieStore) IsSupported() bool {
	return s.jar != nil && s.site != nil && s.site.Host != ""
}
