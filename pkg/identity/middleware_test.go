package identity_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/phkit/pkg/cookie"
	"github.com/dmitrymomot/phkit/pkg/identity"
)

const apiKey = "phc_test+key/="

func captureState(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, identity.State, identity.State) {
	t.Helper()

	var fromCtx, fromReq identity.State
	handler := identity.Middleware(apiKey, identity.WithIDGenerator(func() string { return "seeded-id" }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ok bool
			fromCtx, ok = identity.FromContext(r.Context())
			require.True(t, ok)

			c, err := r.Cookie(identity.CookieName(apiKey))
			require.NoError(t, err, "cookie must be visible downstream")
			raw, err := cookie.Decode(c.Value)
			require.NoError(t, err)
			fromReq, ok = identity.Parse(raw)
			require.True(t, ok)
		}),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, fromCtx, fromReq
}

func TestMiddleware_SeedsAnonymousVisitor(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "other", Value: "keep"})

	w, fromCtx, fromReq := captureState(t, req)

	assert.Equal(t, "seeded-id", fromCtx.DistinctID)
	assert.Equal(t, "seeded-id", fromCtx.DeviceID)
	assert.False(t, fromCtx.IsIdentified)
	assert.NotEmpty(t, fromCtx.SessionID)
	assert.Equal(t, fromCtx, fromReq)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "ph_phc_testPLkeySLEQ_posthog", c.Name)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, identity.CookieMaxAge, c.MaxAge)
	assert.False(t, c.HttpOnly)

	value, err := url.PathUnescape(c.Value)
	require.NoError(t, err)
	state, ok := identity.Parse(value)
	require.True(t, ok)
	assert.Equal(t, fromCtx, state)

	assert.Equal(t, "keep", mustCookie(t, req, "other"), "original request is untouched")
}

func TestMiddleware_KeepsExistingIdentity(t *testing.T) {
	t.Parallel()

	raw := `{"distinct_id":"user-1","$user_state":"identified","$sesid":[1,"s-1",1]}`
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.CookieName(apiKey), Value: url.PathEscape(raw)})

	w, fromCtx, _ := captureState(t, req)

	assert.Equal(t, identity.State{DistinctID: "user-1", IsIdentified: true, SessionID: "s-1"}, fromCtx)
	assert.Empty(t, w.Result().Cookies(), "no cookie is written for known visitors")
}

func TestMiddleware_ReplacesMalformedCookie(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: identity.CookieName(apiKey), Value: "garbage"})

	w, fromCtx, fromReq := captureState(t, req)

	assert.Equal(t, "seeded-id", fromCtx.DistinctID)
	assert.Equal(t, fromCtx, fromReq)
	assert.Len(t, w.Result().Cookies(), 1)
}

func TestFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := identity.FromRequest(req, apiKey)
	assert.False(t, ok)

	req.AddCookie(&http.Cookie{Name: identity.CookieName(apiKey), Value: url.PathEscape(`{"distinct_id":"d"}`)})
	state, ok := identity.FromRequest(req, apiKey)
	require.True(t, ok)
	assert.Equal(t, "d", state.DistinctID)

	ctxReq := req.WithContext(identity.WithState(req.Context(), identity.State{DistinctID: "ctx"}))
	state, ok = identity.FromRequest(ctxReq, apiKey)
	require.True(t, ok)
	assert.Equal(t, "ctx", state.DistinctID)
}

func mustCookie(t *testing.T, r *http.Request, name string) string {
	t.Helper()
	c, err := r.Cookie(name)
	require.NoError(t, err)
	return c.Value
}
