package identity_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

func TestCookieName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{"phc_abc123", "ph_phc_abc123_posthog"},
		{"a+b/c=", "ph_aPLbSLcEQ_posthog"},
		{"++//==", "ph_PLPLSLSLEQEQ_posthog"},
		{"", "ph__posthog"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identity.CookieName(tt.key), tt.key)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	identified := `{"distinct_id":"user@example.com","$user_state":"identified","$sesid":[1700000000000,"s-1",1699999000000],"$device_id":"dev-1"}`

	tests := []struct {
		name   string
		raw    string
		want   identity.State
		wantOK bool
	}{
		{
			name:   "identified json",
			raw:    identified,
			want:   identity.State{DistinctID: "user@example.com", IsIdentified: true, SessionID: "s-1", DeviceID: "dev-1"},
			wantOK: true,
		},
		{
			name:   "percent encoded",
			raw:    url.PathEscape(identified),
			want:   identity.State{DistinctID: "user@example.com", IsIdentified: true, SessionID: "s-1", DeviceID: "dev-1"},
			wantOK: true,
		},
		{
			name:   "anonymous without session",
			raw:    `{"distinct_id":"anon"}`,
			want:   identity.State{DistinctID: "anon"},
			wantOK: true,
		},
		{
			name:   "legacy two element session",
			raw:    `{"distinct_id":"a","$sesid":[5,"legacy"]}`,
			want:   identity.State{DistinctID: "a", SessionID: "legacy"},
			wantOK: true,
		},
		{
			name:   "broken session tuple keeps identity",
			raw:    `{"distinct_id":"a","$sesid":"nope"}`,
			want:   identity.State{DistinctID: "a"},
			wantOK: true,
		},
		{name: "empty", raw: ""},
		{name: "garbage", raw: "not-json"},
		{name: "bad escape", raw: "%zz"},
		{name: "missing distinct id", raw: `{"$device_id":"d"}`},
		{name: "json array", raw: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := identity.Parse(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerializeAnonymous(t *testing.T) {
	t.Parallel()

	id := uuidv7.New()
	raw := identity.SerializeAnonymous(id)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, id, decoded[identity.KeyDistinctID])
	assert.Equal(t, id, decoded[identity.KeyDeviceID])
	assert.Equal(t, identity.UserStateAnonymous, decoded[identity.KeyUserState])

	tuple, ok := identity.DecodeSessionTuple(decoded[identity.KeySessionID])
	require.True(t, ok)
	assert.Equal(t, tuple.LastActivityMs, tuple.StartMs)
	assert.Positive(t, tuple.StartMs)

	_, err := uuidv7.TimestampMs(tuple.SessionID)
	assert.NoError(t, err, "session id must be a v7 uuid")

	state, ok := identity.Parse(raw)
	require.True(t, ok)
	assert.False(t, state.IsIdentified)
	assert.Equal(t, tuple.SessionID, state.SessionID)
}

func TestSerializeAnonymous_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("parse returns the serialized id", prop.ForAll(
		func(id string) bool {
			raw := identity.SerializeAnonymous(id)
			for _, candidate := range []string{raw, url.PathEscape(raw)} {
				state, ok := identity.Parse(candidate)
				if !ok || state.DistinctID != id || state.DeviceID != id || state.IsIdentified {
					return false
				}
			}
			return true
		},
		gen.AnyString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}

func TestSessionTuple_JSON(t *testing.T) {
	t.Parallel()

	in := identity.SessionTuple{LastActivityMs: 10, SessionID: "s", StartMs: 5}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `[10,"s",5]`, string(data))

	var out identity.SessionTuple
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &out))
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &out))
}

func TestDecodeSessionTuple(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     any
		want   identity.SessionTuple
		wantOK bool
	}{
		{"tuple", identity.SessionTuple{LastActivityMs: 1, SessionID: "a", StartMs: 1}, identity.SessionTuple{LastActivityMs: 1, SessionID: "a", StartMs: 1}, true},
		{"decoded json", []any{float64(3), "b", float64(2)}, identity.SessionTuple{LastActivityMs: 3, SessionID: "b", StartMs: 2}, true},
		{"legacy", []any{float64(7), "c"}, identity.SessionTuple{LastActivityMs: 7, SessionID: "c", StartMs: 7}, true},
		{"nulls", []any{nil, nil, nil}, identity.SessionTuple{}, true},
		{"wrong types", []any{"x", "c", 1}, identity.SessionTuple{}, false},
		{"too short", []any{float64(1)}, identity.SessionTuple{}, false},
		{"not a tuple", "abc", identity.SessionTuple{}, false},
		{"nil", nil, identity.SessionTuple{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := identity.DecodeSessionTuple(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
