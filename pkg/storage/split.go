package storage

import (
	"encoding/json"
	"errors"
	"slices"
)

// DefaultCookieKeys are the properties mirrored into cookies by SplitStore:
// what a server needs to resolve identity without reading local state.
var DefaultCookieKeys = []string{"distinct_id", "$sesid", "$epp", "$initial_person_info"}

// SplitStore stores JSON object values in primary and a whitelisted subset of
// their top-level keys in cookies. Reads merge both; the primary store wins.
type SplitStore struct {
	primary    Store
	cookies    Store
	cookieKeys []string
}

// NewSplitStore creates a SplitStore. Empty cookieKeys means DefaultCookieKeys.
func NewSplitStore(primary, cookies Store, cookieKeys ...string) *SplitStore {
	if len(cookieKeys) == 0 {
		cookieKeys = DefaultCookieKeys
	}
	return &SplitStore{primary: primary, cookies: cookies, cookieKeys: cookieKeys}
}

func (s *SplitStore) Get(key string) (string, error) {
	merged := make(map[string]json.RawMessage)
	found := false

	if raw, err := s.cookies.Get(key); err == nil {
		var fromCookie map[string]json.RawMessage
		if json.Unmarshal([]byte(raw), &fromCookie) == nil {
			for k, v := range fromCookie {
				merged[k] = v
			}
			found = true
		}
	}

	raw, err := s.primary.Get(key)
	switch {
	case err == nil:
		var fromPrimary map[string]json.RawMessage
		if json.Unmarshal([]byte(raw), &fromPrimary) != nil {
			return raw, nil
		}
		for k, v := range fromPrimary {
			merged[k] = v
		}
		found = true
	case !errors.Is(err, ErrNotFound) && !found:
		return "", err
	}

	if !found {
		return "", ErrNotFound
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (s *SplitStore) Set(key, value string) error {
	if err := s.primary.Set(key, value); err != nil {
		return err
	}

	var props map[string]json.RawMessage
	if json.Unmarshal([]byte(value), &props) != nil {
		return nil
	}

	subset := make(map[string]json.RawMessage)
	for k, v := range props {
		if slices.Contains(s.cookieKeys, k) {
			subset[k] = v
		}
	}
	if len(subset) == 0 {
		return s.cookies.Remove(key)
	}

	out, err := json.Marshal(subset)
	if err != nil {
		return err
	}
	return s.cookies.Set(key, string(out))
}

func (s *SplitStore) Remove(key string) error {
	return errors.Join(s.primary.Remove(key), s.cookies.Remove(key))
}

func (s *SplitStore) IsSupported() bool {
	return s.primary.IsSupported() && s.cookies.IsSupported()
}
