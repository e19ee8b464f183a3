// Package uuidv7 generates time-ordered identifiers for sessions, windows,
// devices and events, and recovers the creation time embedded in them.
package uuidv7

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrInvalid is returned for strings that are not UUIDs.
	ErrInvalid = errors.New("uuidv7.invalid")

	// ErrNotV7 is returned for valid UUIDs of another version.
	ErrNotV7 = errors.New("uuidv7.not_version_7")
)

// Generator produces a new identifier. Components accept one so tests can pin ids.
type Generator func() string

// New returns a new version 7 UUID string.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails when the random source is broken.
		return uuid.NewString()
	}
	return id.String()
}

// TimestampMs returns the unix millisecond timestamp stored in the first
// 48 bits of a version 7 UUID.
func TimestampMs(id string) (int64, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return 0, errors.Join(ErrInvalid, err)
	}
	if parsed.Version() != 7 {
		return 0, ErrNotV7
	}

	var buf [8]byte
	copy(buf[2:], parsed[:6])
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}
