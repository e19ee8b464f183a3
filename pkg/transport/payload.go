package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"

	"github.com/klauspost/compress/gzip"
)

// Event is one analytics event or any other JSON object sent to the API.
type Event = map[string]any

// Compression selects how JSON payloads are encoded on the wire.
type Compression string

const (
	CompressionNone   Compression = ""
	CompressionBase64 Compression = "base64"
	CompressionGzipJS Compression = "gzip-js"
)

// ParseCompression validates a configured compression name.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case CompressionNone, CompressionBase64, CompressionGzipJS:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCompression, s)
}

const (
	ContentTypeForm  = "application/x-www-form-urlencoded"
	ContentTypePlain = "text/plain"
	ContentTypeRaw   = "application/octet-stream"
)

// PayloadKind tells which variant a Payload holds.
type PayloadKind uint8

const (
	KindSingle PayloadKind = iota + 1
	KindBatch
	KindRaw
)

func (k PayloadKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindBatch:
		return "batch"
	case KindRaw:
		return "raw"
	}
	return "empty"
}

// Payload is the body of a Request: a single event, an ordered batch of
// events, or raw bytes. The zero value is an empty payload.
type Payload struct {
	kind   PayloadKind
	events []Event
	raw    []byte
}

// Single wraps one event.
func Single(e Event) Payload {
	return Payload{kind: KindSingle, events: []Event{e}}
}

// Batch wraps events in order.
func Batch(events ...Event) Payload {
	return Payload{kind: KindBatch, events: events}
}

// Raw wraps bytes that are sent as they are.
func Raw(b []byte) Payload {
	return Payload{kind: KindRaw, raw: b}
}

func (p Payload) Kind() PayloadKind { return p.kind }

// IsZero reports whether p holds nothing.
func (p Payload) IsZero() bool { return p.kind == 0 }

// Events returns the events of a Single or Batch payload, nil for Raw.
func (p Payload) Events() []Event { return p.events }

// Bytes returns the bytes of a Raw payload, nil otherwise.
func (p Payload) Bytes() []byte { return p.raw }

// Clone copies the payload deep enough that top-level event keys can be
// rewritten without touching the original events.
func (p Payload) Clone() Payload {
	out := Payload{kind: p.kind}
	if p.raw != nil {
		out.raw = bytes.Clone(p.raw)
	}
	if p.events != nil {
		out.events = make([]Event, len(p.events))
		for i, e := range p.events {
			out.events[i] = maps.Clone(e)
		}
	}
	return out
}

// MarshalJSON encodes a Single as an object and a Batch as an array.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case KindSingle:
		return json.Marshal(p.events[0])
	case KindBatch:
		if p.events == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(p.events)
	case KindRaw:
		return nil, fmt.Errorf("raw payloads have no JSON form")
	}
	return []byte("null"), nil
}

// Body is an encoded payload ready to be sent.
type Body struct {
	Data        []byte
	ContentType string
	// Query holds parameters the encoding adds to the URL.
	Query url.Values
}

// Encode renders p for compression. Raw payloads ignore compression.
func (p Payload) Encode(compression Compression) (Body, error) {
	if p.kind == KindRaw {
		return Body{Data: p.raw, ContentType: ContentTypeRaw}, nil
	}

	js, err := json.Marshal(p)
	if err != nil {
		return Body{}, fmt.Errorf("encode payload: %w", err)
	}

	switch compression {
	case CompressionNone:
		return Body{
			Data:        []byte("data=" + url.QueryEscape(string(js))),
			ContentType: ContentTypeForm,
		}, nil

	case CompressionBase64:
		b64 := base64.StdEncoding.EncodeToString(js)
		return Body{
			Data:        []byte("data=" + url.QueryEscape(b64)),
			ContentType: ContentTypeForm,
			Query:       url.Values{"compression": {string(CompressionBase64)}},
		}, nil

	case CompressionGzipJS:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(js); err != nil {
			return Body{}, fmt.Errorf("gzip payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return Body{}, fmt.Errorf("gzip payload: %w", err)
		}
		return Body{
			Data:        buf.Bytes(),
			ContentType: ContentTypePlain,
			Query:       url.Values{"compression": {string(CompressionGzipJS)}},
		}, nil
	}

	return Body{}, fmt.Errorf("%w: %q", ErrUnsupportedCompression, compression)
}
