package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DefaultMaxBodySize limits request bodies, compressed or not.
const DefaultMaxBodySize = 20 << 20

// Decode reads the events carried by r.
func Decode(r *http.Request, maxBody int64) ([]map[string]any, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if int64(len(body)) > maxBody {
		return nil, ErrBodyTooLarge
	}

	compression := r.URL.Query().Get("compression")
	if compression == "" {
		compression = r.Header.Get("Content-Encoding")
	}

	var js []byte
	switch {
	case compression == "gzip-js" || compression == "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		defer zr.Close()
		js, err = io.ReadAll(io.LimitReader(zr, maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if int64(len(js)) > maxBody {
			return nil, ErrBodyTooLarge
		}

	case isForm(r.Header.Get("Content-Type")) || bytes.HasPrefix(body, []byte("data=")):
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		data := form.Get("data")
		if compression == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			}
			data = string(decoded)
		}
		js = []byte(data)

	default:
		js = body
	}

	return parseEvents(js)
}

func isForm(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/x-www-form-urlencoded"
}

func parseEvents(js []byte) ([]map[string]any, error) {
	js = bytes.TrimSpace(js)
	if len(js) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	switch t := v.(type) {
	case map[string]any:
		if batch, ok := t["batch"].([]any); ok {
			return objects(batch)
		}
		return []map[string]any{t}, nil
	case []any:
		return objects(t)
	}
	return nil, fmt.Errorf("%w: expected an object or an array", ErrInvalidPayload)
}

func objects(items []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrInvalidPayload, i)
		}
		out = append(out, obj)
	}
	return out, nil
}

// eventName is a logging helper.
func eventName(e map[string]any) string {
	name, _ := e["event"].(string)
	return strings.TrimSpace(name)
}

func isBadRequest(err error) bool {
	return errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrBodyTooLarge)
}
