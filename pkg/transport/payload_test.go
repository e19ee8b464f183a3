package transport_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/url"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/phkit/pkg/transport"
)

func decodeForm(t *testing.T, body []byte) string {
	t.Helper()
	values, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	return values.Get("data")
}

func TestPayload_Encode(t *testing.T) {
	t.Parallel()

	batch := transport.Batch(
		transport.Event{"event": "a", "properties": map[string]any{"n": 1.0}},
		transport.Event{"event": "b & c"},
	)
	wantJSON := `[{"event":"a","properties":{"n":1}},{"event":"b & c"}]`

	t.Run("form", func(t *testing.T) {
		body, err := batch.Encode(transport.CompressionNone)
		require.NoError(t, err)
		assert.Equal(t, transport.ContentTypeForm, body.ContentType)
		assert.Empty(t, body.Query)
		assert.True(t, bytes.HasPrefix(body.Data, []byte("data=")))
		assert.JSONEq(t, wantJSON, decodeForm(t, body.Data))
	})

	t.Run("base64", func(t *testing.T) {
		body, err := batch.Encode(transport.CompressionBase64)
		require.NoError(t, err)
		assert.Equal(t, transport.ContentTypeForm, body.ContentType)
		assert.Equal(t, "base64", body.Query.Get("compression"))

		decoded, err := base64.StdEncoding.DecodeString(decodeForm(t, body.Data))
		require.NoError(t, err)
		assert.JSONEq(t, wantJSON, string(decoded))
	})

	t.Run("gzip-js", func(t *testing.T) {
		body, err := batch.Encode(transport.CompressionGzipJS)
		require.NoError(t, err)
		assert.Equal(t, transport.ContentTypePlain, body.ContentType)
		assert.Equal(t, "gzip-js", body.Query.Get("compression"))

		zr, err := gzip.NewReader(bytes.NewReader(body.Data))
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.JSONEq(t, wantJSON, string(plain))
	})

	t.Run("single is an object", func(t *testing.T) {
		body, err := transport.Single(transport.Event{"event": "x"}).Encode(transport.CompressionNone)
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"x"}`, decodeForm(t, body.Data))
	})

	t.Run("raw ignores compression", func(t *testing.T) {
		raw := []byte{0x1f, 0x8b, 0x00}
		body, err := transport.Raw(raw).Encode(transport.CompressionGzipJS)
		require.NoError(t, err)
		assert.Equal(t, raw, body.Data)
		assert.Equal(t, transport.ContentTypeRaw, body.ContentType)
		assert.Empty(t, body.Query)
	})

	t.Run("unknown compression", func(t *testing.T) {
		_, err := batch.Encode("lz64")
		assert.ErrorIs(t, err, transport.ErrUnsupportedCompression)
	})
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "base64", "gzip-js"} {
		c, err := transport.ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, transport.Compression(name), c)
	}
	_, err := transport.ParseCompression("brotli")
	assert.ErrorIs(t, err, transport.ErrUnsupportedCompression)
}

func TestPayload_Variants(t *testing.T) {
	t.Parallel()

	var zero transport.Payload
	assert.True(t, zero.IsZero())

	single := transport.Single(transport.Event{"a": 1})
	assert.Equal(t, transport.KindSingle, single.Kind())
	assert.Len(t, single.Events(), 1)
	assert.Nil(t, single.Bytes())

	raw := transport.Raw([]byte("x"))
	assert.Equal(t, transport.KindRaw, raw.Kind())
	assert.Nil(t, raw.Events())
	_, err := json.Marshal(raw)
	assert.Error(t, err)

	empty, err := json.Marshal(transport.Batch())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestPayload_Clone(t *testing.T) {
	t.Parallel()

	orig := transport.Batch(transport.Event{"timestamp": 1})
	clone := orig.Clone()
	delete(clone.Events()[0], "timestamp")
	clone.Events()[0]["offset"] = 5

	assert.Equal(t, transport.Event{"timestamp": 1}, orig.Events()[0])
}

func TestRequest_KeyAndExtendURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "k", transport.Request{URL: "u", BatchKey: "k"}.Key())
	assert.Equal(t, "u", transport.Request{URL: "u"}.Key())

	got := transport.ExtendURL("https://h/e/?ver=1&retry_count=1", url.Values{"retry_count": {"2"}})
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "2", u.Query().Get("retry_count"))
	assert.Equal(t, "1", u.Query().Get("ver"))
	assert.Equal(t, "/e/", u.Path)
}
