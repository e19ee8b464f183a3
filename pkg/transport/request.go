package transport

import (
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Mode selects how a request leaves the process.
type Mode string

const (
	// ModeHTTP waits for the response.
	ModeHTTP Mode = ""
	// ModeBeacon fires and forgets; the request outlives its caller.
	ModeBeacon Mode = "beacon"
)

// Request is one delivery unit.
type Request struct {
	URL         string
	Method      string
	Data        Payload
	Headers     map[string]string
	BatchKey    string
	Transport   Mode
	Compression Compression
	Timeout     time.Duration

	// RetriesPerformedSoFar is maintained by RetryQueue.
	RetriesPerformedSoFar int
}

// Key groups requests for batching: the batch key, or the URL without one.
func (r Request) Key() string {
	if r.BatchKey != "" {
		return r.BatchKey
	}
	return r.URL
}

// Clone returns a copy whose headers and payload can be modified freely.
func (r Request) Clone() Request {
	out := r
	out.Headers = maps.Clone(r.Headers)
	out.Data = r.Data.Clone()
	return out
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodPost
	}
	return r.Method
}

// ExtendURL adds params to rawURL, replacing existing values of the same
// names. Unparseable URLs are returned unchanged.
func ExtendURL(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func withRetryCount(rawURL string, n int) string {
	if n <= 0 {
		return rawURL
	}
	return ExtendURL(rawURL, url.Values{"retry_count": {strconv.Itoa(n)}})
}
