// Package transport delivers SDK requests to the ingestion API.
//
// A Request carries a Payload, which is one of three shapes: a single event
// object, an ordered batch of events, or raw bytes that are sent untouched.
// Payload.Encode turns it into a request body for the selected compression:
//
//	""        data=<url-escaped JSON>            application/x-www-form-urlencoded
//	"base64"  data=<url-escaped base64(JSON)>    application/x-www-form-urlencoded, ?compression=base64
//	"gzip-js" gzip(JSON)                         text/plain, ?compression=gzip-js
//
// Sender performs one HTTP attempt (Do) or a fire-and-forget attempt that
// outlives the caller (Beacon). RetryQueue wraps a Sender: failures other
// than the terminal statuses 401, 403, 404 and 500 are retried with jittered
// exponential backoff, up to MaxRetries, and every Send resolves its Future
// exactly once.
//
//	sender := transport.NewSender(transport.WithHTTPClient(client))
//	retries := transport.NewRetryQueue(sender)
//	defer retries.Close()
//
//	resp, _ := retries.Send(ctx, transport.Request{
//		URL:  "https://us.i.posthog.com/e/",
//		Data: transport.Batch(events...),
//	}).Await()
//
// In-flight requests and responses per status code are counted through an
// OpenTelemetry meter; the counters never influence delivery.
package transport
