// Package ingest is a small ingestion server that speaks the wire format the
// client sends: events posted as form encoded "data=" JSON, base64 or gzip-js
// bodies, single objects, arrays and {"batch": [...]} envelopes. It exists for
// local development and tests, not as a replacement for a real backend.
//
//	sink := ingest.NewMemorySink()
//	r := ingest.Router(sink, ingest.WithFlags(map[string]any{"beta": true}))
//
//	srv := ingest.NewServer(ingest.Config{Addr: ":8010"}, r)
//	g.Go(func() error { return srv.Run(ctx) })
//
// Routes: POST /e/, /batch/, /i/v0/e/ and /s/ hand decoded events to the
// Sink; POST /flags/ answers with the configured flags; GET /healthz is a
// liveness probe. Trailing slashes are optional.
package ingest
