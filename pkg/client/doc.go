// Package client wires the SDK together: persisted identity, session ids,
// batching, delivery with retries and feature flags behind one Client.
//
// Basic usage:
//
//	cfg, err := client.ConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	c, err := client.New(cfg, client.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.Capture("signed_up", map[string]any{"plan": "pro"})
//	c.Identify("user-42", map[string]any{"email": "a@example.com"})
//
// Every captured event carries the current distinct id, device id, session
// and window ids. Events are batched by the request queue and delivered to
// the /e/ endpoint; failures are retried with backoff. Unload flushes
// everything synchronously and is what a shutdown hook should call.
//
// Server-side code that handles many visitors uses a Scoped client per
// request instead, with identity taken from the visitor's cookie:
//
//	if s, ok := c.ForRequest(r); ok {
//		s.Capture("$pageview", map[string]any{"$current_url": r.URL.String()})
//	}
package client
