// Package queue batches outbound requests and flushes them on a timer.
//
// A RequestQueue starts paused: requests are buffered but nothing is sent
// until Enable is called, so no network traffic happens before the rest of
// the SDK is ready. Once enabled, the first Enqueue arms a flush timer
// (250ms..5s, 3s by default). On flush, pending requests are grouped by
// batch key, or by URL when they have none, into one request per group whose
// payload is the ordered batch of the original events. Each event's
// "timestamp" is replaced by "offset", the milliseconds between the event
// and the flush, so the server can recover event time despite the delay.
//
// Unload is the synchronous last-chance flush for shutdown: every pending
// group is handed to the send function with the beacon transport, analytics
// requests (paths starting with /e) first.
//
//	q := queue.New(func(req transport.Request) {
//		retries.Send(ctx, req)
//	}, queue.WithFlushInterval(time.Second))
//	q.Enable()
//	q.Enqueue(transport.Request{URL: host + "/e/", BatchKey: "events", Data: transport.Single(event)})
//	defer q.Unload()
//
// Run adapts the queue to errgroup-style lifecycles:
//
//	g.Go(q.Run(ctx))
//
// The queue never fails: send errors and panics belong to the send function
// and are recovered and logged here.
package queue
