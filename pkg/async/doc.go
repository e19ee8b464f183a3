// Package async provides a generic Future for results that arrive later,
// and the Promise side that completes it exactly once.
//
// A Future is obtained either from NewPromise, where the caller decides when
// and how the result is delivered, or from Async, which runs a function in
// its own goroutine. Consumers wait with Await, block with a timeout using
// AwaitWithTimeout, select on Done, or poll with IsComplete.
//
//	f, resolve := async.NewPromise[int]()
//	go func() { resolve(42, nil) }()
//	resolve(7, nil) // only the first call has an effect
//	v, err := f.Await()
//
// The exactly-once guarantee is what callers rely on when a result can be
// produced by more than one path, e.g. a network response racing a shutdown.
package async
