// Package httpserver provides a minimal REST gateway for the enrichment
// queue: batch submission (blocking and async), status reads, waits,
// cancellation, and the recent-batches listing.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := httpserver.New(rt)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
