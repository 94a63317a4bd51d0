// Package mock provides an in-memory vector.Index for tests.
//
// Index keeps records in a map and lets tests replace any method through its
// Func fields to inject failures or latency. Call counters and an in-flight
// high-water mark support assertions about retries and concurrency.
package mock
