// Package embedder converts text into fixed-dimension dense vectors via a
// pluggable provider. The engine in front of the provider adds a content-hash
// LRU cache, exponential-backoff retries, and a semaphore that bounds the
// number of provider batches in flight.
package embedder
