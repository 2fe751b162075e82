// Package collection owns the lifecycle of one (vector index, keyword
// index) pair per tenant. Isolation is structural: every tenant gets its own
// index instances, so a query can only ever touch the indexes of the
// collection it resolved. Each collection carries the monotonic version
// counter that the semantic cache keys on.
package collection
