// Package candidate defines the value types that flow through the discovery
// pipeline: retrieval candidates, expanded queries, ranking configuration,
// and final ranked results.
//
// All types are request-scoped value objects. They carry no references to
// external services and are never mutated after validation; every pipeline
// stage consumes a slice of candidates and produces a new one.
package candidate
