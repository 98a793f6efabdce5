// Package llm provides the client for the external text-understanding
// service used by query expansion and reranking.
//
// The service is an optional enhancement, never a hard dependency: callers
// must treat every error as a signal to fall back, not to fail the request.
// The client itself handles rate limiting, retries with exponential backoff
// for transient failures, and request timeouts.
package llm
