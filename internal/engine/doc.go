// Package engine orchestrates the discovery pipeline: query expansion,
// concurrent retrieval, fusion, diversity filtering, recency/engagement
// scoring, serendipity injection, and optional reranking.
//
// The engine is stateless per invocation: given the same inputs, external
// responses, and serendipity seed, it produces the same output. It holds no
// mutable state across requests; all collaborators are injected at
// construction.
//
// Degradation policy: expansion and reranking failures degrade to identity
// behavior, retrieval failures degrade per sub-query, and an unavailable
// similarity backend degrades to keyword fallback. Only failures in the
// pure in-memory stages (fusion, filtering, scoring) are fatal — those
// indicate a programming error, not an external condition.
package engine
