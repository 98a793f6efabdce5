//go:build !cgo

// Package embeddings provides local embedding generation for the discovery
// engine's similarity search path.
package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without
// CGO; the ONNX runtime behind fastembed requires it.
var ErrFastEmbedNotAvailable = errors.New("embeddings: fastembed not available (built without cgo)")

// Sentinel errors mirrored from the cgo build so callers can reference them
// regardless of build mode.
var (
	ErrInvalidConfig   = errors.New("embeddings: invalid configuration")
	ErrEmptyInput      = errors.New("embeddings: empty input")
	ErrEmbeddingFailed = errors.New("embeddings: generation failed")
)

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-CGO builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns ErrFastEmbedNotAvailable.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EmbedDocuments returns ErrFastEmbedNotAvailable.
func (p *FastEmbedProvider) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EmbedQuery returns ErrFastEmbedNotAvailable.
func (p *FastEmbedProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

// Dimension returns 0 for the stub.
func (p *FastEmbedProvider) Dimension() int { return 0 }

// Close is a no-op for the stub.
func (p *FastEmbedProvider) Close() error { return nil }
