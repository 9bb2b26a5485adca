// Package embedding provides vector embedding generation for semantic search.
// Supports multiple backends: Ollama (local) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"paperdesk/internal/config"
	"paperdesk/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for engines that can verify
// availability before a batch of work is attempted.
type HealthChecker interface {
	// HealthCheck returns nil if the backing service is reachable.
	HealthCheck(ctx context.Context) error
}

// ErrTimedOut reports a health check that exceeded its wall-clock budget.
type ErrTimedOut struct {
	Service string
	Budget  time.Duration
}

func (e *ErrTimedOut) Error() string {
	return fmt.Sprintf("%s health check timed out after %v", e.Service, e.Budget)
}

// CheckHealth runs an engine's health check under an explicit wall-clock
// timeout, converting deadline overruns into a dedicated timed-out error.
func CheckHealth(ctx context.Context, eng Engine, budget time.Duration) error {
	hc, ok := eng.(HealthChecker)
	if !ok {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := hc.HealthCheck(cctx)
	if err != nil && cctx.Err() == context.DeadlineExceeded {
		return &ErrTimedOut{Service: eng.Name(), Budget: budget}
	}
	return err
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	logging.Embedding("creating embedding engine with provider=%s", cfg.Provider)

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}

	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
