// Package encoder turns text into L2-normalized embedding vectors so the
// resonance matcher can score agents with a plain dot product.
package encoder

import (
	"context"
	"math"
)

// Provider is the abstract embedding surface. Both concrete providers are
// HTTP-based and share the retry/backoff httpclient.Client.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Close() error
}

// normalize scales v to unit length in place and returns it. A zero vector
// is returned unchanged rather than dividing by zero.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= norm
	}
	return v
}
