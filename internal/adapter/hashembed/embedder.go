// Package hashembed is an offline embedder: term frequencies are hashed into
// a fixed number of buckets and L2-normalised. Similar wording yields similar
// vectors, which is enough for local runs and tests without a model server.
package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultDimensions = 384

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

type Embedder struct {
	dim int
}

func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dim: dimensions}
}

func (e *Embedder) Dimension() int { return e.dim }

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		// High bit picks the sign so collisions tend to cancel out.
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(e.dim))] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
