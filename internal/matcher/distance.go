package matcher

import (
	"fmt"
	"math"
	"strings"

	"github.com/kozaktomas/gatekeeper/internal/identity"
)

// DistanceFunc compares two descriptors. 0 means identical.
type DistanceFunc func(a, b identity.Descriptor) float64

// Supported metric names.
const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
)

// EuclideanDistance is the L2 distance between two vectors. This is the scale
// dlib-style face descriptors are tuned for (0.6 typical, 0.5 strict).
// Vectors of different length or empty vectors are infinitely far apart.
func EuclideanDistance(a, b identity.Descriptor) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b identity.Descriptor) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(similarity) {
		return 2.0 // overflowed or non-finite input
	}
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// ParseMetric maps a metric name to its distance function. An empty name
// selects the euclidean metric.
func ParseMetric(name string) (DistanceFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricEuclidean:
		return EuclideanDistance, nil
	case MetricCosine:
		return CosineDistance, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q (expected %s or %s)", name, MetricEuclidean, MetricCosine)
	}
}
