// Package vectormath holds the pure numeric core of the matching subsystem:
// cosine similarity between profile embeddings and the single similarity to
// match-percentage curve used by every caller.
package vectormath

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned when vectors are empty or of unequal length.
// Callers must propagate it, never default it to a score.
var ErrInvalidVector = errors.New("invalid vector")

// ScoreUngrounded marks an entity that has no embedding yet. It ranks lowest
// but is not an error and must stay distinct from a genuine "0%".
const ScoreUngrounded = "n/a"

// Embedding is a profile fingerprint produced by the upstream embedding
// process. The zero value is ungrounded (no embedding computed yet), which
// forces every consumer to branch on Grounded instead of nil-checking slices.
type Embedding struct {
	values []float64
}

// NewEmbedding wraps the provided values. An empty slice yields an ungrounded
// embedding.
func NewEmbedding(values []float64) Embedding {
	if len(values) == 0 {
		return Embedding{}
	}
	copied := make([]float64, len(values))
	copy(copied, values)
	return Embedding{values: copied}
}

// Grounded reports whether an embedding has been computed for the owner.
func (e Embedding) Grounded() bool { return len(e.values) > 0 }

// Dim returns the embedding dimensionality, 0 when ungrounded.
func (e Embedding) Dim() int { return len(e.values) }

// Values returns a copy of the underlying vector.
func (e Embedding) Values() []float64 {
	out := make([]float64, len(e.values))
	copy(out, e.values)
	return out
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|) for two grounded embeddings
// of equal dimensionality. A zero-magnitude embedding yields 0.0 rather than a
// division fault or a false maximal score. The result lies in [-1, 1].
func CosineSimilarity(a, b Embedding) (float64, error) {
	if !a.Grounded() || !b.Grounded() {
		return 0, fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	if a.Dim() != b.Dim() {
		return 0, fmt.Errorf("%w: dimensionality mismatch (%d vs %d)", ErrInvalidVector, a.Dim(), b.Dim())
	}

	var dot, normA, normB float64
	for i := range a.values {
		dot += a.values[i] * b.values[i]
		normA += a.values[i] * a.values[i]
		normB += b.values[i] * b.values[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Guard against float drift pushing the result out of range.
	return math.Max(-1, math.Min(1, sim)), nil
}

// MatchPercent maps a similarity onto an integer percent. The curve is
// round(clamp(s, 0, 1) * 100): identical vectors map to 100, orthogonal and
// all negative similarity to 0. Monotone non-decreasing over [-1, 1].
func MatchPercent(similarity float64) int {
	clamped := math.Max(0, math.Min(1, similarity))
	return int(math.Round(clamped * 100))
}

// MatchPercentage renders MatchPercent as the user-facing label, e.g. "87%".
func MatchPercentage(similarity float64) string {
	return fmt.Sprintf("%d%%", MatchPercent(similarity))
}

// MatchScores computes a percentage label per candidate id against the
// reference embedding. Candidates without an embedding, or every candidate
// when the reference itself is ungrounded, map to ScoreUngrounded. Exactly one
// entry per candidate id. Dimensionality mismatches propagate as errors.
func MatchScores(reference Embedding, candidates map[string]Embedding) (map[string]string, error) {
	scores := make(map[string]string, len(candidates))
	for id, candidate := range candidates {
		if !reference.Grounded() || !candidate.Grounded() {
			scores[id] = ScoreUngrounded
			continue
		}
		sim, err := CosineSimilarity(reference, candidate)
		if err != nil {
			return nil, fmt.Errorf("scoring candidate %s: %w", id, err)
		}
		scores[id] = MatchPercentage(sim)
	}
	return scores, nil
}
