// Package confidence scores translated sections from retrieval quality,
// terminology coverage and response stability.
package confidence

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// Weights combines the sub-scores. The three weights are expected to sum to 1.
type Weights struct {
	Retrieval float64 `yaml:"retrieval"`
	Coverage  float64 `yaml:"coverage"`
	Stability float64 `yaml:"stability"`
	// NeutralStability stands in for stability when no repeated calls were made.
	NeutralStability float64 `yaml:"neutral_stability"`
	// DegradedPenalty is subtracted when the section ran with reduced context.
	DegradedPenalty float64 `yaml:"degraded_penalty"`
}

// DefaultWeights favours retrieval quality and terminology coverage equally.
var DefaultWeights = Weights{
	Retrieval:        0.4,
	Coverage:         0.4,
	Stability:        0.2,
	NeutralStability: 0.5,
	DegradedPenalty:  0.1,
}

// Validate rejects negative weights and weights that do not sum to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"retrieval": w.Retrieval, "coverage": w.Coverage, "stability": w.Stability,
		"neutral_stability": w.NeutralStability, "degraded_penalty": w.DegradedPenalty,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("confidence: weight %s must be >= 0, got %v", name, v)
		}
	}
	if sum := w.Retrieval + w.Coverage + w.Stability; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("confidence: weights must sum to 1, got %.3f", sum)
	}
	if w.NeutralStability > 1 {
		return fmt.Errorf("confidence: neutral_stability must be <= 1, got %v", w.NeutralStability)
	}
	return nil
}

// Signals are everything a score depends on.
type Signals struct {
	Examples []domain.TranslationExample
	Terms    []domain.TerminologyEntry
	Output   string
	// Stability is the agreement across repeated calls, nil when none were made.
	Stability *float64
	Degraded  bool
}

// Breakdown exposes the sub-scores behind a score.
type Breakdown struct {
	Retrieval float64
	Coverage  float64
	Stability float64
	Score     float64
}

// Score is Explain(...).Score.
func Score(w Weights, s Signals) float64 {
	return Explain(w, s).Score
}

// Explain computes each sub-score and the weighted, clamped total.
func Explain(w Weights, s Signals) Breakdown {
	b := Breakdown{
		Retrieval: RetrievalQuality(s.Examples),
		Coverage:  Coverage(s.Terms, s.Output),
		Stability: w.NeutralStability,
	}
	if s.Stability != nil {
		b.Stability = clamp(*s.Stability)
	}
	total := w.Retrieval*b.Retrieval + w.Coverage*b.Coverage + w.Stability*b.Stability
	if s.Degraded {
		total -= w.DegradedPenalty
	}
	b.Score = clamp(total)
	return b
}

// RetrievalQuality is the mean similarity of the used examples, 0 if none.
func RetrievalQuality(examples []domain.TranslationExample) float64 {
	if len(examples) == 0 {
		return 0
	}
	var sum float64
	for _, e := range examples {
		sum += clamp(float64(e.Similarity))
	}
	return sum / float64(len(examples))
}

// Coverage is the fraction of terms whose target rendering appears verbatim
// in output, after NFKC normalisation. No terms scores 0.
func Coverage(terms []domain.TerminologyEntry, output string) float64 {
	if len(terms) == 0 {
		return 0
	}
	out := norm.NFKC.String(output)
	hit := 0
	for _, t := range terms {
		target := norm.NFKC.String(t.Target)
		if target != "" && strings.Contains(out, target) {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}

// Agreement is the share of samples identical to output after whitespace
// trimming. It returns nil when there are no samples.
func Agreement(output string, samples []string) *float64 {
	if len(samples) == 0 {
		return nil
	}
	want := strings.TrimSpace(output)
	same := 0
	for _, s := range samples {
		if strings.TrimSpace(s) == want {
			same++
		}
	}
	v := float64(same) / float64(len(samples))
	return &v
}

// Band labels a score for display.
func Band(score float64) string {
	switch {
	case score >= 0.9:
		return "Excellent"
	case score >= 0.7:
		return "Good"
	case score >= 0.5:
		return "Fair"
	default:
		return "Poor"
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
