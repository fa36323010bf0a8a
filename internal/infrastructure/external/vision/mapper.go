package vision

import (
	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

// ToAnalysis converts a response into a domain analysis and validates it.
func ToAnalysis(r *Result) (*scan.Analysis, error) {
	if r == nil {
		return nil, shared.NewDomainError("vision", "ToAnalysis", shared.ErrMalformedInput, "empty response")
	}
	if r.Scores.Overall == nil {
		return nil, shared.NewDomainError("vision", "ToAnalysis", shared.ErrMalformedInput, "response has no overall score")
	}

	analysis := &scan.Analysis{
		Scores: scan.Scores{
			Overall:    *r.Scores.Overall,
			Skin:       subScores(r.Scores.Skin),
			Makeup:     subScores(r.Scores.Makeup),
			Eyes:       subScores(r.Scores.Eyes),
			Lips:       subScores(r.Scores.Lips),
			Impression: subScores(r.Scores.Impression),
		},
		Feedback: scan.Feedback{
			Overall:    r.Feedback.Overall,
			Skin:       r.Feedback.Skin,
			Makeup:     r.Feedback.Makeup,
			Eyes:       r.Feedback.Eyes,
			Lips:       r.Feedback.Lips,
			Impression: r.Feedback.Impression,
		},
		Tips: append([]string(nil), r.Tips...),
	}

	if err := analysis.Scores.Validate(); err != nil {
		return nil, err
	}
	return analysis, nil
}

// subScores keeps nil for an absent domain.
func subScores(m map[string]float64) scan.SubScores {
	if m == nil {
		return nil
	}
	out := make(scan.SubScores, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
