package models

// Recommendation is the evaluator's verdict on a translation.
type Recommendation string

const (
	RecommendationApproved     Recommendation = "APPROVED"
	RecommendationReviewNeeded Recommendation = "REVIEW_NEEDED"
	RecommendationReject       Recommendation = "REJECT"
)

// QualityBreakdown holds the per-axis scores, each 0-100.
type QualityBreakdown struct {
	Accuracy    int `json:"accuracy"`
	Naturalness int `json:"naturalness"`
	DubbingFit  int `json:"dubbing_fit"`
	Consistency int `json:"consistency"`
}

// QualityResult is the outcome of one translation evaluation.
type QualityResult struct {
	OverallScore   int              `json:"overall_score"`
	Breakdown      QualityBreakdown `json:"breakdown"`
	Issues         []string         `json:"issues"`
	Recommendation Recommendation   `json:"recommendation"`
	// Err records an evaluation failure; the score is 0 in that case.
	Err string `json:"error,omitempty"`
}

// RecommendationForScore maps an overall score to the standard verdict
// thresholds: APPROVED >= 85, REJECT < 60, REVIEW_NEEDED otherwise.
func RecommendationForScore(score int) Recommendation {
	switch {
	case score >= 85:
		return RecommendationApproved
	case score < 60:
		return RecommendationReject
	default:
		return RecommendationReviewNeeded
	}
}
