package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videovoice/videovoice/internal/models"
)

func TestParseEvaluationCleanJSON(t *testing.T) {
	ev, err := parseEvaluation(`{"accuracy": 90, "naturalness": 85, "dubbing_fit": 80, "consistency": 95, "issues": ["minor register slip"]}`)
	require.NoError(t, err)
	assert.Equal(t, 90, ev.Accuracy)
	assert.Equal(t, []string{"minor register slip"}, ev.Issues)
}

func TestParseEvaluationFenced(t *testing.T) {
	ev, err := parseEvaluation("```json\n{\"accuracy\": 70, \"naturalness\": 70, \"dubbing_fit\": 70, \"consistency\": 70, \"issues\": []}\n```")
	require.NoError(t, err)
	assert.Equal(t, 70, ev.Accuracy)
}

func TestParseEvaluationEmbeddedInProse(t *testing.T) {
	reply := `Here is my assessment: {"accuracy": 88, "naturalness": 82, "dubbing_fit": 79, "consistency": 91, "issues": []} as requested.`
	ev, err := parseEvaluation(reply)
	require.NoError(t, err)
	assert.Equal(t, 88, ev.Accuracy)
}

func TestParseEvaluationTruncated(t *testing.T) {
	// Reply cut off mid issues array.
	reply := `{"accuracy": 75, "naturalness": 80, "dubbing_fit": 72, "consistency": 85, "issues": ["first problem", "second prob`
	ev, err := parseEvaluation(reply)
	require.NoError(t, err)
	assert.Equal(t, 75, ev.Accuracy)
	assert.Equal(t, 85, ev.Consistency)
	require.NotEmpty(t, ev.Issues)
	assert.Equal(t, "first problem", ev.Issues[0])
}

func TestParseEvaluationUnrecoverable(t *testing.T) {
	_, err := parseEvaluation("I could not evaluate this translation.")
	assert.Error(t, err)
}

func TestParseEvaluationClampsScores(t *testing.T) {
	ev, err := parseEvaluation(`{"accuracy": 150, "naturalness": -5, "dubbing_fit": 50, "consistency": 50, "issues": []}`)
	require.NoError(t, err)
	assert.Equal(t, 100, ev.Accuracy)
	assert.Equal(t, 0, ev.Naturalness)
}

func TestMergeEvaluations(t *testing.T) {
	a := &evaluation{Accuracy: 80, Naturalness: 70, DubbingFit: 60, Consistency: 90, Issues: []string{"awkward phrasing in intro"}}
	b := &evaluation{Accuracy: 85, Naturalness: 75, DubbingFit: 61, Consistency: 90, Issues: []string{"Awkward phrasing in intro", "name rendered inconsistently"}}

	merged := mergeEvaluations(a, b)
	assert.Equal(t, 83, merged.Accuracy)
	assert.Equal(t, 73, merged.Naturalness)
	assert.Equal(t, 61, merged.DubbingFit)
	assert.Equal(t, 90, merged.Consistency)
	// Case-insensitive duplicate collapses to one entry.
	assert.Len(t, merged.Issues, 2)
}

func TestFinalizeResultWeights(t *testing.T) {
	result := finalizeResult(&evaluation{Accuracy: 100, Naturalness: 100, DubbingFit: 100, Consistency: 100})
	assert.Equal(t, 100, result.OverallScore)
	assert.Equal(t, models.RecommendationApproved, result.Recommendation)

	result = finalizeResult(&evaluation{Accuracy: 90, Naturalness: 80, DubbingFit: 70, Consistency: 60})
	// 0.4*90 + 0.3*80 + 0.2*70 + 0.1*60 = 80
	assert.Equal(t, 80, result.OverallScore)
	assert.Equal(t, models.RecommendationReviewNeeded, result.Recommendation)

	result = finalizeResult(&evaluation{Accuracy: 50, Naturalness: 50, DubbingFit: 50, Consistency: 50})
	assert.Equal(t, models.RecommendationReject, result.Recommendation)
}

func TestFailedResult(t *testing.T) {
	result := failedResult("provider unavailable")
	assert.Equal(t, 0, result.OverallScore)
	assert.Equal(t, models.RecommendationReviewNeeded, result.Recommendation)
	assert.Equal(t, "provider unavailable", result.Err)
}

func TestDedupeIssues(t *testing.T) {
	long := strings.Repeat("the translation drops a qualifier in the second paragraph ", 3)
	issues := []string{
		"  minor typo  ",
		"minor typo",
		long + "version one",
		long + "version two",
		"",
	}
	out := dedupeIssues(issues)
	// The two long issues share an 80-char prefix and collapse together.
	assert.Equal(t, []string{"minor typo", long + "version one"}, out)
}

func TestDedupeIssuesCapsList(t *testing.T) {
	issues := []string{"one", "two", "three", "four", "five", "six", "seven"}
	out := dedupeIssues(issues)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, out)
}

func TestSampleTextShortPassthrough(t *testing.T) {
	assert.Equal(t, "short", sampleText("short", 100))
}

func TestSampleTextSamplesLongInput(t *testing.T) {
	text := strings.Repeat("a", 5000) + strings.Repeat("b", 5000) + strings.Repeat("c", 5000)
	sampled := sampleText(text, 1000)

	assert.LessOrEqual(t, len(sampled), 1000+2*len(omissionMarker))
	assert.Equal(t, 2, strings.Count(sampled, "[...중략...]"))
	assert.True(t, strings.HasPrefix(sampled, "aaa"))
	assert.True(t, strings.HasSuffix(sampled, "ccc"))
	assert.Contains(t, sampled, "b")
}
