// Package quality scores translations against their source text. Evaluation
// is advisory: failures never abort a job, they produce a zero score with the
// error recorded so the pipeline can decide what to do.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/llm"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/observability"
	"github.com/videovoice/videovoice/internal/resilience"
)

const (
	// sampleLimit bounds how much of each text goes into the prompt. Longer
	// texts are sampled from the front, middle and end.
	sampleLimit = 10000
	// omissionMarker separates the sampled spans. It deliberately stays in
	// Korean, matching the dominant target language of the deployment.
	omissionMarker = "\n[...중략...]\n"

	evalTemperature = 0.2
	evalMaxTokens   = 2048

	// maxIssues bounds the reported issue list, mirroring the prompt's "at
	// most 5" instruction even when the model ignores it.
	maxIssues = 5
)

// axis weights for the overall score.
const (
	weightAccuracy    = 0.4
	weightNaturalness = 0.3
	weightDubbingFit  = 0.2
	weightConsistency = 0.1
)

// Evaluator scores translations through the chat providers, preferring
// Gemini and falling back to Groq on quota exhaustion.
type Evaluator struct {
	gemini *llm.Client
	groq   *llm.Client
	logger *slog.Logger
}

// New builds an Evaluator from the provider credentials. With no usable
// provider every evaluation returns the zero-score default.
func New(providers config.ProvidersConfig, logger *slog.Logger) *Evaluator {
	e := &Evaluator{logger: observability.WithComponent(logger, "quality")}
	if client, err := llm.NewGemini(providers.Gemini); err == nil {
		e.gemini = client
	}
	if client, err := llm.NewGroq(providers.Groq); err == nil {
		e.groq = client
	}
	return e
}

// Evaluate scores a translation. Two independent evaluations are averaged to
// damp single-run variance; their issue lists are merged. The returned result
// always carries a recommendation, and Err is set when evaluation failed.
func (e *Evaluator) Evaluate(ctx context.Context, source, translation, sourceLang, targetLang string, syncMode models.SyncMode) *models.QualityResult {
	entries := e.chain()
	if len(entries) == 0 {
		return failedResult("no evaluation provider configured")
	}

	prompt := evalPrompt(
		sampleText(source, sampleLimit),
		sampleText(translation, sampleLimit),
		sourceLang, targetLang, syncMode,
	)

	first, err := e.evaluateOnce(ctx, entries, prompt)
	if err != nil {
		e.logger.Warn("evaluation failed", slog.String("error", err.Error()))
		return failedResult(err.Error())
	}

	second, err := e.evaluateOnce(ctx, entries, prompt)
	if err != nil {
		// A single successful run is still a valid verdict.
		e.logger.Warn("second evaluation failed, using single run",
			slog.String("error", err.Error()))
		return finalizeResult(first)
	}

	return finalizeResult(mergeEvaluations(first, second))
}

func (e *Evaluator) chain() []resilience.Entry[*llm.Client] {
	var entries []resilience.Entry[*llm.Client]
	if e.gemini != nil {
		entries = append(entries, resilience.Entry[*llm.Client]{Name: e.gemini.Name(), Provider: e.gemini})
	}
	if e.groq != nil {
		entries = append(entries, resilience.Entry[*llm.Client]{Name: e.groq.Name(), Provider: e.groq})
	}
	return entries
}

func (e *Evaluator) evaluateOnce(ctx context.Context, entries []resilience.Entry[*llm.Client], prompt string) (*evaluation, error) {
	chain := resilience.NewChain(e.logger, nil, entries...)
	reply, _, err := resilience.Execute(ctx, chain,
		func(ctx context.Context, c *llm.Client) (string, error) {
			return c.Complete(ctx, evalSystemPrompt, prompt, evalTemperature, evalMaxTokens)
		})
	if err != nil {
		return nil, err
	}
	return parseEvaluation(llm.StripReasoning(reply))
}

// mergeEvaluations averages the axis scores of two runs and unions their
// issues. Ties on rounding go up.
func mergeEvaluations(a, b *evaluation) *evaluation {
	avg := func(x, y int) int {
		return int(math.Round(float64(x+y) / 2))
	}
	return &evaluation{
		Accuracy:    avg(a.Accuracy, b.Accuracy),
		Naturalness: avg(a.Naturalness, b.Naturalness),
		DubbingFit:  avg(a.DubbingFit, b.DubbingFit),
		Consistency: avg(a.Consistency, b.Consistency),
		Issues:      dedupeIssues(append(append([]string{}, a.Issues...), b.Issues...)),
	}
}

// finalizeResult computes the weighted overall score and recommendation.
func finalizeResult(ev *evaluation) *models.QualityResult {
	overall := int(math.Round(
		weightAccuracy*float64(ev.Accuracy) +
			weightNaturalness*float64(ev.Naturalness) +
			weightDubbingFit*float64(ev.DubbingFit) +
			weightConsistency*float64(ev.Consistency)))

	return &models.QualityResult{
		OverallScore: overall,
		Breakdown: models.QualityBreakdown{
			Accuracy:    ev.Accuracy,
			Naturalness: ev.Naturalness,
			DubbingFit:  ev.DubbingFit,
			Consistency: ev.Consistency,
		},
		Issues:         dedupeIssues(ev.Issues),
		Recommendation: models.RecommendationForScore(overall),
	}
}

func failedResult(reason string) *models.QualityResult {
	return &models.QualityResult{
		OverallScore:   0,
		Issues:         []string{},
		Recommendation: models.RecommendationReviewNeeded,
		Err:            reason,
	}
}

// dedupeIssues removes duplicate issue strings and caps the list at
// maxIssues. Two issues count as the same when their normalized 80-character
// prefixes match, since reruns tend to rephrase the tail of long issue
// descriptions.
func dedupeIssues(issues []string) []string {
	seen := make(map[string]bool, len(issues))
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		issue = strings.TrimSpace(issue)
		if issue == "" {
			continue
		}
		key := strings.ToLower(strings.Join(strings.Fields(issue), " "))
		if len(key) > 80 {
			key = key[:80]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, issue)
		if len(out) == maxIssues {
			break
		}
	}
	return out
}

// sampleText keeps the whole text when it fits, otherwise stitches together
// spans from the front, middle and end with omission markers between them.
func sampleText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	front := int(float64(limit) * 0.4)
	middle := int(float64(limit) * 0.3)
	tail := limit - front - middle

	mid := len(text)/2 - middle/2
	var sb strings.Builder
	sb.WriteString(text[:front])
	sb.WriteString(omissionMarker)
	sb.WriteString(text[mid : mid+middle])
	sb.WriteString(omissionMarker)
	sb.WriteString(text[len(text)-tail:])
	return sb.String()
}

const evalSystemPrompt = "You are a strict translation quality reviewer for dubbed media. " +
	"You reply with a single JSON object and nothing else."

func evalPrompt(source, translation, sourceLang, targetLang string, syncMode models.SyncMode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluate this %s-to-%s translation made for %s dubbing.\n\n", sourceLang, targetLang, syncMode)
	sb.WriteString("Score each axis 0-100:\n")
	sb.WriteString("- accuracy: meaning preserved, nothing added or dropped. 90+ only when fully faithful; ")
	sb.WriteString("if the translation ends mid-sentence or clearly cuts off, accuracy is at most 70.\n")
	sb.WriteString("- naturalness: reads like native spoken language, correct register.\n")
	sb.WriteString("- dubbing_fit: phrasing suitable to be spoken aloud in roughly the original pacing.\n")
	sb.WriteString("- consistency: terminology and names rendered the same way throughout.\n\n")
	sb.WriteString("List concrete problems in \"issues\" (at most 5, empty array if none). ")
	sb.WriteString("Reply with exactly this JSON shape:\n")
	sb.WriteString(`{"accuracy": 0, "naturalness": 0, "dubbing_fit": 0, "consistency": 0, "issues": ["..."]}`)
	sb.WriteString("\n\nSource text:\n")
	sb.WriteString(source)
	sb.WriteString("\n\nTranslation:\n")
	sb.WriteString(translation)
	return sb.String()
}
