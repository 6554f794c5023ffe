package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/videovoice/videovoice/internal/models"
)

const (
	// truncationFloor rejects a refinement candidate shorter than this
	// fraction of the text it replaces.
	truncationFloor = 0.50
	// keyTermLossLimit rejects a candidate missing more than this fraction
	// of the source's key terms.
	keyTermLossLimit = 0.30
)

var (
	numberTermRe = regexp.MustCompile(`\d[\d,.]*`)
	properTermRe = regexp.MustCompile(`\b[A-Z][A-Za-z]+\b`)
)

// evaluateStage scores the translation and, in dubbing mode, iteratively
// refines it until the quality floor is met or the iteration budget runs
// out. The best candidate seen across rounds wins; ties go to the later
// round. Results at or above the cache floor are written back to the cache.
type evaluateStage struct {
	deps     Deps
	reporter Reporter
}

func (s *evaluateStage) ID() string        { return "evaluate" }
func (s *evaluateStage) Step() models.Step { return models.StepEvaluate }
func (s *evaluateStage) Milestone() int    { return 60 }

func (s *evaluateStage) Run(ctx context.Context, st *State) error {
	// A cache hit arrives with its stored verdict; nothing to do.
	if st.Quality != nil {
		s.reporter.SetQualityResult(st.JobID, st.Quality)
		return nil
	}

	evalCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(ctx, s.deps.Quality.Timeout.Duration())
	}

	ectx, cancel := evalCtx()
	result := s.deps.Evaluator.Evaluate(ectx, st.Transcript, st.Translation, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode)
	cancel()

	bestText, bestResult := st.Translation, result
	terms := keyTerms(st.Transcript)

	// Refinement only makes sense for the flowing dubbing text; segment
	// timing would not survive a rewrite.
	refine := st.Settings.Mode == models.ModeDubbing

	retranslate := false
	for round := 1; refine && bestResult.OverallScore < s.deps.Quality.Floor && round <= s.deps.Quality.MaxIterations; round++ {
		if s.reporter.Cancelled(st.JobID) {
			return models.ErrJobCancelled
		}
		s.reporter.Log(st.JobID, fmt.Sprintf("translation quality %d below %d, refining (round %d/%d)",
			bestResult.OverallScore, s.deps.Quality.Floor, round, s.deps.Quality.MaxIterations))

		candidate, err := s.nextCandidate(ctx, st, bestText, bestResult, retranslate)
		if err != nil {
			s.deps.Logger.Warn("refinement round failed", slog.String("error", err.Error()))
			break
		}
		retranslate = false

		if float64(len(candidate)) < truncationFloor*float64(len(bestText)) {
			s.deps.Logger.Warn("refinement candidate truncated, discarding",
				slog.Int("candidate_len", len(candidate)),
				slog.Int("best_len", len(bestText)))
			retranslate = true
			continue
		}
		if lost := keyTermLoss(terms, candidate); lost > keyTermLossLimit {
			s.deps.Logger.Warn("refinement candidate lost key terms, discarding",
				slog.Float64("loss", lost))
			retranslate = true
			continue
		}

		ectx, cancel := evalCtx()
		candidateResult := s.deps.Evaluator.Evaluate(ectx, st.Transcript, candidate, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode)
		cancel()

		if candidateResult.OverallScore >= bestResult.OverallScore {
			bestText, bestResult = candidate, candidateResult
		}
	}

	st.Translation = bestText
	st.Quality = bestResult
	s.reporter.SetQualityResult(st.JobID, bestResult)

	if s.deps.Cache != nil && bestResult.Err == "" && bestResult.OverallScore >= s.deps.Quality.CacheFloor {
		if err := s.deps.Cache.Put(st.Transcript, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode, bestText, bestResult); err != nil {
			s.deps.Logger.Warn("caching translation failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// nextCandidate produces the next translation attempt: a refinement of the
// current best, or a fresh translation after a rejected candidate.
func (s *evaluateStage) nextCandidate(ctx context.Context, st *State, bestText string, bestResult *models.QualityResult, retranslate bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deps.Translation.Timeout.Duration())
	defer cancel()

	if retranslate || len(bestResult.Issues) == 0 {
		fresh, _, err := s.deps.Translator.Translate(ctx, st.Transcript, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode, st.Settings.TranslationEngine)
		return fresh, err
	}
	return s.deps.Translator.Refine(ctx, st.Transcript, bestText, bestResult.Issues, st.Settings.SourceLang, st.Settings.TargetLang, st.Settings.SyncMode, st.Settings.TranslationEngine)
}

// keyTerms extracts the tokens a translation must not drop: numbers and
// capitalized words, which survive translation mostly intact.
func keyTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(term string) {
		if len(term) < 2 || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}
	for _, m := range numberTermRe.FindAllString(text, -1) {
		add(strings.Trim(m, ",."))
	}
	for _, m := range properTermRe.FindAllString(text, -1) {
		add(m)
	}
	return terms
}

// keyTermLoss returns the fraction of terms absent from the candidate.
func keyTermLoss(terms []string, candidate string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(candidate)
	missing := 0
	for _, term := range terms {
		if !strings.Contains(lower, strings.ToLower(term)) {
			missing++
		}
	}
	return float64(missing) / float64(len(terms))
}
