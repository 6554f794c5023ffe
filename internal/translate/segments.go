package translate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/videovoice/videovoice/internal/llm"
	"github.com/videovoice/videovoice/internal/models"
	"github.com/videovoice/videovoice/internal/resilience"
)

// segmentBatchSize is how many subtitle segments go into one request.
const segmentBatchSize = 10

var (
	taggedSegmentRe   = regexp.MustCompile(`(?s)<s(\d+)>\s*(.*?)\s*</s\d+>`)
	numberedSegmentRe = regexp.MustCompile(`(?m)^\s*\[(\d+)\]\s*(.+)$`)
)

// TranslateSegments translates subtitle segments in batches, preserving each
// segment's timing. Batches whose replies parse poorly fall back to
// per-segment requests; progress is reported after every completed batch. The
// returned rate is the percentage of segments whose batch reply parsed on the
// first attempt, a health signal for the job log.
func (t *Translator) TranslateSegments(ctx context.Context, segments []models.Segment, sourceLang, targetLang, engine string, progress func(done, total int)) ([]models.Segment, int, error) {
	entries, err := t.chainFor(engine)
	if err != nil {
		return nil, 0, err
	}
	system := systemPrompt(targetLang, models.SyncOptimize)

	out := make([]models.Segment, len(segments))
	copy(out, segments)

	total := len(segments)
	parsedTotal, sentTotal := 0, 0
	for start := 0; start < total; start += segmentBatchSize {
		end := min(start+segmentBatchSize, total)
		parsed, sent, err := t.translateBatch(ctx, entries, system, out[start:end], sourceLang, targetLang)
		if err != nil {
			return nil, 0, fmt.Errorf("segments %d-%d: %w", start+1, end, err)
		}
		parsedTotal += parsed
		sentTotal += sent
		if progress != nil {
			progress(end, total)
		}
	}

	rate := 100
	if sentTotal > 0 {
		rate = parsedTotal * 100 / sentTotal
	}
	return out, rate, nil
}

// translateBatch translates one batch in place and reports how many of the
// non-empty segments it sent parsed out of the batch reply. Replies are
// matched to segments by their tag number; when enough of the batch parses,
// only the missing entries are retried individually, otherwise the whole
// batch drops to per-segment translation.
func (t *Translator) translateBatch(ctx context.Context, entries []resilience.Entry[*llm.Client], system string, batch []models.Segment, sourceLang, targetLang string) (int, int, error) {
	texts := make([]string, len(batch))
	nonEmpty := 0
	for i, seg := range batch {
		texts[i] = llm.SanitizeInput(seg.Text)
		if strings.TrimSpace(seg.Text) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return 0, 0, nil
	}

	reply, _, err := t.complete(ctx, entries, system, segmentsPrompt(texts, sourceLang, targetLang))
	if err != nil {
		return 0, nonEmpty, err
	}

	parsed := parseBatchReply(reply, len(batch))
	parsedCount := min(len(parsed), nonEmpty)
	if parsedCount*100/nonEmpty < t.minBatchSuccess {
		t.logger.Warn("batch reply parsed poorly, translating per segment",
			slog.Int("parsed", len(parsed)),
			slog.Int("expected", nonEmpty))
		return parsedCount, nonEmpty, t.translatePerSegment(ctx, entries, system, batch, nil, sourceLang, targetLang)
	}

	var missing []int
	for i := range batch {
		if strings.TrimSpace(batch[i].Text) == "" {
			continue
		}
		if text, ok := parsed[i+1]; ok {
			batch[i].Text = text
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		t.logger.Debug("retrying missing batch entries", slog.Int("count", len(missing)))
		return parsedCount, nonEmpty, t.translatePerSegment(ctx, entries, system, batch, missing, sourceLang, targetLang)
	}
	return parsedCount, nonEmpty, nil
}

// translatePerSegment translates segments one request at a time. A nil index
// list means every non-empty segment in the batch.
func (t *Translator) translatePerSegment(ctx context.Context, entries []resilience.Entry[*llm.Client], system string, batch []models.Segment, indexes []int, sourceLang, targetLang string) error {
	if indexes == nil {
		for i := range batch {
			if strings.TrimSpace(batch[i].Text) != "" {
				indexes = append(indexes, i)
			}
		}
	}
	for _, i := range indexes {
		translated, _, err := t.complete(ctx, entries, system,
			translatePrompt(llm.SanitizeInput(batch[i].Text), sourceLang, targetLang))
		if err != nil {
			return fmt.Errorf("segment %d: %w", i+1, err)
		}
		if translated != "" {
			batch[i].Text = translated
		}
	}
	return nil
}

// parseBatchReply extracts numbered translations from a batch reply. Tagged
// form <sN>...</sN> is tried first, then a bracketed [N] fallback some models
// produce. Numbers outside 1..size are discarded.
func parseBatchReply(reply string, size int) map[int]string {
	out := make(map[int]string)

	for _, match := range taggedSegmentRe.FindAllStringSubmatch(reply, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > size {
			continue
		}
		if text := strings.TrimSpace(match[2]); text != "" {
			out[n] = text
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, match := range numberedSegmentRe.FindAllStringSubmatch(reply, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > size {
			continue
		}
		if text := strings.TrimSpace(match[2]); text != "" {
			out[n] = text
		}
	}
	return out
}
