package quality

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/videovoice/videovoice/internal/llm"
)

// evaluation is the JSON shape the reviewer model replies with.
type evaluation struct {
	Accuracy    int      `json:"accuracy"`
	Naturalness int      `json:"naturalness"`
	DubbingFit  int      `json:"dubbing_fit"`
	Consistency int      `json:"consistency"`
	Issues      []string `json:"issues"`
}

var (
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

	// Field extractors for replies whose JSON was cut off mid-stream.
	accuracyRe    = regexp.MustCompile(`"accuracy"\s*:\s*(\d+)`)
	naturalnessRe = regexp.MustCompile(`"naturalness"\s*:\s*(\d+)`)
	dubbingFitRe  = regexp.MustCompile(`"dubbing_fit"\s*:\s*(\d+)`)
	consistencyRe = regexp.MustCompile(`"consistency"\s*:\s*(\d+)`)
	issueItemRe   = regexp.MustCompile(`"((?:[^"\\]|\\.)+)"`)
	issuesBlockRe = regexp.MustCompile(`(?s)"issues"\s*:\s*\[(.*?)(?:\]|$)`)
)

// parseEvaluation decodes a reviewer reply. Code fences and surrounding prose
// are tolerated, and a truncated JSON object is recovered field by field.
func parseEvaluation(reply string) (*evaluation, error) {
	cleaned := llm.StripCodeFences(reply)

	var ev evaluation
	if err := json.Unmarshal([]byte(cleaned), &ev); err == nil {
		return clamp(&ev), nil
	}

	if match := jsonObjectRe.FindString(cleaned); match != "" {
		if err := json.Unmarshal([]byte(match), &ev); err == nil {
			return clamp(&ev), nil
		}
	}

	return recoverTruncated(cleaned)
}

// recoverTruncated pulls individual fields out of a malformed reply. All four
// axis scores must be present for the recovery to count.
func recoverTruncated(text string) (*evaluation, error) {
	scores := [4]*regexp.Regexp{accuracyRe, naturalnessRe, dubbingFitRe, consistencyRe}
	values := [4]int{}
	for i, re := range scores {
		match := re.FindStringSubmatch(text)
		if match == nil {
			return nil, fmt.Errorf("unparseable evaluation reply")
		}
		v, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("unparseable evaluation reply")
		}
		values[i] = v
	}

	ev := &evaluation{
		Accuracy:    values[0],
		Naturalness: values[1],
		DubbingFit:  values[2],
		Consistency: values[3],
	}
	if block := issuesBlockRe.FindStringSubmatch(text); block != nil {
		for _, item := range issueItemRe.FindAllStringSubmatch(block[1], -1) {
			var s string
			if err := json.Unmarshal([]byte(`"`+item[1]+`"`), &s); err == nil {
				ev.Issues = append(ev.Issues, s)
			}
		}
	}
	return clamp(ev), nil
}

func clamp(ev *evaluation) *evaluation {
	clip := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > 100 {
			return 100
		}
		return v
	}
	ev.Accuracy = clip(ev.Accuracy)
	ev.Naturalness = clip(ev.Naturalness)
	ev.DubbingFit = clip(ev.DubbingFit)
	ev.Consistency = clip(ev.Consistency)
	return ev
}
