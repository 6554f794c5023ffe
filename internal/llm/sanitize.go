package llm

import (
	"regexp"
	"strings"
)

// maxPromptInput clips user-supplied text embedded into prompts.
const maxPromptInput = 50000

var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fenceOpenRe  = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")

	// injectionPatterns are filtered case-insensitively from input text
	// before it is embedded in a prompt.
	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions?`),
		regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`),
		regexp.MustCompile(`(?im)^\s*system\s*:`),
		regexp.MustCompile(`(?im)^\s*assistant\s*:`),
		regexp.MustCompile(`<\|im_start\|>`),
		regexp.MustCompile(`<\|im_end\|>`),
	}
)

// SanitizeInput prepares untrusted text for prompt embedding: markdown code
// fences and known prompt-injection patterns are removed, and the result is
// clipped to a fixed maximum length.
func SanitizeInput(text string) string {
	text = fenceOpenRe.ReplaceAllString(text, "")
	for _, re := range injectionPatterns {
		text = re.ReplaceAllString(text, "")
	}
	if len(text) > maxPromptInput {
		text = text[:maxPromptInput]
	}
	return strings.TrimSpace(text)
}

// StripReasoning removes <think>...</think> blocks some models emit before
// their answer.
func StripReasoning(text string) string {
	return strings.TrimSpace(thinkBlockRe.ReplaceAllString(text, ""))
}

// StripCodeFences removes a markdown code fence wrapper around a reply,
// e.g. "```json\n{...}\n```" becomes "{...}".
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	return text
}
