package translate

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/videovoice/videovoice/internal/models"
)

// languageName renders a language code as its English name for prompts.
func languageName(code string) string {
	if code == "auto" {
		return "the source language"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// systemPrompt builds the translator persona for the given sync mode. The
// optimize mode asks for compact phrasing that still carries every point, so
// the synthesized audio tends to fit the original timing; the other modes ask
// for a complete rendering and leave timing to the audio stage.
func systemPrompt(targetLang string, syncMode models.SyncMode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a professional dubbing translator. Translate into natural, spoken %s as it would be performed by a voice actor.\n", languageName(targetLang))

	switch syncMode {
	case models.SyncOptimize:
		sb.WriteString("Keep the translation concise so the spoken result fits the original pacing. ")
		sb.WriteString("Prefer short natural phrasing and drop filler, but never omit information or change meaning.\n")
	default:
		sb.WriteString("Produce a complete translation that preserves every sentence and detail. ")
		sb.WriteString("Timing will be adjusted separately, so do not shorten the content.\n")
	}

	sb.WriteString("Output only the translation. No notes, no explanations, no source text.")

	if guidance := languageGuidance(targetLang); guidance != "" {
		sb.WriteString("\n")
		sb.WriteString(guidance)
	}
	return sb.String()
}

// languageGuidance adds target-specific register notes for languages where a
// literal rendering reads poorly when spoken.
func languageGuidance(targetLang string) string {
	switch targetLang {
	case "ko":
		return "Use the polite haeyo-che register unless the source is clearly formal. " +
			"Prefer natural spoken Korean over literal phrasing, and keep widely used loanwords in Hangul."
	case "ja":
		return "Use the polite desu/masu register unless the source is clearly casual. " +
			"Choose natural spoken Japanese over stiff literal constructions."
	case "ru":
		return "Use natural colloquial Russian with correct aspect and case. " +
			"Avoid anglicisms where an established Russian expression exists."
	default:
		return ""
	}
}

// translationExemplar is a one-shot example prepended to translation requests
// for Korean, where register errors are the most common failure.
func translationExemplar(targetLang string) string {
	if targetLang != "ko" {
		return ""
	}
	return "Example:\n" +
		"Source: So today I want to show you how this actually works under the hood.\n" +
		"Translation: 그래서 오늘은 이게 내부적으로 어떻게 동작하는지 보여드리려고 해요.\n\n"
}

// translatePrompt builds the user message for one chunk.
func translatePrompt(text, sourceLang, targetLang string) string {
	var sb strings.Builder
	sb.WriteString(translationExemplar(targetLang))
	fmt.Fprintf(&sb, "Translate the following %s text into %s:\n\n",
		languageName(sourceLang), languageName(targetLang))
	sb.WriteString(text)
	return sb.String()
}

// refinePrompt asks the model to revise an existing translation against a
// list of reviewer issues.
func refinePrompt(source, translation string, issues []string, sourceLang, targetLang string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Revise this %s translation of the %s source below. A reviewer flagged these issues:\n",
		languageName(targetLang), languageName(sourceLang))
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s\n", issue)
	}
	sb.WriteString("\nFix the issues while keeping everything that is already correct. ")
	sb.WriteString("Output only the revised translation.\n\n")
	fmt.Fprintf(&sb, "Source:\n%s\n\nCurrent translation:\n%s", source, translation)
	return sb.String()
}

// segmentsPrompt builds the batch request for subtitle segments. Each segment
// is wrapped in numbered tags the reply must echo, so results can be matched
// back to their timestamps.
func segmentsPrompt(texts []string, sourceLang, targetLang string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Translate each numbered %s subtitle segment into %s.\n",
		languageName(sourceLang), languageName(targetLang))
	sb.WriteString("Reply with the same tags around each translation, nothing else. ")
	sb.WriteString("Example reply: <s1>first translation</s1>\n<s2>second translation</s2>\n\n")
	for i, text := range texts {
		fmt.Fprintf(&sb, "<s%d>%s</s%d>\n", i+1, text, i+1)
	}
	return sb.String()
}
