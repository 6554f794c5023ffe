package translate

import "strings"

const (
	// chunkThreshold is the text length above which translation is chunked.
	chunkThreshold = 8000
	// chunkTarget is the size each chunk aims for. It sits well below the
	// threshold so sentence boundaries have room to land.
	chunkTarget = 6000
)

// sentenceEnders terminate a sentence for chunk splitting. Covers Latin,
// CJK and ellipsis punctuation.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	'…': true,
}

// splitSentences breaks text into sentences, keeping the terminator with the
// sentence. Newlines also end a sentence so list-like transcripts split
// cleanly.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if sentenceEnders[r] {
			flush()
		}
	}
	flush()
	return sentences
}

// buildChunks packs sentences into chunks of roughly target bytes. A single
// sentence longer than the target becomes its own chunk rather than being
// split mid-sentence.
func buildChunks(sentences []string, target int) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > target {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// chunkText splits text for translation when it exceeds the threshold.
func chunkText(text string) []string {
	if len(text) <= chunkThreshold {
		return []string{text}
	}
	return buildChunks(splitSentences(text), chunkTarget)
}

// splitProportionally divides text into n pieces of roughly equal length on
// sentence boundaries. Used to pair source and translation halves when a
// refinement request would exceed the prompt budget.
func splitProportionally(text string, n int) []string {
	if n <= 1 {
		return []string{text}
	}
	sentences := splitSentences(text)
	if len(sentences) <= n {
		return sentences
	}

	target := len(text)/n + 1
	pieces := buildChunks(sentences, target)
	// Merge any overshoot back into the last piece so exactly n remain.
	for len(pieces) > n {
		pieces[len(pieces)-2] = pieces[len(pieces)-2] + " " + pieces[len(pieces)-1]
		pieces = pieces[:len(pieces)-1]
	}
	return pieces
}
