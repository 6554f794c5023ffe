package models

// Segment is a timestamped span of transcribed or translated text.
// Times are in seconds from the start of the media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// NonEmptySegments returns the segments whose text is not blank.
func NonEmptySegments(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Text != "" {
			out = append(out, s)
		}
	}
	return out
}
