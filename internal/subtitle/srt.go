// Package subtitle generates and parses SRT caption files.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/videovoice/videovoice/internal/models"
)

var timeLineRe = regexp.MustCompile(
	`^(\d{2}):(\d{2}):(\d{2}),(\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2}),(\d{3})$`)

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Milliseconds are rounded,
// not truncated, so 1.9996 s becomes 00:00:02,000.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Generate renders segments as an SRT document. Empty-text segments are
// skipped; indices are assigned after filtering so they stay monotonic
// without gaps.
func Generate(segments []models.Segment) string {
	var sb strings.Builder
	index := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		index++
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			index, FormatTimestamp(seg.Start), FormatTimestamp(seg.End), text)
	}
	return sb.String()
}

// WriteFile writes the SRT document for segments to path.
func WriteFile(path string, segments []models.Segment) error {
	if err := os.WriteFile(path, []byte(Generate(segments)), 0o644); err != nil {
		return fmt.Errorf("writing captions: %w", err)
	}
	return nil
}

// Parse reads an SRT document back into segments. Index lines are validated
// for presence but their values are not preserved.
func Parse(r io.Reader) ([]models.Segment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var segments []models.Segment
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// line is the index; the time range must follow.
		if !scanner.Scan() {
			return nil, fmt.Errorf("unexpected end of input after index %q", line)
		}
		m := timeLineRe.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			return nil, fmt.Errorf("malformed time line after index %q", line)
		}

		var text []string
		for scanner.Scan() {
			t := strings.TrimRight(scanner.Text(), "\r")
			if strings.TrimSpace(t) == "" {
				break
			}
			text = append(text, t)
		}

		segments = append(segments, models.Segment{
			Start: timestampSeconds(m[1], m[2], m[3], m[4]),
			End:   timestampSeconds(m[5], m[6], m[7], m[8]),
			Text:  strings.Join(text, "\n"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading captions: %w", err)
	}
	return segments, nil
}

func timestampSeconds(h, m, s, ms string) float64 {
	var hi, mi, si, msi int
	fmt.Sscanf(h, "%d", &hi)
	fmt.Sscanf(m, "%d", &mi)
	fmt.Sscanf(s, "%d", &si)
	fmt.Sscanf(ms, "%d", &msi)
	return float64(hi)*3600 + float64(mi)*60 + float64(si) + float64(msi)/1000
}
