package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration that additionally accepts "d" (days) and "w"
// (weeks) units when parsed from YAML, JSON or the environment. "30d", "2w",
// "1w2d12h" and plain Go forms like "720h" are all valid.
type Duration time.Duration

// day and week extend the units time.ParseDuration knows about.
const (
	day  = 24 * time.Hour
	week = 7 * day
)

// ParseDuration parses a duration string, accepting the extended d and w
// units anywhere in the string.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	trimmed := s
	sign := time.Duration(1)
	if trimmed[0] == '-' || trimmed[0] == '+' {
		if trimmed[0] == '-' {
			sign = -1
		}
		trimmed = trimmed[1:]
	}

	var total time.Duration
	for trimmed != "" {
		numEnd := 0
		for numEnd < len(trimmed) && (isDigit(trimmed[numEnd]) || trimmed[numEnd] == '.') {
			numEnd++
		}
		unitEnd := numEnd
		for unitEnd < len(trimmed) && !isDigit(trimmed[unitEnd]) && trimmed[unitEnd] != '.' {
			unitEnd++
		}
		if numEnd == 0 || unitEnd == numEnd {
			return 0, fmt.Errorf("invalid duration %q", s)
		}

		component := trimmed[:unitEnd]
		switch trimmed[numEnd:unitEnd] {
		case "d":
			component = trimmed[:numEnd] + "h"
			component = scaled(component, 24)
		case "w":
			component = trimmed[:numEnd] + "h"
			component = scaled(component, 7*24)
		}
		parsed, err := time.ParseDuration(component)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total += parsed
		trimmed = trimmed[unitEnd:]
	}
	return Duration(sign * total), nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// scaled multiplies a parseable duration component by an integer factor.
func scaled(component string, factor int64) string {
	d, err := time.ParseDuration(component)
	if err != nil {
		return component
	}
	return (time.Duration(factor) * d).String()
}

// UnmarshalText implements encoding.TextUnmarshaler for viper and YAML.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON accepts either a duration string or raw nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.UnmarshalText([]byte(s))
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String renders with the largest whole units first, so 31 days come back as
// "4w3d" rather than "744h0m0s".
func (d Duration) String() string {
	rem := time.Duration(d)
	if rem == 0 {
		return "0s"
	}

	var sb strings.Builder
	if rem < 0 {
		sb.WriteByte('-')
		rem = -rem
	}
	if weeks := rem / week; weeks > 0 {
		fmt.Fprintf(&sb, "%dw", weeks)
		rem -= weeks * week
	}
	if days := rem / day; days > 0 {
		fmt.Fprintf(&sb, "%dd", days)
		rem -= days * day
	}
	if rem > 0 {
		sb.WriteString(rem.String())
	}
	return sb.String()
}
