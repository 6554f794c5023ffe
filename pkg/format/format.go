// Package format renders values for job logs and CLI output.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// Bytes renders a byte count with a binary unit, one decimal above 1 KB.
// Bytes(1536) => "1.5 KB".
func Bytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", value, byteUnits[unit])
}

var printer = message.NewPrinter(language.English)

// Number renders an integer with thousand separators.
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Percentage renders a percentage with the given number of decimals.
func Percentage(value float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, value)
}

// CronDescription renders a cron schedule as prose for log output. It covers
// the interval and fixed-time shapes a retention sweep schedule takes; any
// other expression is returned verbatim. Both the 5-field form and the
// 6-field form with a leading seconds field are accepted.
func CronDescription(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 6 {
		fields = fields[1:]
	}
	if len(fields) != 5 {
		return expr
	}
	minute, hour, dom, _, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if minute == "*" && hour == "*" && dom == "*" && dow == "*" {
		return "every minute"
	}
	if n, ok := stepOf(minute); ok && hour == "*" && dom == "*" && dow == "*" {
		if n == 1 {
			return "every minute"
		}
		return fmt.Sprintf("every %d minutes", n)
	}
	if n, ok := stepOf(hour); ok && dom == "*" && dow == "*" {
		if n == 1 {
			return "every hour"
		}
		return fmt.Sprintf("every %d hours", n)
	}

	m, merr := strconv.Atoi(minute)
	if merr != nil || m < 0 || m > 59 {
		return expr
	}
	if hour == "*" {
		if m == 0 {
			return "every hour"
		}
		return fmt.Sprintf("every hour at :%02d", m)
	}
	h, herr := strconv.Atoi(hour)
	if herr != nil || h < 0 || h > 23 {
		return expr
	}

	at := fmt.Sprintf("%02d:%02d", h, m)
	switch {
	case dow != "*":
		if day, ok := weekday(dow); ok {
			return fmt.Sprintf("%ss at %s", day, at)
		}
	case dom != "*":
		if d, err := strconv.Atoi(dom); err == nil {
			return fmt.Sprintf("day %d of each month at %s", d, at)
		}
	default:
		return fmt.Sprintf("daily at %s", at)
	}
	return expr
}

// stepOf parses a "*/N" field.
func stepOf(field string) (int, bool) {
	rest, found := strings.CutPrefix(field, "*/")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func weekday(field string) (string, bool) {
	d, err := strconv.Atoi(field)
	if err != nil || d < 0 || d > 6 {
		return "", false
	}
	return weekdays[d], true
}
