package ical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	europeanClockPattern = regexp.MustCompile(`(?i)^\d{1,2}\.\d{2}(?:\s*[ap]\.?\s?m\.?)?$`)
	militaryClockPattern = regexp.MustCompile(`^([01]\d|2[0-3])([0-5]\d)$`)
	hourSuffixPattern    = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?:[:.]?(\d{2}))?\s*h(?:rs?)?\.?\s*$`)
	hourInfixPattern     = regexp.MustCompile(`(?i)^\s*(\d{1,2})h(\d{2})\s*$`)
	ordinalPattern       = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	meridiemDotsPattern  = regexp.MustCompile(`(?i)\b([ap])\.\s?m\.?`)
	spacesPattern        = regexp.MustCompile(`\s+`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-1-2",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2 January, 2006",
	"Monday, January 2, 2006",
	"Monday January 2, 2006",
	"Mon, Jan 2, 2006",
	"Mon Jan 2, 2006",
	"Monday, 2 January 2006",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2.1.2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// dates without a year land in the current year
var yearlessDateLayouts = []string{
	"January 2",
	"Jan 2",
	"2 January",
	"2 Jan",
	"Monday, January 2",
	"Mon, Jan 2",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
	"3PM",
	"3 PM",
	"15",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// NormalizeTimeString rewrites the human clock formats time layouts can't
// express ("20:00h", "20h", "20h15", "20.00", "0730") into "HH:MM". A dotted
// clock keeps its meridiem ("7.30pm" becomes "7:30pm").
func NormalizeTimeString(s string) string {
	s = strings.TrimSpace(s)

	if europeanClockPattern.MatchString(s) {
		s = strings.Replace(s, ".", ":", 1)
	}
	if m := militaryClockPattern.FindStringSubmatch(s); m != nil {
		return m[1] + ":" + m[2]
	}
	if m := hourSuffixPattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := m[2]
		if minute == "" {
			minute = "00"
		}
		return fmt.Sprintf("%02d:%s", hour, minute)
	}
	if m := hourInfixPattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%02d:%s", hour, m[2])
	}
	return s
}

// ParseClock reads a loosely formatted time of day into hour, minute, second.
// A trailing zone name ("3:00 PM EST") is ignored.
func ParseClock(raw string) (int, int, int, error) {
	s := NormalizeTimeString(raw)
	s = meridiemDotsPattern.ReplaceAllString(s, "${1}m")
	s = strings.ToUpper(spacesPattern.ReplaceAllString(s, " "))

	switch s {
	case "NOON", "MIDDAY":
		return 12, 0, 0, nil
	case "MIDNIGHT":
		return 0, 0, 0, nil
	}

	candidates := []string{s}
	if fields := strings.Fields(s); len(fields) > 1 {
		last := fields[len(fields)-1]
		if last != "AM" && last != "PM" && isZoneToken(last) {
			candidates = append(candidates, strings.Join(fields[:len(fields)-1], " "))
		}
	}
	for _, candidate := range candidates {
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t.Hour(), t.Minute(), t.Second(), nil
			}
		}
	}
	return 0, 0, 0, fmt.Errorf("ParseClock: unrecognized time %q", raw)
}

func isZoneToken(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r == '/', r == '_', r == '+', r == '-', r >= '0' && r <= '9', r == ':':
		default:
			return false
		}
	}
	return s[0] >= 'A' && s[0] <= 'Z'
}

// DateParser reads loosely formatted dates. Fixed layouts are tried first;
// anything else ("tomorrow", "next friday") goes through the when parser,
// anchored on now.
type DateParser struct {
	when *when.Parser
	now  func() time.Time
}

func NewDateParser(w *when.Parser, now func() time.Time) *DateParser {
	if w == nil {
		w = when.New(nil)
		w.Add(en.All...)
		w.Add(common.All...)
	}
	if now == nil {
		now = time.Now
	}
	return &DateParser{when: w, now: now}
}

// Parse returns the calendar date only; any clock part of the input is dropped.
func (p *DateParser) Parse(raw string) (int, time.Month, int, error) {
	s := strings.TrimSpace(spacesPattern.ReplaceAllString(raw, " "))
	if s == "" {
		return 0, 0, 0, fmt.Errorf("(*DateParser).Parse: empty date")
	}
	s = ordinalPattern.ReplaceAllString(s, "$1")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return y, m, d, nil
		}
	}

	now := p.now()
	for _, layout := range yearlessDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return now.Year(), t.Month(), t.Day(), nil
		}
	}

	result, err := p.when.Parse(s, now)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("(*DateParser).Parse: %w", err)
	}
	if result == nil {
		return 0, 0, 0, fmt.Errorf("(*DateParser).Parse: unrecognized date %q", raw)
	}
	y, m, d := result.Time.Date()
	return y, m, d, nil
}
