package tz

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// common (and DST) abbreviations to the IANA zone that knows the DST rules
var abbreviations = map[string]string{
	// North America
	"EST": "America/New_York",
	"EDT": "America/New_York",
	"CST": "America/Chicago",
	"CDT": "America/Chicago",
	"MST": "America/Denver",
	"MDT": "America/Denver",
	"PST": "America/Los_Angeles",
	"PDT": "America/Los_Angeles",
	// UK / Europe
	"GMT":  "Europe/London",
	"BST":  "Europe/London",
	"CET":  "Europe/Paris",
	"CEST": "Europe/Paris",
	"EET":  "Europe/Athens",
	"EEST": "Europe/Athens",
	// Australia
	"AEST": "Australia/Sydney",
	"AEDT": "Australia/Sydney",
	// Asia, UTC+5:30 all year
	"IST": "Asia/Kolkata",
}

var offsetRe = regexp.MustCompile(`^(?i:UTC|GMT)?\s*([+-])(\d{1,2})(?::?(\d{2}))?$`)

// Casers keep state, so every call gets its own.
func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// ResolutionError describes a timezone hint that could not be turned into a
// zone. It is never returned by Resolve; its message becomes the warning.
type ResolutionError struct {
	Hint  string
	Title string
}

func (e *ResolutionError) Error() string {
	eventDesc := "event"
	if e.Title != "" {
		eventDesc = fmt.Sprintf("'%s'", e.Title)
	}
	return fmt.Sprintf(
		"Couldn't resolve timezone '%s' for %s - using UTC. Please verify the time in your calendar.",
		e.Hint, eventDesc,
	)
}

type Resolver struct {
	local *time.Location
}

// NewResolver returns a resolver that maps "local" to the given zone.
// A nil zone means time.Local.
func NewResolver(local *time.Location) *Resolver {
	if local == nil {
		local = time.Local
	}
	return &Resolver{local: local}
}

// Local returns the zone used for the "local" hint.
func (r *Resolver) Local() *time.Location {
	return r.local
}

// Resolve turns a loose timezone hint into a zone. It always returns a usable
// zone; the string is a warning when the hint had to be replaced by UTC.
func (r *Resolver) Resolve(hint, eventTitle string) (*time.Location, string) {
	raw := strings.TrimSpace(hint)
	if raw == "" {
		raw = "local"
	}
	normalized := upper(raw)
	if normalized == "LOCAL" {
		return r.local, ""
	}

	name := raw
	if zone, ok := abbreviations[normalized]; ok {
		name = zone
	}

	if loc, err := time.LoadLocation(name); err == nil {
		return loc, ""
	}
	if loc, ok := parseLoose(name); ok {
		slog.Debug("timezone resolved by loose parser", "hint", raw, "zone", loc.String())
		return loc, ""
	}

	resErr := &ResolutionError{Hint: raw, Title: eventTitle}
	slog.Warn("can't resolve timezone", "hint", raw, "title", eventTitle)
	return time.UTC, resErr.Error()
}

// parseLoose accepts what time.LoadLocation refuses but people still write:
// lower-cased IANA names, "utc", and fixed offsets like "UTC+5" or "+05:30".
func parseLoose(name string) (*time.Location, bool) {
	switch upper(name) {
	case "UTC", "Z", "ZULU", "UNIVERSAL":
		return time.UTC, true
	}

	if m := offsetRe.FindStringSubmatch(name); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes > 59 {
			return nil, false
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(fmt.Sprintf("UTC%s%02d:%02d", m[1], hours, minutes), offset), true
	}

	if strings.Contains(name, "/") && !strings.ContainsAny(name, " \t") {
		if loc, err := time.LoadLocation(titleZoneName(name)); err == nil {
			return loc, true
		}
	}
	return nil, false
}

// "america/new_york" -> "America/New_York"
func titleZoneName(name string) string {
	title := cases.Title(language.Und)
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		words := strings.Split(seg, "_")
		for j, w := range words {
			words[j] = title.String(w)
		}
		segments[i] = strings.Join(words, "_")
	}
	return strings.Join(segments, "/")
}
