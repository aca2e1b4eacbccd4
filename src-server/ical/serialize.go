package ical

import (
	"strings"

	ics "github.com/arran4/golang-ical"
)

const (
	ProdID          = "-//NL Calendar Creator//EN"
	Version         = "2.0"
	Calscale        = "GREGORIAN"
	DefaultUIDHost  = "nl-calendar"
	DefaultTitle    = "No Title"
	ReminderTrigger = "-PT30M"
)

// serialize renders cal with CRLF line endings only, whatever the library
// picked for the platform.
func serialize(cal *ics.Calendar) string {
	return toCRLF(cal.Serialize(ics.WithNewLineWindows))
}

func toCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
