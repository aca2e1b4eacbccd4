package ical

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

type Merger struct {
	uidHost string
	newUID  func() string
}

// NewMerger returns a merger that stamps every event with "{uuid}@uidHost".
func NewMerger(uidHost string) *Merger {
	if uidHost == "" {
		uidHost = DefaultUIDHost
	}
	return &Merger{
		uidHost: uidHost,
		newUID:  uuid.NewString,
	}
}

// Merge combines calendar documents into one VCALENDAR. Timezones are
// deduplicated by TZID, every VEVENT gets a fresh UID, other components are
// copied as they are. Top-level properties come from the first document that
// sets them.
func (m *Merger) Merge(documents []string) (string, error) {
	if len(documents) == 0 {
		return "", NewMergeError("can't merge", nil, ErrNoInput)
	}

	calendars := make([]*ics.Calendar, 0, len(documents))
	for index, document := range documents {
		if strings.TrimSpace(document) == "" {
			continue
		}
		cal, err := parseDocument(document)
		if err != nil {
			return "", NewMergeError("failed to parse ICS payload", map[string]any{"index": index}, err)
		}
		calendars = append(calendars, cal)
	}
	if len(calendars) == 0 {
		return "", NewMergeError("can't merge", nil, ErrNothingParsed)
	}

	merged := &ics.Calendar{
		Components:         []ics.Component{},
		CalendarProperties: []ics.CalendarProperty{},
	}

	// #region | top-level properties
	for _, cal := range calendars {
		for _, prop := range cal.CalendarProperties {
			if hasCalendarProperty(merged, prop.IANAToken) {
				continue
			}
			merged.CalendarProperties = append(merged.CalendarProperties, prop)
		}
	}
	if !hasCalendarProperty(merged, string(ics.PropertyProductId)) {
		merged.SetProductId(ProdID)
	}
	if !hasCalendarProperty(merged, string(ics.PropertyVersion)) {
		merged.SetVersion(Version)
	}
	if !hasCalendarProperty(merged, string(ics.PropertyCalscale)) {
		merged.SetCalscale(Calscale)
	}
	// #endregion

	// #region | components
	seenTimezones := make(map[string]struct{})
	eventCount := 0
	for _, cal := range calendars {
		for _, component := range cal.Components {
			switch c := component.(type) {
			case *ics.VTimezone:
				tzid := ""
				if prop := c.GetProperty(ics.ComponentPropertyTzid); prop != nil {
					tzid = strings.TrimSpace(prop.Value)
				}
				if tzid == "" {
					tzid = fmt.Sprintf("__anon_tz_%d", len(seenTimezones))
				}
				if _, ok := seenTimezones[tzid]; ok {
					slog.Debug("dropping duplicate timezone", "tzid", tzid)
					continue
				}
				seenTimezones[tzid] = struct{}{}
				merged.Components = append(merged.Components, c)
			case *ics.VEvent:
				c.SetProperty(ics.ComponentPropertyUniqueId, m.newUID()+"@"+m.uidHost)
				merged.Components = append(merged.Components, c)
				eventCount++
			default:
				merged.Components = append(merged.Components, component)
			}
		}
	}
	// #endregion

	slog.Debug("merged calendars", "documents", len(calendars), "events", eventCount, "timezones", len(seenTimezones))
	return serialize(merged), nil
}

func parseDocument(document string) (*ics.Calendar, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(document))
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		return nil, errors.New("missing BEGIN:VCALENDAR")
	}
	if !strings.HasSuffix(trimmed, "END:VCALENDAR") {
		return nil, errors.New("missing END:VCALENDAR")
	}
	cal, err := ics.ParseCalendar(strings.NewReader(document))
	if err != nil {
		return nil, err
	}
	return cal, nil
}

func hasCalendarProperty(cal *ics.Calendar, token string) bool {
	for _, prop := range cal.CalendarProperties {
		if strings.EqualFold(prop.IANAToken, token) {
			return true
		}
	}
	return false
}
