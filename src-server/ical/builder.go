package ical

import (
	"fmt"
	"log/slog"
	"time"

	"nlcal/src-server/model"
	"nlcal/src-server/tz"

	ics "github.com/arran4/golang-ical"
	"github.com/olebedev/when"
)

// BuildOutcome is either Built or Skipped.
type BuildOutcome interface {
	isBuildOutcome()
}

// Built holds a single-event calendar document. Warnings are non-fatal notes
// about the event, such as a timezone that fell back to UTC.
type Built struct {
	Document string
	UID      string
	Start    time.Time
	End      time.Time
	Warnings []string
}

// Skipped means the event could not be built; Warning says why.
type Skipped struct {
	Warning string
}

func (Built) isBuildOutcome()   {}
func (Skipped) isBuildOutcome() {}

// ResolvedTimeWindow is an event's start and end in UTC.
type ResolvedTimeWindow struct {
	Start    time.Time
	End      time.Time
	Warnings []string
}

type Builder struct {
	resolver *tz.Resolver
	dates    *DateParser
	now      func() time.Time
}

// NewBuilder returns a builder using resolver for timezone hints and w for
// relative dates. now may be nil.
func NewBuilder(resolver *tz.Resolver, w *when.Parser, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	b := &Builder{
		resolver: resolver,
		now:      now,
	}
	b.dates = NewDateParser(w, func() time.Time { return b.now().In(resolver.Local()) })
	return b
}

// Build turns one validated record into a calendar document holding a single
// VEVENT. It never fails the batch: a record that can't be built comes back
// as Skipped.
func (b *Builder) Build(record model.EventRecord) BuildOutcome {
	window, err := b.ResolveWindow(record)
	if err != nil {
		warning := fmt.Sprintf("Skipping '%s' - can't parse its date/time: %s", displayTitle(record), err)
		slog.Warn("can't build event", "title", record.Title, "error", err)
		return Skipped{Warning: warning}
	}

	cal := ics.NewCalendar()
	cal.SetProductId(ProdID)
	cal.SetVersion(Version)

	event := cal.AddEvent(record.UID)
	event.SetDtStampTime(b.now())
	event.SetStartAt(window.Start)
	event.SetEndAt(window.End)
	title := record.Title
	if title == "" {
		title = DefaultTitle
	}
	event.SetSummary(title)
	if record.Location != "" {
		event.SetLocation(record.Location)
	}
	if record.Description != "" {
		event.SetDescription(record.Description)
	}

	alarm := event.AddAlarm()
	alarm.SetAction(ics.ActionDisplay)
	alarm.SetProperty(ics.ComponentPropertyDescription, "Reminder")
	alarm.SetTrigger(ReminderTrigger)

	return Built{
		Document: serialize(cal),
		UID:      record.UID,
		Start:    window.Start,
		End:      window.End,
		Warnings: window.Warnings,
	}
}

// ResolveWindow parses the record's date and times in its timezone and
// returns them in UTC. An end that is not after the start is reported as a
// warning, not an error.
func (b *Builder) ResolveWindow(record model.EventRecord) (ResolvedTimeWindow, error) {
	year, month, day, err := b.dates.Parse(record.Date)
	if err != nil {
		return ResolvedTimeWindow{}, err
	}
	startHour, startMin, startSec, err := ParseClock(record.StartTime)
	if err != nil {
		return ResolvedTimeWindow{}, fmt.Errorf("start time: %w", err)
	}
	endHour, endMin, endSec, err := ParseClock(record.EndTime)
	if err != nil {
		return ResolvedTimeWindow{}, fmt.Errorf("end time: %w", err)
	}

	var window ResolvedTimeWindow
	loc, warning := b.resolver.Resolve(record.Timezone, record.Title)
	if warning != "" {
		window.Warnings = append(window.Warnings, warning)
	}

	window.Start = tz.Localize(loc, year, month, day, startHour, startMin, startSec).UTC()
	window.End = tz.Localize(loc, year, month, day, endHour, endMin, endSec).UTC()
	if !window.End.After(window.Start) {
		window.Warnings = append(window.Warnings, fmt.Sprintf(
			"'%s' ends at or before it starts (%s to %s). Please verify the times in your calendar.",
			displayTitle(record), record.StartTime, record.EndTime,
		))
	}
	return window, nil
}

func displayTitle(record model.EventRecord) string {
	if record.Title == "" {
		return DefaultTitle
	}
	return record.Title
}
