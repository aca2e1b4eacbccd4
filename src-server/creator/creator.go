package creator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nlcal/src-server/extract"
	"nlcal/src-server/ical"
	"nlcal/src-server/model"
)

var (
	ErrEmptyRequest = errors.New("no event description or images provided")
	ErrNoEvents     = errors.New("API returned no event data")
	ErrNothingBuilt = errors.New("failed to build ICS content from event data")
)

// Extractor is satisfied by *extract.Client.
type Extractor interface {
	Extract(ctx context.Context, description string, images []extract.Image, status extract.StatusFunc) ([]extract.RawEvent, error)
}

// Observer is told how each creation went. Implementations must not block.
type Observer interface {
	ObserveExtraction(took time.Duration, err error)
	ObserveBuild(built, skipped int)
}

type Result struct {
	Document string
	Warnings []string
	Events   []ical.Built
}

type Creator struct {
	extractor Extractor
	builder   *ical.Builder
	merger    *ical.Merger
	observer  Observer
}

func New(extractor Extractor, builder *ical.Builder, merger *ical.Merger, observer Observer) *Creator {
	return &Creator{
		extractor: extractor,
		builder:   builder,
		merger:    merger,
		observer:  observer,
	}
}

// Create turns a description and optional images into one calendar document.
// Events that fail validation or can't be built are reported in
// Result.Warnings; the request only fails when nothing could be built.
func (c *Creator) Create(ctx context.Context, description string, images []extract.Image, status extract.StatusFunc) (Result, error) {
	if status == nil {
		status = func(string) {}
	}
	description = strings.TrimSpace(description)
	if description == "" && len(images) == 0 {
		return Result{}, ErrEmptyRequest
	}

	start := time.Now()
	rawEvents, err := c.extractor.Extract(ctx, description, images, status)
	if c.observer != nil {
		c.observer.ObserveExtraction(time.Since(start), err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("(*Creator).Create: %w", err)
	}
	if len(rawEvents) == 0 {
		return Result{}, ErrNoEvents
	}

	var result Result
	documents := make([]string, 0, len(rawEvents))
	skipped := 0
	for i, raw := range rawEvents {
		record, err := model.EventRecordFromMap(raw, i)
		if err != nil {
			slog.Warn("invalid event from model", "index", i, "error", err)
			result.Warnings = append(result.Warnings, err.Error())
			skipped++
			continue
		}
		switch outcome := c.builder.Build(record).(type) {
		case ical.Built:
			documents = append(documents, outcome.Document)
			result.Events = append(result.Events, outcome)
			result.Warnings = append(result.Warnings, outcome.Warnings...)
		case ical.Skipped:
			result.Warnings = append(result.Warnings, outcome.Warning)
			skipped++
		}
	}
	if c.observer != nil {
		c.observer.ObserveBuild(len(documents), skipped)
	}
	if len(result.Warnings) > 0 {
		status("Warnings: " + strings.Join(result.Warnings, " | "))
	}
	if len(documents) == 0 {
		return result, ErrNothingBuilt
	}

	result.Document, err = c.merger.Merge(documents)
	if err != nil {
		return result, fmt.Errorf("(*Creator).Create: %w", err)
	}
	slog.Info("created calendar", "events", len(documents), "warnings", len(result.Warnings))
	return result, nil
}
