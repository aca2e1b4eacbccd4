package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// A merged calendar handed out by one of the outer surfaces (HTTP, Discord).
type GeneratedCalendar struct {
	bun.BaseModel `bun:"table:generated_calendars"`

	ID               string   `bun:"id,pk"`
	Source           string   `bun:"source,notnull"`
	Description      string   `bun:"description"`
	EventCount       int      `bun:"event_count,notnull"`
	Warnings         []string `bun:"warnings"`
	Document         string   `bun:"document,notnull"`
	CreatedAtUnixUTC int64    `bun:"created_at_unix_utc,notnull"`
}

type HistoryStore struct {
	db  bun.IDB
	now func() time.Time
}

func NewHistoryStore(db bun.IDB) *HistoryStore {
	return &HistoryStore{db: db, now: time.Now}
}

// Save stores a merged calendar and returns its ID.
func (h *HistoryStore) Save(ctx context.Context, source, description, document string, eventCount int, warnings []string) (string, error) {
	calendarModel := &GeneratedCalendar{
		ID:               uuid.NewString(),
		Source:           source,
		Description:      description,
		EventCount:       eventCount,
		Warnings:         warnings,
		Document:         document,
		CreatedAtUnixUTC: h.now().UTC().Unix(),
	}
	if _, err := h.db.NewInsert().
		Model(calendarModel).
		Exec(ctx); err != nil {
		return "", fmt.Errorf("(*HistoryStore).Save: %w", err)
	}
	return calendarModel.ID, nil
}

func (h *HistoryStore) Get(ctx context.Context, id string) (*GeneratedCalendar, error) {
	calendarModel := new(GeneratedCalendar)
	if err := h.db.NewSelect().
		Model(calendarModel).
		Where("id = ?", id).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*HistoryStore).Get: %w", err)
	}
	return calendarModel, nil
}

// List returns the newest calendars first. The documents are left out.
func (h *HistoryStore) List(ctx context.Context, limit int) ([]GeneratedCalendar, error) {
	calendarModels := make([]GeneratedCalendar, 0)
	if err := h.db.NewSelect().
		Model(&calendarModels).
		ExcludeColumn("document").
		Order("created_at_unix_utc DESC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("(*HistoryStore).List: %w", err)
	}
	return calendarModels, nil
}

// Prune deletes calendars created before the cutoff.
func (h *HistoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := h.now().UTC().Add(-olderThan).Unix()
	res, err := h.db.NewDelete().
		Model((*GeneratedCalendar)(nil)).
		Where("created_at_unix_utc < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("(*HistoryStore).Prune: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("(*HistoryStore).Prune: %w", err)
	}
	return affected, nil
}

// Ping runs the cheapest query the store can make, used for latency metrics.
func (h *HistoryStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := h.db.NewSelect().
		Model((*GeneratedCalendar)(nil)).
		Where("id = ?", "").
		Exists(ctx); err != nil {
		return 0, fmt.Errorf("(*HistoryStore).Ping: %w", err)
	}
	return time.Since(start), nil
}
