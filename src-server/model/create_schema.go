package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

func CreateSchema(ctx context.Context, db *bun.DB) error {
	if err := db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []interface{}{
			(*GeneratedCalendar)(nil),
		} {
			if _, err := tx.
				NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}
		if _, err := tx.
			NewCreateIndex().
			Model((*GeneratedCalendar)(nil)).
			Index("generated_calendars_created_at_idx").
			Column("created_at_unix_utc").
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
		return nil
	}); err != nil {
		return fmt.Errorf("CreateSchema: %w", err)
	}

	return nil
}
