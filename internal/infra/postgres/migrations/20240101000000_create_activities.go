package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const createActivitiesSQL = `
CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	cost BIGINT NOT NULL,
	icon_id TEXT,
	question_acceptable BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS activities_cost_idx ON activities (cost);
`

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createActivitiesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS activities`)
			return err
		},
	)
}
