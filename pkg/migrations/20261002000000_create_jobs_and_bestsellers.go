package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		return execAll(ctx, db,
			`CREATE TABLE jobs (
				id `+serialPK(db)+`,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				data TEXT,
				progress INTEGER NOT NULL DEFAULT 0,
				process_id TEXT,
				error TEXT
			)`,
			`CREATE INDEX ix_jobs_status_created_at ON jobs (status, created_at)`,

			`CREATE TABLE bestseller_list_entries (
				list_code TEXT NOT NULL,
				published_date TEXT NOT NULL,
				book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				rank INTEGER NOT NULL,
				weeks_on_list INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (list_code, published_date, book_id)
			)`,
			`CREATE INDEX ix_bestseller_list_entries_book_id ON bestseller_list_entries (book_id)`,
		)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		return execAll(ctx, db,
			`DROP TABLE IF EXISTS bestseller_list_entries`,
			`DROP TABLE IF EXISTS jobs`,
		)
	}

	Migrations.MustRegister(up, down)
}
