package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		return execAll(ctx, db,
			`CREATE TABLE books (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				slug TEXT NOT NULL,
				title TEXT NOT NULL,
				subtitle TEXT,
				description TEXT,
				isbn13 TEXT,
				isbn10 TEXT,
				language TEXT,
				publisher TEXT,
				page_count INTEGER,
				published_date TIMESTAMPTZ
			)`,
			`CREATE UNIQUE INDEX ux_books_slug ON books (slug)`,
			`CREATE UNIQUE INDEX ux_books_isbn13 ON books (isbn13)`,
			`CREATE UNIQUE INDEX ux_books_isbn10 ON books (isbn10)`,
			`CREATE INDEX ix_books_updated_at ON books (updated_at)`,

			`CREATE TABLE authors (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				normalized_name TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX ux_authors_normalized_name ON authors (normalized_name)`,
			`CREATE TABLE book_authors (
				book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				author_id TEXT NOT NULL REFERENCES authors (id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				PRIMARY KEY (book_id, author_id)
			)`,
			`CREATE INDEX ix_book_authors_author_id ON book_authors (author_id)`,

			`CREATE TABLE categories (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				normalized_name TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX ux_categories_normalized_name ON categories (normalized_name)`,
			`CREATE TABLE book_categories (
				book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				category_id TEXT NOT NULL REFERENCES categories (id) ON DELETE CASCADE,
				PRIMARY KEY (book_id, category_id)
			)`,

			`CREATE TABLE book_external_ids (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				source TEXT NOT NULL,
				external_id TEXT NOT NULL,
				canonical_external_id TEXT,
				provider_isbn10 TEXT,
				provider_isbn13 TEXT,
				info_link TEXT,
				preview_link TEXT,
				canonical_volume_link TEXT,
				web_reader_link TEXT,
				average_rating DOUBLE PRECISION,
				ratings_count INTEGER,
				is_ebook BOOLEAN,
				pdf_available BOOLEAN,
				epub_available BOOLEAN,
				embeddable BOOLEAN,
				public_domain BOOLEAN,
				viewability TEXT,
				saleability TEXT,
				list_price DOUBLE PRECISION,
				retail_price DOUBLE PRECISION,
				currency_code TEXT
			)`,
			`CREATE UNIQUE INDEX ux_book_external_ids_source_external_id ON book_external_ids (source, external_id)`,
			`CREATE UNIQUE INDEX ux_book_external_ids_book_id_source ON book_external_ids (book_id, source)`,
			`CREATE INDEX ix_book_external_ids_canonical ON book_external_ids (canonical_external_id)`,

			`CREATE TABLE book_image_links (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				size TEXT NOT NULL,
				url TEXT NOT NULL,
				source TEXT NOT NULL,
				width INTEGER,
				height INTEGER,
				is_high_resolution BOOLEAN NOT NULL DEFAULT FALSE,
				storage_path TEXT
			)`,
			`CREATE UNIQUE INDEX ux_book_image_links_book_id_size ON book_image_links (book_id, size)`,

			`CREATE TABLE book_dimensions (
				book_id TEXT PRIMARY KEY REFERENCES books (id) ON DELETE CASCADE,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				height TEXT,
				width TEXT,
				thickness TEXT,
				height_cm DOUBLE PRECISION,
				width_cm DOUBLE PRECISION,
				thickness_cm DOUBLE PRECISION
			)`,

			`CREATE TABLE work_clusters (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				method TEXT NOT NULL,
				cluster_key TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX ux_work_clusters_method_key ON work_clusters (method, cluster_key)`,
			`CREATE TABLE work_cluster_members (
				cluster_id TEXT NOT NULL REFERENCES work_clusters (id) ON DELETE CASCADE,
				book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				is_primary BOOLEAN NOT NULL DEFAULT FALSE,
				joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (cluster_id, book_id)
			)`,
			// Exactly one primary per cluster.
			`CREATE UNIQUE INDEX ux_work_cluster_members_primary ON work_cluster_members (cluster_id) WHERE is_primary = TRUE`,
			`CREATE INDEX ix_work_cluster_members_book_id ON work_cluster_members (book_id)`,
		)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		return execAll(ctx, db,
			`DROP TABLE IF EXISTS work_cluster_members`,
			`DROP TABLE IF EXISTS work_clusters`,
			`DROP TABLE IF EXISTS book_dimensions`,
			`DROP TABLE IF EXISTS book_image_links`,
			`DROP TABLE IF EXISTS book_external_ids`,
			`DROP TABLE IF EXISTS book_categories`,
			`DROP TABLE IF EXISTS categories`,
			`DROP TABLE IF EXISTS book_authors`,
			`DROP TABLE IF EXISTS authors`,
			`DROP TABLE IF EXISTS books`,
		)
	}

	Migrations.MustRegister(up, down)
}
