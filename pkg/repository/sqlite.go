package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
	_ "modernc.org/sqlite"
)

// SQLite is a single-file repository for local runs and tests
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS content_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cid TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    link TEXT NOT NULL DEFAULT '',
    topics TEXT NOT NULL DEFAULT '[]',
    date INTEGER NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_content_items_date ON content_items(date);
CREATE INDEX IF NOT EXISTS idx_content_items_source ON content_items(source);

CREATE TABLE IF NOT EXISTS daily_reports (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    categories TEXT NOT NULL,
    narrative TEXT NOT NULL,
    date INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE(type, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_reports_date ON daily_reports(date);
`

// NewSQLite opens the database at dsn and creates the tables if needed.
// ":memory:" gives a private in-memory database.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("dsn", dsn))
	}

	// every connection of an in-memory database is a different database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to set busy timeout")
	}

	repo := &SQLite{db: db}
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates missing tables and indexes
func (r *SQLite) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return goerr.Wrap(err, "failed to run migrations")
	}
	return nil
}

func (r *SQLite) Close() error {
	return r.db.Close()
}

// PutContentItems inserts items, replacing existing rows with the same cid
func (r *SQLite) PutContentItems(ctx context.Context, items []*model.ContentItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO content_items (id, cid, type, source, title, text, link, topics, date, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO UPDATE SET
			type = excluded.type,
			source = excluded.source,
			title = excluded.title,
			text = excluded.text,
			link = excluded.link,
			topics = excluded.topics,
			date = excluded.date,
			metadata = excluded.metadata
	`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for _, item := range items {
		if item.CID == "" {
			return goerr.New("content item has no cid", goerr.V("title", item.Title))
		}

		topics, err := json.Marshal(nonNilStrings(item.Topics))
		if err != nil {
			return goerr.Wrap(err, "failed to marshal topics", goerr.V("cid", item.CID))
		}
		metadata, err := json.Marshal(nonNilMap(item.Metadata))
		if err != nil {
			return goerr.Wrap(err, "failed to marshal metadata", goerr.V("cid", item.CID))
		}

		var id sql.NullInt64
		if item.ID != 0 {
			id = sql.NullInt64{Int64: item.ID, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			id,
			item.CID,
			item.Type,
			item.Source,
			item.Title,
			item.Text,
			item.Link,
			string(topics),
			item.Date,
			string(metadata),
		); err != nil {
			return goerr.Wrap(err, "failed to insert content item", goerr.V("cid", item.CID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit content items")
	}
	return nil
}

func (r *SQLite) GetContentItemsBetweenEpoch(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cid, type, source, title, text, link, topics, date, metadata
		FROM content_items
		WHERE date >= ? AND date < ? AND (? = '' OR source = ?)
		ORDER BY date, id
	`, start, end, source, source)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query content items",
			goerr.V("start", start),
			goerr.V("end", end),
		)
	}
	defer rows.Close()

	var items []*model.ContentItem
	for rows.Next() {
		var item model.ContentItem
		var topics, metadata string
		if err := rows.Scan(
			&item.ID,
			&item.CID,
			&item.Type,
			&item.Source,
			&item.Title,
			&item.Text,
			&item.Link,
			&topics,
			&item.Date,
			&metadata,
		); err != nil {
			return nil, goerr.Wrap(err, "failed to scan content item")
		}

		if err := json.Unmarshal([]byte(topics), &item.Topics); err != nil {
			return nil, goerr.Wrap(err, "failed to parse topics", goerr.V("cid", item.CID))
		}
		if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
			return nil, goerr.Wrap(err, "failed to parse metadata", goerr.V("cid", item.CID))
		}
		if len(item.Metadata) == 0 {
			item.Metadata = nil
		}
		if len(item.Topics) == 0 {
			item.Topics = nil
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate content items")
	}

	return items, nil
}

// SaveReport upserts the report; the (type, date) pair identifies the row
func (r *SQLite) SaveReport(ctx context.Context, report *model.DailyReport) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_reports (id, type, title, categories, narrative, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, date) DO UPDATE SET
			id = excluded.id,
			title = excluded.title,
			categories = excluded.categories,
			narrative = excluded.narrative,
			created_at = excluded.created_at
	`,
		string(report.ID),
		report.Type,
		report.Title,
		report.Categories,
		report.Narrative,
		report.Date,
		report.CreatedAt.UnixNano(),
	); err != nil {
		return goerr.Wrap(err, "failed to save report",
			goerr.V("id", report.ID),
			goerr.V("date", report.Date),
		)
	}
	return nil
}

func (r *SQLite) GetReportsBetweenEpoch(ctx context.Context, start, end int64) ([]*model.DailyReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, title, categories, narrative, date, created_at
		FROM daily_reports
		WHERE date >= ? AND date < ?
		ORDER BY date DESC, created_at DESC
	`, start, end)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query reports",
			goerr.V("start", start),
			goerr.V("end", end),
		)
	}
	defer rows.Close()

	var reports []*model.DailyReport
	for rows.Next() {
		var report model.DailyReport
		var id string
		var createdAt int64
		if err := rows.Scan(
			&id,
			&report.Type,
			&report.Title,
			&report.Categories,
			&report.Narrative,
			&report.Date,
			&createdAt,
		); err != nil {
			return nil, goerr.Wrap(err, "failed to scan report")
		}
		report.ID = model.ReportID(id)
		report.CreatedAt = time.Unix(0, createdAt).UTC()
		reports = append(reports, &report)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate reports")
	}

	return reports, nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilMap(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
