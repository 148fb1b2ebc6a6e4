package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/adapter"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
)

var (
	ErrScanLimitExceeded = goerr.New("query would scan more bytes than allowed")
	ErrInvalidTableName  = goerr.New("invalid table name")
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+){1,2}$`)

// BigQuerySource reads content items from a BigQuery table exported by the collectors.
// Expected columns: id INT64, cid STRING, type STRING, source STRING, title STRING,
// text STRING, link STRING, topics ARRAY<STRING>, date INT64, metadata JSON or STRING.
type BigQuerySource struct {
	bq        adapter.BigQuery
	table     string
	scanLimit int64
}

type BigQuerySourceOption func(*BigQuerySource)

// WithScanLimit rejects queries that would scan more than limit bytes. 0 disables the check.
func WithScanLimit(limit int64) BigQuerySourceOption {
	return func(s *BigQuerySource) {
		s.scanLimit = limit
	}
}

// NewBigQuerySource creates a content source for table given as dataset.table or project.dataset.table
func NewBigQuerySource(bq adapter.BigQuery, table string, opts ...BigQuerySourceOption) (*BigQuerySource, error) {
	if !tableNameRegex.MatchString(table) {
		return nil, goerr.Wrap(ErrInvalidTableName, "failed to create bigquery source", goerr.V("table", table))
	}

	s := &BigQuerySource{bq: bq, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *BigQuerySource) GetContentItemsBetweenEpoch(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error) {
	query := fmt.Sprintf("SELECT id, cid, type, source, title, text, link, topics, date, metadata "+
		"FROM `%s` WHERE date >= @start AND date < @end AND (@source = '' OR source = @source) "+
		"ORDER BY date, id", s.table)
	params := []bigquery.QueryParameter{
		{Name: "start", Value: start},
		{Name: "end", Value: end},
		{Name: "source", Value: source},
	}

	if s.scanLimit > 0 {
		bytes, err := s.bq.DryRun(ctx, query, params)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to estimate content query", goerr.V("table", s.table))
		}
		if bytes > s.scanLimit {
			return nil, goerr.Wrap(ErrScanLimitExceeded, "content query rejected",
				goerr.V("table", s.table),
				goerr.V("bytes", bytes),
				goerr.V("limit", s.scanLimit),
			)
		}
		logging.From(ctx).Debug("content query estimated", "table", s.table, "bytes", bytes)
	}

	rows, err := s.bq.Query(ctx, query, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query content items",
			goerr.V("table", s.table),
			goerr.V("start", start),
			goerr.V("end", end),
		)
	}

	items := make([]*model.ContentItem, 0, len(rows))
	for i, row := range rows {
		item, err := rowToContentItem(row)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert row", goerr.V("row", i))
		}
		items = append(items, item)
	}
	return items, nil
}

func rowToContentItem(row map[string]bigquery.Value) (*model.ContentItem, error) {
	item := &model.ContentItem{
		ID:     toInt64(row["id"]),
		CID:    toString(row["cid"]),
		Type:   toString(row["type"]),
		Source: toString(row["source"]),
		Title:  toString(row["title"]),
		Text:   toString(row["text"]),
		Link:   toString(row["link"]),
		Date:   toInt64(row["date"]),
	}

	if topics, ok := row["topics"].([]bigquery.Value); ok {
		for _, t := range topics {
			if s := toString(t); s != "" {
				item.Topics = append(item.Topics, s)
			}
		}
	}

	if raw := toString(row["metadata"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &item.Metadata); err != nil {
			return nil, goerr.Wrap(err, "failed to parse metadata", goerr.V("cid", item.CID))
		}
	}

	return item, nil
}

func toString(v bigquery.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func toInt64(v bigquery.Value) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case time.Time:
		return x.Unix()
	default:
		return 0
	}
}
