package repository

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/retry"
	"google.golang.org/api/iterator"
)

const (
	collectionContentItems = "content_items"
	collectionDailyReports = "daily_reports"

	// firestore limits a batch to 500 writes
	firestoreBatchSize = 500
)

// Firestore implements Repository interface using Firestore
type Firestore struct {
	client *firestore.Client
	retry  retry.Config
}

// NewFirestore creates a new Firestore repository. An empty databaseID selects the default database.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		)
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 4
	return &Firestore{client: client, retry: cfg}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

// documentID makes a firestore-safe document ID; '/' separates path segments
func documentID(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}

func reportDocumentID(reportType string, date int64) string {
	return fmt.Sprintf("%s-%d", documentID(reportType), date)
}

func (r *Firestore) PutContentItems(ctx context.Context, items []*model.ContentItem) error {
	for i, item := range items {
		if item == nil || item.CID == "" {
			return goerr.New("content item has no cid", goerr.V("index", i))
		}
	}

	for start := 0; start < len(items); start += firestoreBatchSize {
		end := min(start+firestoreBatchSize, len(items))

		_, err := retry.Do(ctx, r.retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
				for _, item := range items[start:end] {
					doc := r.client.Collection(collectionContentItems).Doc(documentID(item.CID))
					if err := tx.Set(doc, item); err != nil {
						return goerr.Wrap(err, "failed to set content item", goerr.V("cid", item.CID))
					}
				}
				return nil
			})
		})
		if err != nil {
			return goerr.Wrap(err, "failed to put content items", goerr.V("offset", start))
		}
	}
	return nil
}

func (r *Firestore) GetContentItemsBetweenEpoch(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error) {
	q := r.client.Collection(collectionContentItems).
		Where("date", ">=", start).
		Where("date", "<", end)
	if source != "" {
		q = q.Where("source", "==", source)
	}
	q = q.OrderBy("date", firestore.Asc)

	items, err := retry.Do(ctx, r.retry, func(ctx context.Context) ([]*model.ContentItem, error) {
		return collect[model.ContentItem](ctx, q)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get content items",
			goerr.V("start", start),
			goerr.V("end", end),
			goerr.V("source", source),
		)
	}
	return items, nil
}

// SaveReport writes the report to a document keyed by type and date, replacing any previous report of that day
func (r *Firestore) SaveReport(ctx context.Context, report *model.DailyReport) error {
	doc := r.client.Collection(collectionDailyReports).Doc(reportDocumentID(report.Type, report.Date))

	_, err := retry.Do(ctx, r.retry, func(ctx context.Context) (*firestore.WriteResult, error) {
		return doc.Set(ctx, report)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to save report",
			goerr.V("id", report.ID),
			goerr.V("date", report.Date),
		)
	}
	return nil
}

func (r *Firestore) GetReportsBetweenEpoch(ctx context.Context, start, end int64) ([]*model.DailyReport, error) {
	q := r.client.Collection(collectionDailyReports).
		Where("date", ">=", start).
		Where("date", "<", end).
		OrderBy("date", firestore.Desc)

	reports, err := retry.Do(ctx, r.retry, func(ctx context.Context) ([]*model.DailyReport, error) {
		return collect[model.DailyReport](ctx, q)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get reports",
			goerr.V("start", start),
			goerr.V("end", end),
		)
	}
	return reports, nil
}

func collect[T any](ctx context.Context, q firestore.Query) ([]*T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var results []*T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents")
		}

		var v T
		if err := doc.DataTo(&v); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.V("doc_id", doc.Ref.ID))
		}
		results = append(results, &v)
	}
	return results, nil
}
