package interfaces

import (
	"context"

	"github.com/m3-org/ainews/pkg/model"
)

// ContentSource provides the content items collected upstream
type ContentSource interface {
	// GetContentItemsBetweenEpoch returns items whose date is in [start, end).
	// An empty source matches every source.
	GetContentItemsBetweenEpoch(ctx context.Context, start, end int64, source string) ([]*model.ContentItem, error)
}

// ContentWriter stores content items. Used by ingestion, not by the daily pipeline.
type ContentWriter interface {
	PutContentItems(ctx context.Context, items []*model.ContentItem) error
}

// ReportRepository is the durable record store for daily reports
type ReportRepository interface {
	// SaveReport stores the report. At most one report is kept per (type, date);
	// saving again for the same day replaces the previous record.
	SaveReport(ctx context.Context, report *model.DailyReport) error

	// GetReportsBetweenEpoch returns reports whose date is in [start, end), newest first
	GetReportsBetweenEpoch(ctx context.Context, start, end int64) ([]*model.DailyReport, error)
}

// Repository combines the content source and the report store of one backend
type Repository interface {
	ContentSource
	ContentWriter
	ReportRepository
}
