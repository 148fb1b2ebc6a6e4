package report

import (
	"context"
	"time"

	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
)

// Yesterday returns the start of the UTC day before now
func Yesterday(now time.Time) time.Time {
	return model.StartOfDay(now).Add(-24 * time.Hour)
}

// Run is the scheduled entry point. It generates the report of yesterday, or only
// reconciles its files when a report for that day is already stored.
func (uc *UseCase) Run(ctx context.Context) *Outcome {
	day := Yesterday(uc.now())
	logger := logging.From(ctx).With("date", model.DateLabel(day))
	ctx = logging.With(ctx, logger)

	existing, err := uc.latestReport(ctx, day)
	if err != nil {
		logger.Error("scheduled run failed", "error", err)
		return failed(day, err)
	}

	if existing == nil {
		logger.Info("no stored report, generating")
		return uc.Generate(ctx, day)
	}

	logger.Info("report already stored, reconciling files", "report_id", existing.ID)
	return &Outcome{
		Status:    StatusReconciled,
		Date:      day,
		Report:    existing,
		Reconcile: uc.Reconcile(ctx, day, existing),
	}
}
