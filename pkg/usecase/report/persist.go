package report

import (
	"context"
	"encoding/json"
	"path"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
)

func (uc *UseCase) structuredPath(label string) string {
	return path.Join(uc.jsonDir, label+".json")
}

func (uc *UseCase) narrativePath(label string) string {
	return path.Join(uc.markdownDir, label+".md")
}

func marshalProjection(report *model.DailyReport) ([]byte, error) {
	projection, err := report.Projection()
	if err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(projection, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal report projection", goerr.V("id", report.ID))
	}
	return append(raw, '\n'), nil
}

// Save stores the report record and then overwrites its structured and narrative files
func (uc *UseCase) Save(ctx context.Context, report *model.DailyReport) error {
	label := model.DateLabel(report.Day())

	if err := uc.reports.SaveReport(ctx, report); err != nil {
		return goerr.Wrap(err, "failed to save report", goerr.V("date", label))
	}

	structured, err := marshalProjection(report)
	if err != nil {
		return err
	}

	jsonPath := uc.structuredPath(label)
	if err := uc.artifacts.Write(ctx, jsonPath, structured); err != nil {
		return goerr.Wrap(err, "failed to write structured report", goerr.V("path", jsonPath))
	}

	mdPath := uc.narrativePath(label)
	if err := uc.artifacts.Write(ctx, mdPath, []byte(report.Narrative)); err != nil {
		return goerr.Wrap(err, "failed to write narrative report", goerr.V("path", mdPath))
	}

	logging.From(ctx).Info("report saved", "id", report.ID, "json", jsonPath, "markdown", mdPath)
	return nil
}
