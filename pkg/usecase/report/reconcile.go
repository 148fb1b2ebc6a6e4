package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/interfaces"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/utils/logging"
)

var ErrReportNotFound = goerr.New("report not found")

// ReconcileResult tells which files were rewritten from the stored record
type ReconcileResult struct {
	StructuredRewritten bool
	NarrativeRewritten  bool
	Errors              []error
}

// canonicalJSON decodes and re-encodes raw so that formatting and key order do not matter
func canonicalJSON(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Reconcile makes the files of the day match the stored record. The record is never
// modified; files are rewritten only when missing or different. Failures are logged and
// collected in the result.
func (uc *UseCase) Reconcile(ctx context.Context, date time.Time, report *model.DailyReport) *ReconcileResult {
	label := model.DateLabel(model.StartOfDay(date))
	logger := logging.From(ctx).With("date", label, "report_id", report.ID)
	result := &ReconcileResult{}

	expected, err := marshalProjection(report)
	if err != nil {
		logger.Error("stored report cannot be projected", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		jsonPath := uc.structuredPath(label)
		rewritten, err := uc.reconcileFile(ctx, jsonPath, expected, structuredEqual)
		result.StructuredRewritten = rewritten
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	mdPath := uc.narrativePath(label)
	rewritten, err := uc.reconcileFile(ctx, mdPath, []byte(report.Narrative), bytes.Equal)
	result.NarrativeRewritten = rewritten
	if err != nil {
		result.Errors = append(result.Errors, err)
	}

	logger.Info("report files reconciled",
		"structured_rewritten", result.StructuredRewritten,
		"narrative_rewritten", result.NarrativeRewritten,
		"errors", len(result.Errors),
	)
	return result
}

func structuredEqual(current, expected []byte) bool {
	a, err := canonicalJSON(current)
	if err != nil {
		return false
	}
	b, err := canonicalJSON(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (uc *UseCase) reconcileFile(ctx context.Context, path string, expected []byte, equal func(current, expected []byte) bool) (bool, error) {
	logger := logging.From(ctx).With("path", path)

	current, err := uc.artifacts.Read(ctx, path)
	switch {
	case errors.Is(err, interfaces.ErrArtifactNotFound):
		logger.Warn("report file missing, rewriting")
	case err != nil:
		logger.Warn("failed to read report file, rewriting", "error", err)
	case equal(current, expected):
		return false, nil
	default:
		logger.Warn("report file differs from stored record, rewriting")
	}

	if err := uc.artifacts.Write(ctx, path, expected); err != nil {
		err = goerr.Wrap(err, "failed to rewrite report file", goerr.V("path", path))
		logger.Error("report file not reconciled", "error", err)
		return false, err
	}
	return true, nil
}

// latestReport returns the newest stored report of the day containing date, or nil
func (uc *UseCase) latestReport(ctx context.Context, date time.Time) (*model.DailyReport, error) {
	start, end := model.DayWindow(date)
	reports, err := uc.reports.GetReportsBetweenEpoch(ctx, start, end)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up report", goerr.V("start", start), goerr.V("end", end))
	}
	for _, r := range reports {
		if r.Type == model.ReportTypeDaily {
			return r, nil
		}
	}
	return nil, nil
}

// ReconcileDate reconciles the files of an already stored report
func (uc *UseCase) ReconcileDate(ctx context.Context, date time.Time) (*ReconcileResult, error) {
	report, err := uc.latestReport(ctx, date)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, goerr.Wrap(ErrReportNotFound, "nothing to reconcile", goerr.V("date", model.DateLabel(date)))
	}
	return uc.Reconcile(ctx, date, report), nil
}
