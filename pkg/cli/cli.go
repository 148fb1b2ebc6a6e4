package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/model"
	"github.com/m3-org/ainews/pkg/usecase/report"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "ainews",
		Usage: "Daily content classification and report generation",
		Commands: []*cli.Command{
			generateCommand(),
			runCommand(),
			reconcileCommand(),
			scheduleCommand(),
			importCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// reportCommandFlags returns every flag needed to build the report usecase
func reportCommandFlags(cfg *config) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, globalFlags(cfg)...)
	flags = append(flags, sourceFlags(cfg)...)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, outputFlags(cfg)...)
	flags = append(flags, reportFlags(cfg)...)
	return flags
}

// parseDateFlag returns the day of value, or yesterday when value is empty
func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return report.Yesterday(time.Now()), nil
	}
	return model.ParseDate(value)
}

func printOutcome(w io.Writer, outcome *report.Outcome) error {
	label := model.DateLabel(outcome.Date)

	switch outcome.Status {
	case report.StatusGenerated:
		fmt.Fprintf(w, "Report generated for %s: %d groups", label, outcome.Groups)
		if len(outcome.FailedTopics) > 0 {
			fmt.Fprintf(w, ", failed topics: %v", outcome.FailedTopics)
		}
		fmt.Fprintln(w)
	case report.StatusNoContent:
		fmt.Fprintf(w, "No content for %s, nothing generated\n", label)
	case report.StatusReconciled:
		printReconcile(w, label, outcome.Reconcile)
	}

	if outcome.Failed() {
		return goerr.Wrap(outcome.Err, "report run failed", goerr.V("date", label))
	}
	return nil
}

func printReconcile(w io.Writer, label string, result *report.ReconcileResult) {
	if result == nil {
		return
	}
	fmt.Fprintf(w, "Report files reconciled for %s: structured rewritten=%t, narrative rewritten=%t\n",
		label, result.StructuredRewritten, result.NarrativeRewritten)
	for _, err := range result.Errors {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
}
