package report

import (
	"time"

	"github.com/m3-org/ainews/pkg/model"
)

// Status is the result kind of one daily run
type Status string

const (
	// StatusGenerated means a report was generated and stored
	StatusGenerated Status = "generated"
	// StatusNoContent means the day had no items; nothing was stored
	StatusNoContent Status = "no_content"
	// StatusReconciled means a report already existed and its files were checked
	StatusReconciled Status = "reconciled"
	// StatusFailed means the run stopped on an error, see Outcome.Err
	StatusFailed Status = "failed"
)

// Outcome reports what a run did. Runs never return Go errors; failures are carried here.
type Outcome struct {
	Status Status
	Date   time.Time
	Report *model.DailyReport

	// Groups is the number of groups sent to the text generator
	Groups int
	// FailedTopics lists the groups whose summary could not be generated
	FailedTopics []string

	Reconcile *ReconcileResult
	Err       error
}

// Failed reports whether the run ended with an error
func (o *Outcome) Failed() bool {
	return o.Status == StatusFailed
}

func failed(date time.Time, err error) *Outcome {
	return &Outcome{
		Status: StatusFailed,
		Date:   date,
		Err:    err,
	}
}
