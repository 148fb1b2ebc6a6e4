package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidDate = goerr.New("invalid date")
)

// ReportTypeDaily is the report type written by the daily pipeline
const ReportTypeDaily = "dailySummary"

type ReportID string

// NewReportID generates a new unique ReportID
func NewReportID() ReportID {
	return ReportID(uuid.New().String())
}

// DailyReport is the durable, canonical representation of one day's report.
// Files derived from it are rewritten to match it, never the other way around.
type DailyReport struct {
	ID         ReportID  `json:"id" firestore:"id"`
	Type       string    `json:"type" firestore:"type"`
	Title      string    `json:"title" firestore:"title"`
	Categories string    `json:"categories" firestore:"categories"`
	Narrative  string    `json:"narrative" firestore:"narrative"`
	Date       int64     `json:"date" firestore:"date"`
	CreatedAt  time.Time `json:"created_at" firestore:"created_at"`
}

// ReportProjection is the comparable view of a report written to the structured file
type ReportProjection struct {
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Categories []*GroupSummary `json:"categories"`
	Date       int64           `json:"date"`
}

// NewDailyReport builds a report record for the day containing date
func NewDailyReport(date time.Time, summaries []*GroupSummary, narrative string) (*DailyReport, error) {
	if summaries == nil {
		summaries = []*GroupSummary{}
	}
	raw, err := json.Marshal(summaries)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal categories")
	}

	day := StartOfDay(date)
	return &DailyReport{
		ID:         NewReportID(),
		Type:       ReportTypeDaily,
		Title:      "Daily Report - " + DateLabel(day),
		Categories: string(raw),
		Narrative:  narrative,
		Date:       day.Unix(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Projection parses the serialized categories and returns the structured file view
func (r *DailyReport) Projection() (*ReportProjection, error) {
	categories := []*GroupSummary{}
	if r.Categories != "" {
		if err := json.Unmarshal([]byte(r.Categories), &categories); err != nil {
			return nil, goerr.Wrap(err, "failed to parse report categories", goerr.V("id", r.ID))
		}
	}

	return &ReportProjection{
		Type:       r.Type,
		Title:      r.Title,
		Categories: categories,
		Date:       r.Date,
	}, nil
}

// Day returns the calendar day of the report in UTC
func (r *DailyReport) Day() time.Time {
	return time.Unix(r.Date, 0).UTC()
}
