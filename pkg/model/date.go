package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const dateLayout = "2006-01-02"

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayWindow returns the epoch-second window [start, start+24h) of the day containing t
func DayWindow(t time.Time) (start, end int64) {
	s := StartOfDay(t)
	return s.Unix(), s.Add(24 * time.Hour).Unix()
}

// DateLabel formats the day containing t as YYYY-MM-DD
func DateLabel(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD string into the start of that day in UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, goerr.Wrap(ErrInvalidDate, "failed to parse date", goerr.V("date", s), goerr.V("error", err.Error()))
	}
	return t, nil
}
