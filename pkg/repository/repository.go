// Package repository implements the content source and the daily report store on SQLite,
// Firestore and BigQuery.
package repository

import (
	"github.com/m3-org/ainews/pkg/interfaces"
)

var (
	_ interfaces.Repository    = (*SQLite)(nil)
	_ interfaces.Repository    = (*Firestore)(nil)
	_ interfaces.ContentSource = (*BigQuerySource)(nil)
)
