package adapter

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
)

// BigQuery is an interface for BigQuery operations
type BigQuery interface {
	// DryRun executes a query in dry-run mode and returns the number of bytes that will be scanned
	DryRun(ctx context.Context, query string, params []bigquery.QueryParameter) (int64, error)

	// Query executes a query, waits for completion and returns all rows
	Query(ctx context.Context, query string, params []bigquery.QueryParameter) ([]map[string]bigquery.Value, error)

	// Close releases the underlying client
	Close() error
}

type bigqueryClient struct {
	client   *bigquery.Client
	location string
}

// BigQueryOption is a functional option for BigQuery client
type BigQueryOption func(*bigqueryClient)

// WithBigQueryLocation sets the location jobs run in
func WithBigQueryLocation(location string) BigQueryOption {
	return func(bq *bigqueryClient) {
		bq.location = location
	}
}

// NewBigQuery creates a new BigQuery client
func NewBigQuery(ctx context.Context, projectID string, opts ...BigQueryOption) (BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	bq := &bigqueryClient{
		client: client,
	}

	for _, opt := range opts {
		opt(bq)
	}
	if bq.location != "" {
		bq.client.Location = bq.location
	}

	return bq, nil
}

func (bq *bigqueryClient) Close() error {
	if err := bq.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close BigQuery client")
	}
	return nil
}

func (bq *bigqueryClient) newQuery(query string, params []bigquery.QueryParameter) *bigquery.Query {
	q := bq.client.Query(query)
	q.Parameters = params
	return q
}

// DryRun executes a query in dry-run mode and returns the number of bytes that will be scanned
func (bq *bigqueryClient) DryRun(ctx context.Context, query string, params []bigquery.QueryParameter) (int64, error) {
	q := bq.newQuery(query, params)
	q.DryRun = true

	job, err := q.Run(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to run dry-run query")
	}

	status := job.LastStatus()
	if status == nil || status.Statistics == nil {
		return 0, goerr.New("no statistics available from dry-run")
	}

	return status.Statistics.TotalBytesProcessed, nil
}

// Query executes a query, waits for completion and returns all rows
func (bq *bigqueryClient) Query(ctx context.Context, query string, params []bigquery.QueryParameter) ([]map[string]bigquery.Value, error) {
	job, err := bq.newQuery(query, params).Run(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run query")
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to wait for query completion", goerr.V("job_id", job.ID()))
	}
	if status.Err() != nil {
		return nil, goerr.Wrap(status.Err(), "query execution failed", goerr.V("job_id", job.ID()))
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read query result", goerr.V("job_id", job.ID()))
	}

	var rows []map[string]bigquery.Value
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate query result", goerr.V("job_id", job.ID()))
		}
		rows = append(rows, row)
	}

	return rows, nil
}
