package adapter_test

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/gt"
	"github.com/m3-org/ainews/pkg/adapter"
)

func TestBigQuery(t *testing.T) {
	projectID := os.Getenv("TEST_BIGQUERY_PROJECT")
	if projectID == "" {
		t.Skip("TEST_BIGQUERY_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewBigQuery(ctx, projectID)
	gt.NoError(t, err)
	t.Cleanup(func() { gt.NoError(t, client.Close()) })

	query := "SELECT @word AS word, 42 AS answer"
	params := []bigquery.QueryParameter{{Name: "word", Value: "hello"}}

	t.Run("DryRun", func(t *testing.T) {
		bytes, err := client.DryRun(ctx, query, params)
		gt.NoError(t, err)
		gt.True(t, bytes >= 0)
		t.Logf("Bytes scanned: %d", bytes)
	})

	t.Run("Query", func(t *testing.T) {
		rows, err := client.Query(ctx, query, params)
		gt.NoError(t, err)
		gt.A(t, rows).Length(1)
		gt.Equal(t, rows[0]["word"], bigquery.Value("hello"))
		gt.Equal(t, rows[0]["answer"], bigquery.Value(int64(42)))
	})
}
