package adapter_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m3-org/ainews/pkg/adapter"
)

func TestStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewStorage(ctx, bucket, adapter.WithObjectPrefix("ainews-test"))
	gt.NoError(t, err)

	key := uuid.NewString() + ".json"

	w, err := client.Put(ctx, key)
	gt.NoError(t, err)
	_, err = w.Write([]byte(`{"ok":true}`))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := client.Get(ctx, key)
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), `{"ok":true}`)

	_, err = client.Get(ctx, "missing-"+key)
	gt.True(t, errors.Is(err, adapter.ErrObjectNotFound))
}

func TestNewStorageRequiresBucket(t *testing.T) {
	_, err := adapter.NewStorage(context.Background(), "")
	gt.Error(t, err)
}
