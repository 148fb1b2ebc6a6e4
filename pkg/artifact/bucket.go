package artifact

import (
	"context"
	"errors"
	"io"
	"path"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/adapter"
	"github.com/m3-org/ainews/pkg/interfaces"
)

// Bucket stores artifacts as Cloud Storage objects
type Bucket struct {
	storage adapter.Storage
}

func NewBucket(storage adapter.Storage) *Bucket {
	return &Bucket{storage: storage}
}

func objectKey(p string) string {
	return path.Clean("/" + p)[1:]
}

func (x *Bucket) Read(ctx context.Context, p string) ([]byte, error) {
	key := objectKey(p)
	r, err := x.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, adapter.ErrObjectNotFound) {
			return nil, goerr.Wrap(interfaces.ErrArtifactNotFound, "failed to read artifact", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to read artifact", goerr.V("key", key))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read artifact body", goerr.V("key", key))
	}
	return data, nil
}

func (x *Bucket) Write(ctx context.Context, p string, data []byte) error {
	key := objectKey(p)
	w, err := x.storage.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open artifact writer", goerr.V("key", key))
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return goerr.Wrap(err, "failed to write artifact", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to upload artifact", goerr.V("key", key))
	}
	return nil
}
