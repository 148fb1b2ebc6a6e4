package adapter

import (
	"context"
	"errors"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// ErrObjectNotFound is returned by Storage.Get when the key does not exist
var ErrObjectNotFound = goerr.New("object not found")

// Storage is the interface for report artifacts and media manifests kept in Cloud Storage
type Storage interface {
	// Put returns a writer that uploads to key. The object becomes visible on Close.
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get opens key for reading. A missing object yields ErrObjectNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

// StorageOption configures the Cloud Storage client
type StorageOption func(*storageClient)

// WithObjectPrefix prepends prefix to every key
func WithObjectPrefix(prefix string) StorageOption {
	return func(s *storageClient) {
		s.prefix = prefix
	}
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string, opts ...StorageOption) (Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	s := &storageClient{
		bucketName: bucketName,
		client:     client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *storageClient) object(key string) *storage.ObjectHandle {
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return s.client.Bucket(s.bucketName).Object(key)
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return s.object(key).NewWriter(ctx), nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(ErrObjectNotFound, "failed to read from storage",
				goerr.V("bucket", s.bucketName),
				goerr.V("key", key),
			)
		}
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucketName),
			goerr.V("key", key),
		)
	}

	return reader, nil
}
