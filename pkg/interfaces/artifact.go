package interfaces

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

var ErrArtifactNotFound = goerr.New("artifact not found")

// ArtifactStore reads and writes the derived report files by relative path
type ArtifactStore interface {
	// Read returns ErrArtifactNotFound (wrapped) when the path does not exist
	Read(ctx context.Context, path string) ([]byte, error)
	// Write creates or replaces the file, creating parent directories as needed
	Write(ctx context.Context, path string, data []byte) error
}
