package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m3-org/ainews/pkg/interfaces"
)

// Local stores artifacts under a root directory
type Local struct {
	root string
}

// NewLocal creates a store rooted at dir. Relative artifact paths are resolved against it.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

func (x *Local) resolve(path string) string {
	if filepath.IsAbs(path) || x.root == "" {
		return path
	}
	return filepath.Join(x.root, path)
}

func (x *Local) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath := x.resolve(path)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(interfaces.ErrArtifactNotFound, "failed to read artifact", goerr.V("path", fullPath))
		}
		return nil, goerr.Wrap(err, "failed to read artifact", goerr.V("path", fullPath))
	}
	return data, nil
}

// Write replaces the file at path, creating parent directories when needed
func (x *Local) Write(ctx context.Context, path string, data []byte) error {
	fullPath := x.resolve(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create artifact directory", goerr.V("path", fullPath))
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary artifact", goerr.V("path", fullPath))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write artifact", goerr.V("path", fullPath))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close artifact", goerr.V("path", fullPath))
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return goerr.Wrap(err, "failed to set artifact permission", goerr.V("path", fullPath))
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return goerr.Wrap(err, "failed to replace artifact", goerr.V("path", fullPath))
	}
	return nil
}
