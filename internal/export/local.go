package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// localTarget writes exports into a directory on the local filesystem.
type localTarget struct {
	basePath string
}

func newLocalTarget(basePath string) (*localTarget, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local export: path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("local export: resolving %s: %w", basePath, err)
	}
	return &localTarget{basePath: abs}, nil
}

func (t *localTarget) Name() string {
	return "local"
}

// Store writes atomically: data lands in a temp file first and is renamed
// into place, so readers never observe a half-written export.
func (t *localTarget) Store(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(t.basePath, dirPermissions); err != nil {
		return fmt.Errorf("local export: creating %s: %w", t.basePath, err)
	}

	targetPath := filepath.Join(t.basePath, name)
	tempFile, err := os.CreateTemp(t.basePath, "export-*.tmp")
	if err != nil {
		return fmt.Errorf("local export: creating temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if err := tempFile.Chmod(filePermissions); err != nil {
		return fmt.Errorf("local export: setting permissions: %w", err)
	}
	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("local export: writing %s: %w", name, err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("local export: syncing %s: %w", name, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("local export: closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("local export: renaming into place: %w", err)
	}

	success = true
	return nil
}
