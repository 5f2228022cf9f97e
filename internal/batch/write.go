package batch

import (
	"os"
	"path/filepath"
)

// writeAtomic replaces destPath with data through a temp file in the same
// directory, so readers never see a partial output.
func writeAtomic(destPath string, data []byte) error {
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &WriteError{Path: destPath, Err: err}
	}

	tmpFile, err := os.CreateTemp(destDir, ".pixfit-*.tmp")
	if err != nil {
		return &WriteError{Path: destPath, Err: err}
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return &WriteError{Path: destPath, Err: err}
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return &WriteError{Path: destPath, Err: err}
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return &WriteError{Path: destPath, Err: err}
	}
	if err := tmpFile.Close(); err != nil {
		return &WriteError{Path: destPath, Err: err}
	}

	if err := replaceFile(tmpFile.Name(), destPath); err != nil {
		return &WriteError{Path: destPath, Err: err}
	}
	return nil
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}
