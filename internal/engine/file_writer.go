package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// fileWriter is the destination side of one attempt. It appends when
// resuming and truncates otherwise.
type fileWriter struct {
	file    *os.File
	written int64
}

func openDestination(path string, appendMode bool) (*fileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create destination directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open destination file: %w", err)
	}

	return &fileWriter{file: f}, nil
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Close flushes to disk before closing so a crash never leaves the
// reported byte count ahead of the file.
func (w *fileWriter) Close() error {
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	if closeErr != nil {
		return closeErr
	}
	return syncErr
}

// existingSize is the resume offset: the size of a file already at path,
// or zero when there is none.
func existingSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("destination %s is a directory", path)
	}
	return info.Size(), nil
}
