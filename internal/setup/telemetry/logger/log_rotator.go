// Package logger provides a line-capped file writer for session logs.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultMaxLines is used when no line cap is configured.
const DefaultMaxLines = 5000

// LogRotator wraps a log file and caps it at a fixed number of lines.
// Once twice the cap has been written since the last rewrite, the file
// is rewritten in place keeping only the most recent lines.
type LogRotator struct {
	writer   io.Writer
	buffer   *ringBuffer
	filePath string
	written  int // Lines written since the last rotation
	mutex    sync.Mutex
}

// NewLogRotator creates a rotator that keeps the last maxLines lines of
// the file at filePath. The writer must already point at that file.
func NewLogRotator(writer io.Writer, maxLines int, filePath string) *LogRotator {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	return &LogRotator{
		writer:   writer,
		buffer:   newRingBuffer(maxLines),
		filePath: filePath,
	}
}

// Write implements io.Writer and maintains the line buffer.
func (w *LogRotator) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		w.buffer.add(line)
		w.written++

		if w.written >= w.buffer.capacity*2 {
			if err := w.rotate(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}

			w.written = w.buffer.size
		}
	}

	return n, nil
}

// rotate rewrites the file with the buffered lines only.
func (w *LogRotator) rotate() error {
	lines := w.buffer.snapshot()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	temp.Close()

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows cannot rename over an open file
	os.Remove(w.filePath)

	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = newFile

	return nil
}
