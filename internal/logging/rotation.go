package logging

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewRotatingWriter returns a size-based rotating log file writer. maxSizeMB
// and maxBackups fall back to sane defaults when zero.
func NewRotatingWriter(filePath string, maxSizeMB, maxBackups int) (io.WriteCloser, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}, nil
}

// TeeWriter returns an io.Writer that writes to both w1 and w2.
func TeeWriter(w1, w2 io.Writer) io.Writer {
	return io.MultiWriter(w1, w2)
}
