package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppender writes the same lines as a ConsoleAppender to a file that is rotated once it grows
// past MaxSizeMB.
type FileAppender struct {
	ConsoleAppender
	file *lumberjack.Logger
}

// Rotation limits of a FileAppender.
const (
	MaxSizeMB  = 10
	MaxBackups = 3
)

// NewFileAppender returns an appender writing to filename. The file is created on the first write.
func NewFileAppender(filename string) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(file), file: file}
}

// Close closes the current file.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}
