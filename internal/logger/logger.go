package logger

import (
	"sync"
)

// Log levels accepted by the log.level setting.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Encodings accepted by the log.encoding setting.
const (
	ConsoleEncoding = "console"
	JSONEncoding    = "json"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process-wide logger. The first call decides level and
// encoding; later calls return the same instance.
func Get(level, encoding string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level, encoding)
	})
	return globalLogger
}

// New builds an independent logger, mostly for tools and tests.
func New(level, encoding string) *Logger {
	return newZapLogger(level, encoding)
}
