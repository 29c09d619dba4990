// Package logger provides leveled logging with debug, info, warn, and error
// levels. It wraps logrus to provide JSON or text output and optional
// size-based log rotation when a file path is configured.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var defaultLogger *logrus.Logger

// Init initializes the default logger. Level is one of debug/info/warn/error,
// format is json or text. When filePath is non-empty, output goes to a
// rotating file as well as stderr.
func Init(level, format, filePath string) {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.ToLower(format) == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	var out io.Writer = os.Stderr
	if filePath != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	l.SetOutput(out)

	defaultLogger = l
}

func get() *logrus.Logger {
	if defaultLogger == nil {
		Init("info", "text", "")
	}
	return defaultLogger
}

// Debug logs a message at debug level.
func Debug(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Info logs a message at info level.
func Info(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Warn logs a message at warn level.
func Warn(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Error logs a message at error level.
func Error(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Fatal logs a message at fatal level and exits.
func Fatal(format string, args ...interface{}) {
	get().Fatalf(format, args...)
}
