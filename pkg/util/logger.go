package util

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Log levels
const (
	// LevelError only
	LevelError = 1
	// LevelWarning and error
	LevelWarning = 2
	// LevelInfo, warning and error
	LevelInfo = 3
	// All
	LevelTrace = 4
)

// raft logger and log level
var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
var logLevel = LevelInfo

// SetLogLevel sets log level
func SetLogLevel(level int) {
	if level < LevelError {
		level = LevelError
	}
	if level > LevelTrace {
		level = LevelTrace
	}

	logLevel = level
}

// WriteLog writes an log entry if its level is at or below logLevel, otherwise it's ignored
func WriteLog(level int, format string, v ...interface{}) {
	if level > logLevel {
		return
	}

	msg := fmt.Sprintf(format, v...)
	switch level {
	case LevelError:
		logger.Error().Msg(msg)
	case LevelWarning:
		logger.Warn().Msg(msg)
	case LevelInfo:
		logger.Info().Msg(msg)
	default:
		logger.Debug().Msg(msg)
	}
}

// WriteError writes an error log
func WriteError(format string, v ...interface{}) {
	WriteLog(LevelError, format, v...)
}

// WriteWarning writes a warning log
func WriteWarning(format string, v ...interface{}) {
	WriteLog(LevelWarning, format, v...)
}

// WriteInfo writes a information
func WriteInfo(format string, v ...interface{}) {
	WriteLog(LevelInfo, format, v...)
}

// WriteTrace writes traces and debug information
func WriteTrace(format string, v ...interface{}) {
	WriteLog(LevelTrace, format, v...)
}

// Panicf is equivalent to printing a formatted error log followed by a
// call to panic().
func Panicf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	logger.Error().Msg(msg)
	panic(msg)
}

// Panicln is equivalent to printing the given values as an error log
// followed by a call to panic().
func Panicln(v ...interface{}) {
	msg := fmt.Sprintln(v...)
	logger.Error().Msg(msg)
	panic(msg)
}
