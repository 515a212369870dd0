// Package logging provides leveled structured logging shared across every
// service, generalizing the request-logging idiom of pkg/middleware's
// RequestLogger (JSON lines via the standard log package) to ad-hoc
// application events: parser errors logged at debug, source blacklisting at
// warn, job failures at error.
package logging

import (
	"encoding/json"
	"log"
	"os"
)

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger emits structured JSON log lines tagged with a component name.
type Logger struct {
	component string
	std       *log.Logger
	minLevel  Level
}

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a logger for the given component, writing to stderr.
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", 0),
		minLevel:  LevelDebug,
	}
}

// SetMinLevel suppresses log lines below the given level.
func (l *Logger) SetMinLevel(level Level) {
	l.minLevel = level
}

type logLine struct {
	Level     string            `json:"level"`
	Component string            `json:"component"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func (l *Logger) log(level Level, msg string, fields map[string]string) {
	if levelRank[level] < levelRank[l.minLevel] {
		return
	}
	line := logLine{Level: string(level), Component: l.component, Message: msg, Fields: fields}
	data, err := json.Marshal(line)
	if err != nil {
		l.std.Printf(`{"level":"error","component":%q,"message":"failed to marshal log line"}`, l.component)
		return
	}
	l.std.Println(string(data))
}

// Debug logs parser/cache-level detail not useful outside active debugging.
func (l *Logger) Debug(msg string, fields map[string]string) { l.log(LevelDebug, msg, fields) }

// Info logs normal successful operation, matching the teacher's
// "Info for success" convention.
func (l *Logger) Info(msg string, fields map[string]string) { l.log(LevelInfo, msg, fields) }

// Warn logs recoverable problems: auto-blacklisting, circuit trips, 4xx.
func (l *Logger) Warn(msg string, fields map[string]string) { l.log(LevelWarn, msg, fields) }

// Error logs failures that surface to a caller or abort a job.
func (l *Logger) Error(msg string, fields map[string]string) { l.log(LevelError, msg, fields) }
