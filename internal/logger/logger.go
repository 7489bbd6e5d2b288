package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = zerolog.New(io.Discard)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options controls where and how log output is written.
type Options struct {
	Level     string
	IsService bool
	// File, when set, receives a copy of every entry with size based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init initializes the logger based on the given configuration
func Init(opts Options) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if opts.IsService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	var w io.Writer = output
	if opts.File != "" {
		w = zerolog.MultiLevelWriter(output, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		})
	}

	log = zerolog.New(w).With().Timestamp().Logger()

	SetLogLevel(ParseLevel(opts.Level))
}

// InitWriter points the logger at w. Used by tests to capture output.
func InitWriter(w io.Writer, level LogLevel) {
	log = zerolog.New(w).With().Timestamp().Logger()
	SetLogLevel(level)
}

// ParseLevel maps a configured level name to a LogLevel, defaulting to warn.
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "error":
		return ErrorLevel
	default:
		return WarnLevel
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

func Debug() *LogEvent { return &LogEvent{log.Debug()} }
func Info() *LogEvent  { return &LogEvent{log.Info()} }
func Warn() *LogEvent  { return &LogEvent{log.Warn()} }
func Error() *LogEvent { return &LogEvent{log.Error()} }

// Fatal exits the process after the event is sent.
func Fatal() *LogEvent { return &LogEvent{log.Fatal()} }

func withCode(ev *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{ev.
		Str("error_code", err.Code().String()).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// ErrorWithCode logs a coded error.
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// ErrorWithContext logs a coded error tagged with the component and
// operation that raised it.
func ErrorWithContext(err errors.Error, component, operation string) *LogEvent {
	return withCode(log.Error().Str("component", component).Str("operation", operation), err)
}

// FatalWithCode logs a coded error and exits.
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

// Default returns a Logger backed by the package level logger.
func Default() Logger {
	return componentLogger{}
}

// For returns a Logger that tags every entry with component. It follows
// later calls to Init.
func For(component string) Logger {
	return componentLogger{name: component}
}

type componentLogger struct {
	name string
}

func (c componentLogger) tag(ev *zerolog.Event) *zerolog.Event {
	if c.name == "" {
		return ev
	}

	return ev.Str("component", c.name)
}

func (c componentLogger) Debug() *LogEvent { return &LogEvent{c.tag(log.Debug())} }
func (c componentLogger) Info() *LogEvent  { return &LogEvent{c.tag(log.Info())} }
func (c componentLogger) Warn() *LogEvent  { return &LogEvent{c.tag(log.Warn())} }
func (c componentLogger) Error() *LogEvent { return &LogEvent{c.tag(log.Error())} }

func (c componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(c.tag(log.Error()), err)
}

func (c componentLogger) FatalWithCode(err errors.Error) *LogEvent {
	return withCode(c.tag(log.Fatal()), err)
}

func (componentLogger) ErrorWithContext(err errors.Error, component, operation string) *LogEvent {
	return ErrorWithContext(err, component, operation)
}
