package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/syafiqeil/mev-builder/logging/colors"
)

// GlobalLogger describes a Logger that is disabled by default and is replaced when the searcher is created. Each
// package should derive its own sub-logger from it.
var GlobalLogger = NewLogger(zerolog.Disabled, false)

// Logger describes a custom logging object that can log events to any arbitrary channel and can handle specialized
// output to console as well
type Logger struct {
	// level describes the log level
	level zerolog.Level

	// multiLogger describes a logger that will be used to output logs to any arbitrary channel(s) in either structured
	// or unstructured format.
	multiLogger zerolog.Logger

	// consoleLogger describes a logger that will be used to output unstructured, colorized output to console.
	consoleLogger zerolog.Logger

	// writers describes a list of io.Writer objects where non-console log output will go.
	writers []io.Writer

	// context holds the key-value pairs added through NewSubLogger so that they survive writer changes.
	context []string
}

// LogFormat describes what format to log in
type LogFormat string

const (
	// STRUCTURED describes that logging should be done in structured JSON format
	STRUCTURED LogFormat = "structured"
	// UNSTRUCTURED describes that logging should be done in an unstructured format
	UNSTRUCTURED LogFormat = "unstructured"
)

// StructuredLogInfo describes a key-value mapping that can be used to log structured data
type StructuredLogInfo map[string]any

// NewLogger will create a new Logger object with a specific log level. The Logger can output to console, if enabled,
// and output logs to any number of arbitrary io.Writer channels
func NewLogger(level zerolog.Level, consoleEnabled bool, writers ...io.Writer) *Logger {
	l := &Logger{
		level:         level,
		consoleLogger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
		writers:       writers,
	}
	if consoleEnabled {
		consoleWriter := setupDefaultFormatting(zerolog.ConsoleWriter{Out: os.Stdout}, level)
		l.consoleLogger = zerolog.New(consoleWriter).Level(level)
	}
	l.rebuildMultiLogger()
	return l
}

// NewSubLogger will create a new Logger with unique context in the form of a key-value pair. Each service is expected
// to own a sub-logger so that logs can be grepped by the "service" key.
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	sub := &Logger{
		level:         l.level,
		consoleLogger: l.consoleLogger.With().Str(key, value).Logger(),
		writers:       l.writers,
		context:       append(append([]string{}, l.context...), key, value),
	}
	sub.rebuildMultiLogger()
	return sub
}

// AddWriter will add a writer to the list of channels where log output will be sent. Adding the same writer twice is
// a no-op.
func (l *Logger) AddWriter(writer io.Writer, format LogFormat) {
	for _, w := range l.writers {
		if writer == w {
			return
		}
	}

	// Unstructured output is written without ANSI coloring
	if format == UNSTRUCTURED {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: true}
	}
	l.writers = append(l.writers, writer)
	l.rebuildMultiLogger()
}

// Level will get the log level of the Logger
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel will update the log level of the Logger
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.multiLogger = l.multiLogger.Level(level)
	l.consoleLogger = l.consoleLogger.Level(level)
}

// Trace logs a trace event
func (l *Logger) Trace(args ...any) {
	l.log(l.consoleLogger.Trace(), l.multiLogger.Trace(), false, args...)
}

// Debug logs a debug event
func (l *Logger) Debug(args ...any) {
	l.log(l.consoleLogger.Debug(), l.multiLogger.Debug(), false, args...)
}

// Info logs an info event
func (l *Logger) Info(args ...any) {
	l.log(l.consoleLogger.Info(), l.multiLogger.Info(), false, args...)
}

// Warn logs a warning event
func (l *Logger) Warn(args ...any) {
	l.log(l.consoleLogger.Warn(), l.multiLogger.Warn(), false, args...)
}

// Error logs an error event
func (l *Logger) Error(args ...any) {
	l.log(l.consoleLogger.Error(), l.multiLogger.Error(), false, args...)
}

// Panic logs a panic event and then panics
func (l *Logger) Panic(args ...any) {
	l.log(l.consoleLogger.Panic(), l.multiLogger.Panic(), true, args...)
}

// log builds the console and multi-writer messages from args and sends both events. Stack traces are attached when
// forced or when the logger runs at debug level or below.
func (l *Logger) log(consoleLog *zerolog.Event, multiLog *zerolog.Event, forceStack bool, args ...any) {
	consoleMsg, multiMsg, err, info := buildMsgs(args...)

	consoleLog.Err(err)
	multiLog.Err(err)
	if err != nil && (forceStack || l.level <= zerolog.DebugLevel) {
		consoleLog.Stack()
		multiLog.Stack()
	}

	if info != nil {
		consoleLog.Any("info", info)
		multiLog.Any("info", info)
	}

	// The multi logger is deferred so that panic events still reach every writer
	defer multiLog.Msg(multiMsg)
	consoleLog.Msg(consoleMsg)
}

// rebuildMultiLogger recreates the multi logger from the current writers and context.
func (l *Logger) rebuildMultiLogger() {
	if len(l.writers) == 0 {
		l.multiLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)
		return
	}
	ctx := zerolog.New(zerolog.MultiLevelWriter(l.writers...)).Level(l.level).With().Timestamp()
	for i := 0; i+1 < len(l.context); i += 2 {
		ctx = ctx.Str(l.context[i], l.context[i+1])
	}
	l.multiLogger = ctx.Logger()
}

// buildMsgs takes in a variadic list of arguments of any type and returns a colorized console string, a plain string
// for file/structured output and, optionally, an error and a StructuredLogInfo object.
func buildMsgs(args ...any) (string, string, error, StructuredLogInfo) {
	if len(args) == 0 {
		return "", "", nil, nil
	}

	colorCtx := colors.Reset
	consoleOutput := make([]string, 0, len(args))
	fileOutput := make([]string, 0, len(args))
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			colorCtx = t
		case StructuredLogInfo:
			// only one structured log info is kept per message
			info = t
		case error:
			// only one error is kept per message
			err = t
		default:
			consoleOutput = append(consoleOutput, colorCtx(t))
			fileOutput = append(fileOutput, fmt.Sprintf("%v", t))
		}
	}

	return strings.Join(consoleOutput, ""), strings.Join(fileOutput, ""), err, info
}

// setupDefaultFormatting updates the console writer's formatting to drop timestamps and use colored level glyphs
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level) zerolog.ConsoleWriter {
	writer.FormatTimestamp = func(i interface{}) string {
		return ""
	}

	writer.FormatLevel = func(i any) string {
		s, _ := i.(string)
		parsed, err := zerolog.ParseLevel(s)
		if err != nil {
			return s
		}

		switch parsed {
		case zerolog.TraceLevel:
			return colors.CyanBold(zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return colors.BlueBold(zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return colors.GreenBold(colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return colors.YellowBold(zerolog.LevelWarnValue)
		case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
			return colors.RedBold(parsed.String())
		default:
			return s
		}
	}

	// Above debug level the service field is noise on the console
	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{SERVICE_KEY}
	}

	return writer
}
