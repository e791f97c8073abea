package log

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Logger and Fields are re-exported so callers never import logrus directly.
type (
	Logger = logrus.Logger
	Entry  = logrus.Entry
	Fields = logrus.Fields
)

const (
	// default log level
	defaultLogLevel = logrus.InfoLevel

	// log file name
	globalLogFileName = "global.log"
	// default log directory
	logDir = "nodelogs"
	// default log file params
	defaultLogMaxSize    = 100 // maximum file size before rotation, in MB
	defaultLogMaxBackups = 3   // maximum number of old log files to keep
	defaultLogMaxAge     = 28  // maximum number of days to retain old log files
)

var (
	// Global is the logger used by the command line tooling before an engine
	// specific logger has been created.
	Global *Logger

	// default logfile path
	defaultLogFilePath = "./" + logDir + "/" + globalLogFileName
)

func init() {
	Global = createStandardLogger(defaultLogFilePath, defaultLogLevel.String(), true)
}

// SetGlobalLogger redirects the global logger to the given file (in addition
// to stdout) and changes its level.
func SetGlobalLogger(logFilename string, logLevel string) {
	if logFilename == "" {
		logFilename = defaultLogFilePath
	}
	output := &lumberjack.Logger{
		Filename:   logFilename,
		MaxSize:    defaultLogMaxSize,
		MaxBackups: defaultLogMaxBackups,
		MaxAge:     defaultLogMaxAge,
	}
	for _, opt := range []Options{WithOutput(io.MultiWriter(output, os.Stdout)), WithLevel(logLevel)} {
		opt(Global)
	}
}

// NewLogger creates a logger writing to a rotated log file. Options are
// applied after the defaults, so they may replace the output or formatter.
func NewLogger(logFilename string, logLevel string, opts ...Options) *Logger {
	if logFilename == "" {
		logFilename = defaultLogFilePath
	}
	logger := createStandardLogger(logFilename, logLevel, false)
	for _, opt := range opts {
		opt(logger)
	}
	logger.WithFields(Fields{
		"path":  logFilename,
		"level": logger.GetLevel().String(),
	}).Debug("Logger started")
	return logger
}

// NewNullLogger returns a logger discarding all output, used by tests and by
// callers which do not want engine logs.
func NewNullLogger() *Logger {
	logger := logrus.New()
	WithNullLogger()(logger)
	return logger
}

func createStandardLogger(logFilename string, logLevel string, stdOut bool) *Logger {
	logger := logrus.New()
	output := &lumberjack.Logger{
		Filename:   logFilename,
		MaxSize:    defaultLogMaxSize,
		MaxBackups: defaultLogMaxBackups,
		MaxAge:     defaultLogMaxAge,
	}

	opts := []Options{
		WithOutput(output),
		WithFormatter(&logrus.TextFormatter{
			ForceColors:     true,
			PadLevelText:    true,
			FullTimestamp:   true,
			TimestampFormat: "01-02|15:04:05.000",
		}),
		WithLevel(logLevel),
	}
	if stdOut {
		opts[0] = WithOutput(io.MultiWriter(output, os.Stdout))
	}
	for _, opt := range opts {
		opt(logger)
	}
	return logger
}

func WithField(key string, val interface{}) *Entry {
	return Global.WithField(key, val)
}

func WithFields(fields Fields) *Entry {
	return Global.WithFields(fields)
}

func Debug(args ...interface{}) {
	Global.Debug(args...)
}

func Debugf(msg string, args ...interface{}) {
	Global.Debugf(msg, args...)
}

func Info(args ...interface{}) {
	Global.Info(args...)
}

func Infof(msg string, args ...interface{}) {
	Global.Infof(msg, args...)
}

func Warn(args ...interface{}) {
	Global.Warn(args...)
}

func Warnf(msg string, args ...interface{}) {
	Global.Warnf(msg, args...)
}

func Error(args ...interface{}) {
	Global.Error(args...)
}

func Errorf(msg string, args ...interface{}) {
	Global.Errorf(msg, args...)
}

func Fatalf(msg string, args ...interface{}) {
	Global.Fatalf(msg, args...)
}
