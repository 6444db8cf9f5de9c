// Package logger provides the global structured logger used by the shell
// core, the transports and the CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/hjbyt/adb/common"
)

// Log is the global logger instance. It logs to the console until
// InitGlobalLogger is called.
var Log *XMLog

func init() {
	Log = newConsoleLog(logrus.InfoLevel, ShowAboveWarn)
}

// XMLog embeds *logrus.Logger and adds context helpers for devices,
// batches and commands.
type XMLog struct {
	*logrus.Logger
}

var defaultFieldsOrder = []string{common.DeviceName, common.BatchName, common.CommandName}

func consoleFormatter(display LevelNameDisplayMode) *Formatter {
	return &Formatter{
		TimestampFormat:        "15:04:05",
		DisplayLevelName:       display,
		DisableCaller:          true,
		FieldsDisplayWithOrder: defaultFieldsOrder,
	}
}

func fileFormatter(display LevelNameDisplayMode) *Formatter {
	return &Formatter{
		TimestampFormat:        "2006-01-02 15:04:05.000 MST",
		NoColors:               true,
		DisplayLevelName:       display,
		FieldsDisplayWithOrder: defaultFieldsOrder,
		FieldSeparator:         " | ",
		CustomCallerFormatter: func(frame *runtime.Frame) string {
			return fmt.Sprintf("[%s:%d %s]", filepath.Base(frame.File), frame.Line, filepath.Base(frame.Function))
		},
	}
}

func newConsoleLog(level logrus.Level, display LevelNameDisplayMode) *XMLog {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(consoleFormatter(display))
	l.SetOutput(os.Stderr)
	return &XMLog{Logger: l}
}

// InitGlobalLogger replaces Log. With an empty outputPath the logger writes
// to stderr; otherwise records go to <outputPath>/adb.log, rotated daily.
func InitGlobalLogger(outputPath string, verbose bool, defaultLevel logrus.Level) error {
	l, err := NewXMLog(outputPath, verbose, defaultLevel)
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// NewXMLog creates a logger independent of the global one.
func NewXMLog(outputPath string, verbose bool, defaultLevel logrus.Level) (*XMLog, error) {
	level := defaultLevel
	display := ShowAboveWarn
	if verbose {
		level = logrus.DebugLevel
		display = ShowAll
	}

	if outputPath == "" {
		return newConsoleLog(level, display), nil
	}

	if err := os.MkdirAll(outputPath, common.FileMode0755); err != nil {
		return nil, fmt.Errorf("failed to create log output directory %s: %w", outputPath, err)
	}
	logFilePath := filepath.Join(outputPath, common.AppName+".log")
	writer, err := rotatelogs.New(
		logFilePath+".%Y%m%d",
		rotatelogs.WithLinkName(logFilePath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rotatelogs for %s: %w", logFilePath, err)
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetReportCaller(true)
	formatter := fileFormatter(display)
	l.SetFormatter(formatter)

	writers := lfshook.WriterMap{}
	for _, lvl := range logrus.AllLevels {
		if l.IsLevelEnabled(lvl) {
			writers[lvl] = writer
		}
	}
	l.Hooks.Add(lfshook.NewHook(writers, formatter))
	// The hook owns the file; the default output would duplicate every record.
	l.SetOutput(io.Discard)

	return &XMLog{Logger: l}, nil
}

// Entry returns a base entry for component loggers, e.g. a shell session.
func (xl *XMLog) Entry(component string) *logrus.Entry {
	return xl.Logger.WithField("component", component)
}

func (xl *XMLog) logWithField(level logrus.Level, key, value string, err error, message string, fields ...logrus.Fields) {
	entry := xl.Logger.WithField(key, value)
	if err != nil {
		entry = entry.WithError(err)
	}
	if len(fields) > 0 && fields[0] != nil {
		entry = entry.WithFields(fields[0])
	}
	entry.Log(level, message)
}

func (xl *XMLog) logfWithField(level logrus.Level, key, value string, err error, format string, args []interface{}) {
	entry := xl.Logger.WithField(key, value)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Logf(level, format, args...)
}

// --- Device context ---

func (xl *XMLog) DebugDevice(device string, message string, fields ...logrus.Fields) {
	xl.logWithField(logrus.DebugLevel, common.DeviceName, device, nil, message, fields...)
}
func (xl *XMLog) DebugfDevice(device string, format string, args ...interface{}) {
	xl.logfWithField(logrus.DebugLevel, common.DeviceName, device, nil, format, args)
}
func (xl *XMLog) InfoDevice(device string, message string, fields ...logrus.Fields) {
	xl.logWithField(logrus.InfoLevel, common.DeviceName, device, nil, message, fields...)
}
func (xl *XMLog) InfofDevice(device string, format string, args ...interface{}) {
	xl.logfWithField(logrus.InfoLevel, common.DeviceName, device, nil, format, args)
}
func (xl *XMLog) WarnfDevice(device string, format string, args ...interface{}) {
	xl.logfWithField(logrus.WarnLevel, common.DeviceName, device, nil, format, args)
}
func (xl *XMLog) ErrorDevice(device string, err error, message string, fields ...logrus.Fields) {
	xl.logWithField(logrus.ErrorLevel, common.DeviceName, device, err, message, fields...)
}

// --- Batch context ---

func (xl *XMLog) DebugfBatch(batch string, format string, args ...interface{}) {
	xl.logfWithField(logrus.DebugLevel, common.BatchName, batch, nil, format, args)
}
func (xl *XMLog) WarnfBatch(batch string, format string, args ...interface{}) {
	xl.logfWithField(logrus.WarnLevel, common.BatchName, batch, nil, format, args)
}

// --- Command context ---

func (xl *XMLog) WarnCommand(command string, message string, fields ...logrus.Fields) {
	xl.logWithField(logrus.WarnLevel, common.CommandName, command, nil, message, fields...)
}
func (xl *XMLog) ErrorfCommand(command string, err error, format string, args ...interface{}) {
	xl.logfWithField(logrus.ErrorLevel, common.CommandName, command, err, format, args)
}
