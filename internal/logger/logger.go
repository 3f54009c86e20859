// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logger provides a leveled, context-carried logger, the Go
// replacement for honggfuzz's LOGMSG/LOG_D/LOG_I/LOG_E/LOG_F macros.
package logger

import (
	"context"
	goLog "log"
	"io"
	"os"

	"github.com/kr/pretty"

	"github.com/Bluebear171/honggfuzz/internal/color"
)

// LogLevel mirrors honggfuzz's log.h levels (l_DEBUG .. l_FATAL).
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	FatalLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarningLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is a leveled logger that writes Info/Debug/Warning to one stream
// and Error/Fatal to another, same split as the teacher's implementation
// (stdout vs stderr).
type Logger struct {
	level         LogLevel
	color         color.Color
	goLogger      *goLog.Logger
	goErrorLogger *goLog.Logger
}

// NewLogger constructs a Logger. Either writer may be nil, in which case
// that stream is discarded.
func NewLogger(level LogLevel, c color.Color, stdout, stderr io.Writer) *Logger {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	if c == nil {
		c = color.NewColor(color.ColorNever)
	}
	return &Logger{
		level:         level,
		color:         c,
		goLogger:      goLog.New(stdout, "", goLog.LstdFlags),
		goErrorLogger: goLog.New(stderr, "", goLog.LstdFlags),
	}
}

type globalLoggerKeyType struct{}

// WithLogger attaches a Logger to ctx, retrievable by loggerFromContext.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, globalLoggerKeyType{}, l)
}

var defaultLogger = NewLogger(InfoLevel, color.NewColor(color.ColorAuto), os.Stdout, os.Stderr)

func loggerFromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(globalLoggerKeyType{}).(*Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}

func (l *Logger) logf(level LogLevel, colorFn func(string, ...interface{}) string, format string, a ...interface{}) {
	if level < l.level {
		return
	}
	msg := colorFn("[%s] "+format, append([]interface{}{level}, a...)...)
	if level >= ErrorLevel {
		l.goErrorLogger.Print(msg)
	} else {
		l.goLogger.Print(msg)
	}
	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.logf(DebugLevel, l.color.Cyan, format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.logf(InfoLevel, l.color.Green, format, a...)
}

func (l *Logger) Warningf(format string, a ...interface{}) {
	l.logf(WarningLevel, l.color.Yellow, format, a...)
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.logf(ErrorLevel, l.color.Red, format, a...)
}

func (l *Logger) Fatalf(format string, a ...interface{}) {
	l.logf(FatalLevel, l.color.Red, format, a...)
}

// Dumpf pretty-prints a value at debug level, the analogue of honggfuzz's
// verbose LOGMSG(l_DEBUG, ...) dumps of internal structs.
func (l *Logger) Dumpf(label string, v interface{}) {
	if l.level > DebugLevel {
		return
	}
	l.Debugf("%s: %# v", label, pretty.Formatter(v))
}

// Package-level helpers that pull the Logger out of ctx, mirroring the
// teacher's logger.Infof(ctx, ...) call sites.
func Debugf(ctx context.Context, format string, a ...interface{}) {
	loggerFromContext(ctx).Debugf(format, a...)
}
func Infof(ctx context.Context, format string, a ...interface{}) {
	loggerFromContext(ctx).Infof(format, a...)
}
func Warningf(ctx context.Context, format string, a ...interface{}) {
	loggerFromContext(ctx).Warningf(format, a...)
}
func Errorf(ctx context.Context, format string, a ...interface{}) {
	loggerFromContext(ctx).Errorf(format, a...)
}
func Fatalf(ctx context.Context, format string, a ...interface{}) {
	loggerFromContext(ctx).Fatalf(format, a...)
}
func Dumpf(ctx context.Context, label string, v interface{}) {
	loggerFromContext(ctx).Dumpf(label, v)
}
