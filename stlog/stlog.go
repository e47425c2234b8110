// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stlog exposes leveled logging capabilities.
//
// stlog wraps two loggers and adds log levels to them:
// There is a standard "log" package logger and another
// using the kernel syslog system, which is the only console
// available when ucode runs as early userspace.
package stlog

import (
	"os"
	"sync"
)

const (
	prefix   string = "ucode: "
	errorTag string = "[ERROR] "
	warnTag  string = "[WARN]  "
	infoTag  string = "[INFO]  "
	debugTag string = "[DEBUG] "
)

type LogLevel int

const (
	ErrorLevel LogLevel = iota
	WarnLevel
	InfoLevel
	DebugLevel
)

// String implements fmt.Stringer.
func (l LogLevel) String() string {
	switch l {
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	default:
		return "debug"
	}
}

// ParseLevel maps the short and long level names accepted on the
// command line to a LogLevel. Unknown names yield InfoLevel and false.
func ParseLevel(s string) (LogLevel, bool) {
	switch s {
	case "e", "error":
		return ErrorLevel, true
	case "w", "warn":
		return WarnLevel, true
	case "i", "info":
		return InfoLevel, true
	case "d", "debug":
		return DebugLevel, true
	default:
		return InfoLevel, false
	}
}

type LogOutput int

const (
	StdError LogOutput = iota
	KernelSyslog
)

//nolint:gochecknoglobals
var (
	mu  sync.Mutex
	stl levelLogger = newStandardLogger(os.Stderr)
)

type levelLogger interface {
	setLevel(level LogLevel)
	logLevel() LogLevel
	error(format string, v ...interface{})
	warn(format string, v ...interface{})
	info(format string, v ...interface{})
	debug(format string, v ...interface{})
}

func current() levelLogger {
	mu.Lock()
	defer mu.Unlock()

	return stl
}

// SetOutput sets the packages underlying logger. The current log level
// is carried over. If the kernel log cannot be set up the standard
// logger stays active and the error is returned.
func SetOutput(o LogOutput) error {
	mu.Lock()
	defer mu.Unlock()

	level := stl.logLevel()

	var next levelLogger

	switch o {
	case KernelSyslog:
		k, err := newKernelLogger()
		if err != nil {
			return err
		}

		next = k
	default:
		next = newStandardLogger(os.Stderr)
	}

	next.setLevel(level)
	stl = next

	return nil
}

// SetLevel sets the logging level of stlog package.
func SetLevel(l LogLevel) {
	switch l {
	case ErrorLevel, WarnLevel, InfoLevel, DebugLevel:
	default:
		l = DebugLevel
	}

	current().setLevel(l)
}

// Level returns the log level set.
func Level() LogLevel {
	return current().logLevel()
}

// Error prints error messages to the currently active logger when permitted
// by the log level. Input can be formatted according to fmt.Printf.
func Error(format string, v ...interface{}) {
	current().error(format, v...)
}

// Warn prints warning messages to the currently active logger when permitted
// by the log level. Input can be formatted according to fmt.Printf.
func Warn(format string, v ...interface{}) {
	current().warn(format, v...)
}

// Info prints info messages to the currently active logger when permitted
// by the log level. Input can be formatted according to fmt.Printf.
func Info(format string, v ...interface{}) {
	current().info(format, v...)
}

// Debug prints debug messages to the currently active logger when permitted
// by the log level. Input can be formatted according to fmt.Printf.
func Debug(format string, v ...interface{}) {
	current().debug(format, v...)
}
