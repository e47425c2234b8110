// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stlog

import (
	"fmt"
	"io"
	"log"
	"sync/atomic"
)

// printer is satisfied by *log.Logger and *ulog.KLog.
type printer interface {
	Print(v ...interface{})
}

// leveled gates messages by level and prefixes them with tag and prefix.
type leveled struct {
	out   printer
	level int32
}

func newStandardLogger(w io.Writer) *leveled {
	return &leveled{
		out:   log.New(w, "", 0),
		level: int32(DebugLevel),
	}
}

func (l *leveled) setLevel(level LogLevel) {
	atomic.StoreInt32(&l.level, int32(level))
}

func (l *leveled) logLevel() LogLevel {
	return LogLevel(atomic.LoadInt32(&l.level))
}

func (l *leveled) logf(at LogLevel, tag, format string, v ...interface{}) {
	if l.logLevel() < at {
		return
	}

	l.out.Print(tag + prefix + fmt.Sprintf(format, v...))
}

func (l *leveled) error(format string, v ...interface{}) { l.logf(ErrorLevel, errorTag, format, v...) }
func (l *leveled) warn(format string, v ...interface{})  { l.logf(WarnLevel, warnTag, format, v...) }
func (l *leveled) info(format string, v ...interface{})  { l.logf(InfoLevel, infoTag, format, v...) }
func (l *leveled) debug(format string, v ...interface{}) { l.logf(DebugLevel, debugTag, format, v...) }
