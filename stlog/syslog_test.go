// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package stlog

import (
	"os"
	"testing"
)

func TestKernelLogger(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("root required for this test")
	}

	l, err := newKernelLogger()
	if err != nil {
		t.Fatalf("newKernelLogger() = _, %v, want nil", err)
	}

	for _, level := range []LogLevel{ErrorLevel, WarnLevel, InfoLevel, DebugLevel} {
		l.setLevel(level)
		l.error("kernel logger at %v", level)
		l.warn("kernel logger at %v", level)
		l.info("kernel logger at %v", level)
		l.debug("kernel logger at %v", level)

		if got := l.logLevel(); got != level {
			t.Errorf("logLevel() = %v, want %v", got, level)
		}
	}
}
