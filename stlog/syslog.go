// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stlog

import (
	"errors"
	"fmt"

	"github.com/u-root/u-root/pkg/ulog"
)

var errInitKlog = errors.New("init klog failed")

// newKernelLogger writes to /dev/kmsg. Messages are logged at notice
// level and the console threshold is raised to info, so they reach the
// serial console while no other userspace is up.
func newKernelLogger() (*leveled, error) {
	klog := ulog.KernelLog
	klog.SetLogLevel(ulog.KLogNotice)

	if err := klog.SetConsoleLogLevel(ulog.KLogInfo); err != nil {
		return nil, fmt.Errorf("%w: %v", errInitKlog, err)
	}

	return &leveled{
		out:   klog,
		level: int32(DebugLevel),
	}, nil
}
