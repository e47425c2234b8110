// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"os"

	"github.com/u-root/u-root/pkg/kmodule"
	"system-transparency.org/ucode/stlog"
)

// Kernel modules providing the register devices.
const (
	MSRModule   = "msr"
	CPUIDModule = "cpuid"
)

//nolint:gochecknoglobals
var (
	realProbe = kmodule.Probe
	probe     = realProbe
)

// EnsureRegisterDevices makes sure the msr and cpuid devices of cpu
// exist, loading the drivers when load is set and a device is missing.
func EnsureRegisterDevices(cpu int, load bool) error {
	for _, dev := range []struct {
		module, pattern string
		err         Error
	}{
		{MSRModule, MSRDeviceFmt, ErrNoMSRDevice},
		{CPUIDModule, CPUIDDeviceFmt, ErrNoCPUIDDevice},
	} {
		if err := ensureDevice(fmt.Sprintf(dev.pattern, cpu), dev.module, load); err != nil {
			return fmt.Errorf("%w: %v", dev.err, err)
		}
	}

	return nil
}

func ensureDevice(path, module string, load bool) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !load {
		return err
	}

	stlog.Debug("%s missing, loading kernel module %q", path, module)

	if err := probe(module, ""); err != nil {
		return fmt.Errorf("load module %s: %v", module, err)
	}

	_, err := os.Stat(path)

	return err
}
