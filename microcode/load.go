// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package microcode

import (
	"system-transparency.org/ucode/host"
)

// Architectural registers of the microcode update interface.
const (
	MSRBiosUpdateTrigger uint32 = 0x79
	MSRBiosSignID        uint32 = 0x8b

	cpuidVersionInfo uint32 = 1
)

// LoadHere triggers the microcode update at address on the processor
// regs belongs to and returns the revision active afterwards.
//
// A patch the processor rejects leaves the revision unchanged; that is
// not reported as an error. Errors only come from the register backend.
func LoadHere(regs host.Registers, address uint64) (uint32, error) {
	if err := regs.WriteMSR(MSRBiosUpdateTrigger, address); err != nil {
		return 0, err
	}

	return RevisionHere(regs)
}

// RevisionHere returns the active microcode revision of the processor
// regs belongs to. CPUID is required between clearing and reading the
// signature MSR.
func RevisionHere(regs host.Registers) (uint32, error) {
	if err := regs.WriteMSR(MSRBiosSignID, 0); err != nil {
		return 0, err
	}

	if _, _, _, _, err := regs.CPUID(cpuidVersionInfo, 0); err != nil {
		return 0, err
	}

	sig, err := regs.ReadMSR(MSRBiosSignID)
	if err != nil {
		return 0, err
	}

	return uint32(sig >> 32), nil
}
