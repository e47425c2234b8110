// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host exposes functionality to interact with the host machine:
// processor-local registers, kernel modules and the TPM.
package host

// Registers is the register interface of a single logical processor.
// Every call acts on the processor the implementation is bound to,
// never on the caller's processor by accident.
type Registers interface {
	// ReadMSR reads the model specific register msr.
	ReadMSR(msr uint32) (uint64, error)
	// WriteMSR writes value to the model specific register msr.
	WriteMSR(msr uint32, value uint64) error
	// CPUID executes the CPUID instruction with the given leaf and subleaf.
	CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32, err error)
}
