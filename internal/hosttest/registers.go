// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hosttest provides in-memory stand-ins for processor registers
// and the multiprocessor service.
package hosttest

import (
	"sync"

	"system-transparency.org/ucode/host"
)

const (
	msrUpdateTrigger uint32 = 0x79
	msrSignID        uint32 = 0x8b
)

// Access records one register operation.
type Access struct {
	Op    string // "rdmsr", "wrmsr" or "cpuid"
	Reg   uint32
	Value uint64
}

// Registers emulates the microcode update interface of one processor.
// Writing an address listed in Patches to the update trigger installs
// that revision if it is newer. The signature MSR latches the active
// revision on CPUID, as the hardware does.
type Registers struct {
	mu sync.Mutex

	Revision  uint32
	Signature uint32
	Patches   map[uint64]uint32
	// Err, if set, is returned by every access.
	Err error

	Accesses []Access

	msrs map[uint32]uint64
}

var _ host.Registers = (*Registers)(nil)

// NewRegisters returns registers running revision with patches known.
func NewRegisters(revision uint32, patches map[uint64]uint32) *Registers {
	return &Registers{
		Revision:  revision,
		Signature: 0x000906ea,
		Patches:   patches,
	}
}

func (r *Registers) record(op string, reg uint32, v uint64) {
	r.Accesses = append(r.Accesses, Access{Op: op, Reg: reg, Value: v})
}

// ReadMSR implements host.Registers.
func (r *Registers) ReadMSR(msr uint32) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}

	v := r.msrs[msr]
	r.record("rdmsr", msr, v)

	return v, nil
}

// WriteMSR implements host.Registers.
func (r *Registers) WriteMSR(msr uint32, value uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}

	r.record("wrmsr", msr, value)

	if r.msrs == nil {
		r.msrs = make(map[uint32]uint64)
	}

	if msr == msrUpdateTrigger {
		if rev, ok := r.Patches[value]; ok && rev > r.Revision {
			r.Revision = rev
		}

		return nil
	}

	r.msrs[msr] = value

	return nil
}

// CPUID implements host.Registers.
func (r *Registers) CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return 0, 0, 0, 0, r.Err
	}

	r.record("cpuid", leaf, uint64(subleaf))

	if leaf == 1 {
		if r.msrs == nil {
			r.msrs = make(map[uint32]uint64)
		}

		r.msrs[msrSignID] = uint64(r.Revision) << 32

		return r.Signature, 0, 0, 0, nil
	}

	return 0, 0, 0, 0, nil
}

// Ops returns the recorded operations in order.
func (r *Registers) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]string, 0, len(r.Accesses))
	for _, a := range r.Accesses {
		ops = append(ops, a.Op)
	}

	return ops
}
