// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"encoding/binary"
	"fmt"

	"github.com/fearful-symmetry/gomsr"
	"golang.org/x/sys/unix"
	"system-transparency.org/ucode/sterror"
)

// Device node patterns of the Linux msr and cpuid drivers.
const (
	MSRDeviceFmt   = "/dev/cpu/%d/msr"
	CPUIDDeviceFmt = "/dev/cpu/%d/cpuid"
)

const cpuidRecordSize = 16

// DeviceRegisters accesses the registers of one processor through the
// kernel's msr and cpuid character devices. The kernel executes the
// instructions on the processor the device belongs to.
type DeviceRegisters struct {
	cpu     int
	msr     gomsr.MSRDev
	cpuidFd int
}

var _ Registers = (*DeviceRegisters)(nil)

// OpenRegisters opens the register devices of the Linux CPU cpu.
// The caller must call Close.
func OpenRegisters(cpu int) (*DeviceRegisters, error) {
	return openRegisters(cpu, MSRDeviceFmt, CPUIDDeviceFmt)
}

func openRegisters(cpu int, msrFmt, cpuidFmt string) (*DeviceRegisters, error) {
	const operation = sterror.Op("open registers")

	msr, err := gomsr.MSRWithLocation(cpu, msrFmt)
	if err != nil {
		return nil, sterror.E(sterror.Host, operation, ErrNoMSRDevice, fmt.Sprintf("cpu %d: %v", cpu, err))
	}

	fd, err := unix.Open(fmt.Sprintf(cpuidFmt, cpu), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = msr.Close()

		return nil, sterror.E(sterror.Host, operation, ErrNoCPUIDDevice, fmt.Sprintf("cpu %d: %v", cpu, err))
	}

	return &DeviceRegisters{
		cpu:     cpu,
		msr:     msr,
		cpuidFd: fd,
	}, nil
}

// CPU returns the Linux CPU number the registers belong to.
func (r *DeviceRegisters) CPU() int {
	return r.cpu
}

// ReadMSR implements Registers.
func (r *DeviceRegisters) ReadMSR(msr uint32) (uint64, error) {
	v, err := r.msr.Read(int64(msr))
	if err != nil {
		return 0, sterror.E(sterror.Host, sterror.Op("read MSR"), err, fmt.Sprintf("cpu %d msr %#x", r.cpu, msr))
	}

	return v, nil
}

// WriteMSR implements Registers.
func (r *DeviceRegisters) WriteMSR(msr uint32, value uint64) error {
	if err := r.msr.Write(int64(msr), value); err != nil {
		return sterror.E(sterror.Host, sterror.Op("write MSR"), err, fmt.Sprintf("cpu %d msr %#x", r.cpu, msr))
	}

	return nil
}

// CPUID implements Registers. The cpuid device takes the leaf in the
// low and the subleaf in the high half of the file offset.
func (r *DeviceRegisters) CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32, err error) {
	var buf [cpuidRecordSize]byte

	off := int64(uint64(subleaf)<<32 | uint64(leaf))

	n, err := unix.Pread(r.cpuidFd, buf[:], off)
	if err != nil {
		return 0, 0, 0, 0, sterror.E(sterror.Host, sterror.Op("cpuid"), err, fmt.Sprintf("cpu %d leaf %#x", r.cpu, leaf))
	}

	if n != cpuidRecordSize {
		return 0, 0, 0, 0, sterror.E(sterror.Host, sterror.Op("cpuid"), ErrShortAccess, fmt.Sprintf("cpu %d: %d bytes", r.cpu, n))
	}

	le := binary.LittleEndian

	return le.Uint32(buf[0:]), le.Uint32(buf[4:]), le.Uint32(buf[8:]), le.Uint32(buf[12:]), nil
}

// Close releases both devices.
func (r *DeviceRegisters) Close() error {
	err := r.msr.Close()

	if cerr := unix.Close(r.cpuidFd); err == nil {
		err = cerr
	}

	return err
}
