// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mp

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/tklauser/numcpus"
	"golang.org/x/sys/unix"
	"system-transparency.org/ucode/host"
	"system-transparency.org/ucode/sterror"
	"system-transparency.org/ucode/stlog"
)

type registers interface {
	host.Registers
	Close() error
}

// Linux runs procedures on a processor by pinning a locked OS thread to
// it. Logical index i is the i-th online CPU.
//
// The msr driver executes WRMSR on the target CPU through a cross call
// when the caller runs elsewhere. That call runs in the address space of
// whatever the target CPU is executing, so the update trigger only sees
// this process's memory if the calling thread itself runs on the target.
type Linux struct {
	online []int
	bsp    int

	open func(cpu int) (registers, error)
}

var _ Service = (*Linux)(nil)

// Locate returns the Linux coordination service. With loadModules the
// msr and cpuid drivers are loaded when their devices are missing.
func Locate(loadModules bool) (*Linux, error) {
	const operation = sterror.Op("locate")

	online, err := numcpus.ListOnline()
	if err != nil {
		return nil, sterror.E(sterror.MP, operation, ErrServiceUnavailable, err.Error())
	}

	if len(online) == 0 {
		return nil, sterror.E(sterror.MP, operation, ErrServiceUnavailable, "no online processors")
	}

	if err := host.EnsureRegisterDevices(online[0], loadModules); err != nil {
		return nil, sterror.E(sterror.MP, operation, ErrServiceUnavailable, err.Error())
	}

	return &Linux{
		online: online,
		bsp:    -1,
		open: func(cpu int) (registers, error) {
			return host.OpenRegisters(cpu)
		},
	}, nil
}

// ProcessorCounts implements Service. Total counts present CPUs,
// enabled counts online CPUs.
func (l *Linux) ProcessorCounts() (int, int, error) {
	present, err := numcpus.GetPresent()
	if err != nil {
		return 0, 0, fmt.Errorf("present CPUs: %w", err)
	}

	online, err := numcpus.ListOnline()
	if err != nil {
		return 0, 0, fmt.Errorf("online CPUs: %w", err)
	}

	l.online = online

	return present, len(online), nil
}

// WhoAmI implements Service. The calling goroutine is locked to its OS
// thread and the thread is pinned to the CPU it currently runs on, so
// the answer stays true for the rest of the run. Later RunHere calls
// must come from the same goroutine.
func (l *Linux) WhoAmI() (int, error) {
	runtime.LockOSThread()

	cpu, err := getcpu()
	if err != nil {
		return 0, fmt.Errorf("getcpu: %w", err)
	}

	if err := pin(cpu); err != nil {
		return 0, err
	}

	idx, err := l.index(cpu)
	if err != nil {
		return 0, err
	}

	l.bsp = cpu

	return idx, nil
}

// RunHere implements Service.
func (l *Linux) RunHere(proc Procedure) error {
	if l.bsp < 0 {
		return fmt.Errorf("RunHere before WhoAmI")
	}

	return l.run(l.bsp, proc)
}

// RunOn implements Service. proc runs on a fresh goroutine locked to
// its own thread pinned to the target CPU. The goroutine exits without
// unlocking, so the runtime terminates the pinned thread.
func (l *Linux) RunOn(cpu int, proc Procedure) error {
	if cpu < 0 || cpu >= len(l.online) {
		return fmt.Errorf("%w: %d", ErrNoSuchProcessor, cpu)
	}

	target := l.online[cpu]
	done := make(chan error, 1)

	go func() {
		runtime.LockOSThread()

		if err := pin(target); err != nil {
			done <- err

			return
		}

		if now, err := getcpu(); err == nil && now != target {
			done <- fmt.Errorf("pinned to CPU %d but running on %d", target, now)

			return
		}

		done <- l.run(target, proc)
	}()

	return <-done
}

func (l *Linux) run(cpu int, proc Procedure) error {
	regs, err := l.open(cpu)
	if err != nil {
		return err
	}

	defer func() {
		if err := regs.Close(); err != nil {
			stlog.Debug("closing registers of CPU %d: %v", cpu, err)
		}
	}()

	proc(regs)

	return nil
}

func (l *Linux) index(cpu int) (int, error) {
	for i, c := range l.online {
		if c == cpu {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: CPU %d is not online", ErrNoSuchProcessor, cpu)
}

func pin(cpu int) error {
	var set unix.CPUSet

	set.Set(cpu)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("pin to CPU %d: %w", cpu, err)
	}

	return nil
}

func getcpu() (int, error) {
	var cpu, node uint32

	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
	if errno != 0 {
		return 0, errno
	}

	return int(cpu), nil
}
