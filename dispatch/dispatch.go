// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatch runs the microcode load primitive on a chosen
// logical processor.
package dispatch

import (
	"fmt"

	"system-transparency.org/ucode/host"
	"system-transparency.org/ucode/microcode"
	"system-transparency.org/ucode/mp"
)

// Error reports problems running an operation on a processor.
type Error string

// Error implements error interface.
func (e Error) Error() string {
	return string(e)
}

// ErrDispatchFailed is matched by every *CPUError.
const ErrDispatchFailed = Error("dispatch failed")

// CPUError reports a failed dispatch to processor CPU.
type CPUError struct {
	CPU int
	Err error
}

// Error implements error interface.
func (e *CPUError) Error() string {
	return fmt.Sprintf("%v on processor %d: %v", ErrDispatchFailed, e.CPU, e.Err)
}

func (e *CPUError) Unwrap() error { return e.Err }

// Is reports ErrDispatchFailed as matching.
func (e *CPUError) Is(target error) bool { return target == ErrDispatchFailed }

// Operation is what gets executed on the target processor.
type Operation func(regs host.Registers, address uint64) (uint32, error)

// Load applies the patch at address.
func Load(regs host.Registers, address uint64) (uint32, error) {
	return microcode.LoadHere(regs, address)
}

// Probe only reads the active revision.
func Probe(regs host.Registers, _ uint64) (uint32, error) {
	return microcode.RevisionHere(regs)
}

// LoadRequest carries the argument and the result of one dispatch. It is
// owned by the processor executing it until the dispatch returned.
type LoadRequest struct {
	Address  uint64
	Revision uint32

	err error
}

func (r *LoadRequest) procedure(op Operation) mp.Procedure {
	return func(local host.Registers) {
		r.Revision, r.err = op(local, r.Address)
	}
}

// Controller dispatches an Operation through a coordination service.
type Controller struct {
	svc mp.Service
	op  Operation
}

// NewController returns a Controller running op, Load if op is nil.
func NewController(svc mp.Service, op Operation) *Controller {
	if op == nil {
		op = Load
	}

	return &Controller{svc: svc, op: op}
}

// ApplyOn runs the operation on processor target and returns the
// revision it reports. When target is the bsp the operation runs in-line
// and the remote path of the service is not used. Otherwise the call
// blocks until target completed, with no timeout.
func (c *Controller) ApplyOn(target, bsp int, address uint64) (uint32, error) {
	req := &LoadRequest{Address: address}

	var err error
	if target == bsp {
		err = c.svc.RunHere(req.procedure(c.op))
	} else {
		err = c.svc.RunOn(target, req.procedure(c.op))
	}

	if err == nil {
		err = req.err
	}

	if err != nil {
		return 0, &CPUError{CPU: target, Err: err}
	}

	return req.Revision, nil
}
