// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mp provides the multiprocessor coordination service: processor
// enumeration and running procedures on a chosen logical processor.
package mp

import (
	"fmt"

	"system-transparency.org/ucode/host"
	"system-transparency.org/ucode/sterror"
)

// Error reports problems with the coordination service.
type Error string

// Error implements error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	ErrServiceUnavailable = Error("multiprocessor service unavailable")
	ErrQueryFailed        = Error("multiprocessor query failed")
	ErrNoSuchProcessor    = Error("no such processor")
)

// Procedure runs on one logical processor and gets that processor's
// registers.
type Procedure func(local host.Registers)

// Service is the multiprocessor coordination service. Processors are
// addressed by logical index 0..enabled-1.
type Service interface {
	// ProcessorCounts returns the number of processors present and the
	// number of those currently enabled.
	ProcessorCounts() (total, enabled int, err error)
	// WhoAmI returns the logical index of the calling processor.
	WhoAmI() (int, error)
	// RunHere runs proc in-line on the calling processor.
	RunHere(proc Procedure) error
	// RunOn runs proc on processor cpu and blocks until it returned.
	// There is no timeout.
	RunOn(cpu int, proc Procedure) error
}

// Locator finds the coordination service.
type Locator func() (Service, error)

// Topology is the processor layout queried once per update.
type Topology struct {
	Total   int
	Enabled int
	// BSP is the logical index of the processor driving the update,
	// as reported by WhoAmI.
	BSP int
}

// String implements fmt.Stringer.
func (t Topology) String() string {
	return fmt.Sprintf("%d processors, %d enabled, BSP %d", t.Total, t.Enabled, t.BSP)
}

// Enumerate queries the processor counts and the calling processor.
func Enumerate(svc Service) (Topology, error) {
	const operation = sterror.Op("enumerate processors")

	total, enabled, err := svc.ProcessorCounts()
	if err != nil {
		return Topology{}, sterror.E(sterror.MP, operation, ErrQueryFailed, err.Error())
	}

	if enabled < 1 || enabled > total {
		return Topology{}, sterror.E(sterror.MP, operation, ErrQueryFailed,
			fmt.Sprintf("implausible counts: %d enabled of %d", enabled, total))
	}

	bsp, err := svc.WhoAmI()
	if err != nil {
		return Topology{}, sterror.E(sterror.MP, sterror.Op("who am I"), ErrQueryFailed, err.Error())
	}

	if bsp < 0 || bsp >= enabled {
		return Topology{}, sterror.E(sterror.MP, sterror.Op("who am I"), ErrQueryFailed,
			fmt.Sprintf("calling processor %d is not enabled", bsp))
	}

	return Topology{Total: total, Enabled: enabled, BSP: bsp}, nil
}
