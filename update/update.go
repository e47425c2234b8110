// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package update drives a microcode update across all enabled
// processors: read the patch, parse it, learn the topology and visit
// every processor in turn.
package update

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"system-transparency.org/ucode/dispatch"
	"system-transparency.org/ucode/microcode"
	"system-transparency.org/ucode/mp"
	"system-transparency.org/ucode/source"
	"system-transparency.org/ucode/sterror"
	"system-transparency.org/ucode/stlog"
)

// Error reports problems driving the update.
type Error string

// Error implements error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	ErrTopology   = Error("processor topology unavailable")
	ErrAlreadyRun = Error("update already run")
)

// State of an Updater.
type State int

const (
	Start State = iota
	HeaderParsed
	TopologyKnown
	Dispatching
	Done
	Failed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case HeaderParsed:
		return "header parsed"
	case TopologyKnown:
		return "topology known"
	case Dispatching:
		return "dispatching"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome on one processor.
type Result struct {
	CPU      int
	Revision uint32
	// Applied is true if the processor reports the patch's revision.
	Applied bool
}

// Report summarizes an update. On failure it holds the results of the
// processors visited before the failing one.
type Report struct {
	Path           string
	UpdateRevision uint32
	Signature      microcode.Signature
	Topology       mp.Topology
	Results        []Result
}

// Updater applies a patch file to every enabled processor. The zero
// value is not usable, FS, Alloc and Locate must be set.
type Updater struct {
	FS     source.FS
	Alloc  source.Allocator
	Locate mp.Locator

	// Name of the patch file, source.DefaultPatchFile if empty.
	Name string
	// DryRun reads the active revision on every processor instead of
	// loading the patch.
	DryRun bool
	// Measure, if set, is called with the patch before it is applied.
	// Failures are logged only.
	Measure func(data ...[]byte) error
	// Host describes the running processor for diagnostics. It defaults
	// to HostCPU().
	Host *CPUInfo

	mu    sync.Mutex
	state State
	ran   bool
}

// State returns the current state.
func (u *Updater) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.state
}

func (u *Updater) setState(s State) {
	u.mu.Lock()
	defer u.mu.Unlock()

	stlog.Debug("update: %s -> %s", u.state, s)
	u.state = s
}

// Run performs the update. It may be called once; later calls return
// ErrAlreadyRun. The returned report is non-nil whenever the patch was
// parsed, also on failure.
func (u *Updater) Run() (*Report, error) {
	u.mu.Lock()
	if u.ran {
		u.mu.Unlock()

		return nil, sterror.E(sterror.Update, sterror.Op("run"), ErrAlreadyRun)
	}

	u.ran = true
	u.mu.Unlock()

	report, err := u.run()
	if err != nil {
		u.setState(Failed)

		return report, err
	}

	u.setState(Done)

	return report, nil
}

func (u *Updater) run() (*Report, error) {
	name := u.Name
	if name == "" {
		name = source.DefaultPatchFile
	}

	buf, err := source.Read(u.FS, u.Alloc, name)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := buf.Release(); err != nil {
			stlog.Warn("releasing patch buffer: %v", err)
		}
	}()

	patch, err := microcode.Parse(buf.Bytes())
	if err != nil {
		return nil, sterror.E(sterror.Update, sterror.Op("parse patch"), err)
	}

	u.setState(HeaderParsed)

	report := &Report{
		Path:           name,
		UpdateRevision: patch.Header.UpdateRevision(),
		Signature:      patch.Header.Signature(),
	}

	host := u.Host
	if host == nil {
		host = HostCPU()
	}

	describe(patch, host)

	svc, topo, err := u.topology()
	if err != nil {
		return report, err
	}

	report.Topology = topo

	u.setState(TopologyKnown)

	stlog.Info("%s", topo)
	stlog.Info("Processor %d appears to be the BSP", topo.BSP)

	if u.Measure != nil {
		if err := u.Measure(patch.Bytes()); err != nil {
			stlog.Warn("measuring patch: %v", err)
		}
	}

	op := dispatch.Load
	if u.DryRun {
		stlog.Info("Dry run: reading revisions only")

		op = dispatch.Probe
	}

	ctrl := dispatch.NewController(svc, op)
	address := payloadAddress(buf.Bytes())

	u.setState(Dispatching)

	for cpu := 0; cpu < topo.Enabled; cpu++ {
		stlog.Debug("Attempting to load microcode on processor %d", cpu)

		rev, err := ctrl.ApplyOn(cpu, topo.BSP, address)
		if err != nil {
			return report, sterror.E(sterror.Update, sterror.Op("dispatch"), err)
		}

		res := Result{CPU: cpu, Revision: rev, Applied: rev == report.UpdateRevision}
		report.Results = append(report.Results, res)

		stlog.Info("Processor %d is on microcode revision %#x", cpu, rev)
	}

	return report, nil
}

func (u *Updater) topology() (mp.Service, mp.Topology, error) {
	svc, err := u.Locate()
	if err != nil {
		if !errors.Is(err, mp.ErrServiceUnavailable) {
			err = fmt.Errorf("%w: %w", mp.ErrServiceUnavailable, err)
		}
		return nil, mp.Topology{}, sterror.E(sterror.Update, sterror.Op("locate service"), fmt.Errorf("%w: %w", ErrTopology, err))
	}

	topo, err := mp.Enumerate(svc)
	if err != nil {
		return nil, mp.Topology{}, sterror.E(sterror.Update, sterror.Op("topology"), fmt.Errorf("%w: %w", ErrTopology, err))
	}

	return svc, topo, nil
}

// payloadAddress is the address of the update data following the header
// in buf. buf must not be moved by the Go runtime while it is in use.
func payloadAddress(buf []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(buf)))) + microcode.HeaderSize
}

// ExitCode maps an error returned by Run to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, source.ErrFileNotFound):
		return 2
	case errors.Is(err, source.ErrRead):
		return 3
	case errors.Is(err, source.ErrAllocation):
		return 4
	case errors.Is(err, microcode.ErrMalformedHeader):
		return 5
	case errors.Is(err, ErrTopology):
		return 6
	case errors.Is(err, dispatch.ErrDispatchFailed):
		return 7
	default:
		return 1
	}
}
