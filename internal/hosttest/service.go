// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hosttest

import (
	"sync"

	"system-transparency.org/ucode/mp"
)

// Service is an instrumented mp.Service over a set of Registers.
type Service struct {
	mu sync.Mutex

	Total   int
	Current int
	CPUs    []*Registers

	CountsErr error
	WhoAmIErr error
	// RunOnErr makes RunOn fail for the given processor without running
	// the procedure.
	RunOnErr map[int]error

	// Queries counts ProcessorCounts and WhoAmI calls.
	Queries int
	// Local and Remote record the processors procedures ran on.
	Local  []int
	Remote []int
}

var _ mp.Service = (*Service)(nil)

// NewService returns a service with enabled processors all running
// revision, the caller being processor current.
func NewService(total, enabled, current int, revision uint32, patches map[uint64]uint32) *Service {
	s := &Service{
		Total:   total,
		Current: current,
	}

	for i := 0; i < enabled; i++ {
		s.CPUs = append(s.CPUs, NewRegisters(revision, patches))
	}

	return s
}

// Locator returns an mp.Locator handing out s.
func (s *Service) Locator() mp.Locator {
	return func() (mp.Service, error) { return s, nil }
}

// ProcessorCounts implements mp.Service.
func (s *Service) ProcessorCounts() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Queries++

	if s.CountsErr != nil {
		return 0, 0, s.CountsErr
	}

	return s.Total, len(s.CPUs), nil
}

// WhoAmI implements mp.Service.
func (s *Service) WhoAmI() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Queries++

	if s.WhoAmIErr != nil {
		return 0, s.WhoAmIErr
	}

	return s.Current, nil
}

// RunHere implements mp.Service.
func (s *Service) RunHere(proc mp.Procedure) error {
	s.mu.Lock()
	s.Local = append(s.Local, s.Current)
	regs := s.CPUs[s.Current]
	s.mu.Unlock()

	proc(regs)

	return nil
}

// RunOn implements mp.Service. The procedure runs on its own goroutine
// and the caller waits for it, like on real hardware.
func (s *Service) RunOn(cpu int, proc mp.Procedure) error {
	s.mu.Lock()
	s.Remote = append(s.Remote, cpu)
	err := s.RunOnErr[cpu]
	s.mu.Unlock()

	if err != nil {
		return err
	}

	if cpu < 0 || cpu >= len(s.CPUs) {
		return mp.ErrNoSuchProcessor
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		proc(s.CPUs[cpu])
	}()

	<-done

	return nil
}
