// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"system-transparency.org/ucode/internal/hosttest"
)

const addr uint64 = 0x7f0000001030

func TestApplyOnBSPIsLocal(t *testing.T) {
	svc := hosttest.NewService(4, 4, 1, 0xb4, map[uint64]uint32{addr: 0xf0})
	c := NewController(svc, nil)

	rev, err := c.ApplyOn(1, 1, addr)
	require.NoError(t, err)

	assert.Equal(t, uint32(0xf0), rev)
	assert.Empty(t, svc.Remote, "no remote call for the BSP")
	assert.Equal(t, []int{1}, svc.Local)
	assert.Equal(t, uint32(0xf0), svc.CPUs[1].Revision)
	assert.Equal(t, uint32(0xb4), svc.CPUs[0].Revision)
}

func TestApplyOnAP(t *testing.T) {
	svc := hosttest.NewService(4, 4, 1, 0xb4, map[uint64]uint32{addr: 0xf0})
	c := NewController(svc, nil)

	rev, err := c.ApplyOn(3, 1, addr)
	require.NoError(t, err)

	assert.Equal(t, uint32(0xf0), rev)
	assert.Equal(t, []int{3}, svc.Remote)
	assert.Empty(t, svc.Local)
	assert.Equal(t, uint32(0xf0), svc.CPUs[3].Revision)
	assert.Equal(t, uint32(0xb4), svc.CPUs[1].Revision)
}

func TestApplyOnLaunchFailure(t *testing.T) {
	launch := errors.New("AP not responding")
	svc := hosttest.NewService(4, 4, 0, 0xb4, nil)
	svc.RunOnErr = map[int]error{2: launch}

	_, err := NewController(svc, nil).ApplyOn(2, 0, addr)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.ErrorIs(t, err, launch)

	var derr *CPUError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 2, derr.CPU)
	assert.Equal(t, uint32(0xb4), svc.CPUs[2].Revision)
}

func TestApplyOnRegisterFailure(t *testing.T) {
	eio := errors.New("EIO")
	svc := hosttest.NewService(2, 2, 0, 0xb4, nil)
	svc.CPUs[0].Err = eio
	svc.CPUs[1].Err = eio

	c := NewController(svc, nil)

	for _, target := range []int{0, 1} {
		_, err := c.ApplyOn(target, 0, addr)

		var derr *CPUError
		require.True(t, errors.As(err, &derr), "target %d: %v", target, err)
		assert.Equal(t, target, derr.CPU)
		assert.ErrorIs(t, err, eio)
	}
}

func TestProbeLeavesRevision(t *testing.T) {
	svc := hosttest.NewService(2, 2, 0, 0xb4, map[uint64]uint32{addr: 0xf0})
	c := NewController(svc, Probe)

	for target := 0; target < 2; target++ {
		rev, err := c.ApplyOn(target, 0, addr)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xb4), rev)
		assert.NotContains(t, svc.CPUs[target].Accesses, hosttest.Access{Op: "wrmsr", Reg: 0x79, Value: addr})
	}
}

func TestErrorString(t *testing.T) {
	err := &CPUError{CPU: 5, Err: errors.New("boom")}
	assert.Equal(t, "dispatch failed on processor 5: boom", err.Error())
}

func TestCPUErrorMatchesSentinel(t *testing.T) {
	var err error = &CPUError{CPU: 1, Err: errors.New("boom")}

	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.NotErrorIs(t, err, Error("other"))
	assert.Equal(t, "dispatch failed", ErrDispatchFailed.Error())
}
