// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockedAllocator maps anonymous memory outside the Go heap and locks it
// into RAM, so the address handed to the processors stays valid and
// resident while they read from it.
type LockedAllocator struct{}

// Allocate implements Allocator.
func (LockedAllocator) Allocate(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrAllocation, size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrAllocation, err)
	}

	if err := unix.Mlock(data); err != nil {
		_ = unix.Munmap(data)

		return nil, fmt.Errorf("%w: mlock: %v", ErrAllocation, err)
	}

	return NewBuffer(data, release), nil
}

func release(data []byte) error {
	if err := unix.Munlock(data); err != nil {
		_ = unix.Munmap(data)

		return fmt.Errorf("munlock: %w", err)
	}

	return unix.Munmap(data)
}
