// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package source locates a microcode patch file and reads it into a
// buffer the processors can load from.
package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"system-transparency.org/ucode/sterror"
	"system-transparency.org/ucode/stlog"
)

// Error reports problems reading the patch file.
type Error string

// Error implements error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	ErrFileNotFound = Error("patch file not found")
	ErrRead         = Error("reading patch file failed")
	ErrAllocation   = Error("allocating patch buffer failed")
)

// DefaultPatchFile is the conventional name of the staged patch.
const DefaultPatchFile = "ucode.pdb"

// FS resolves and opens patch files.
type FS interface {
	// Resolve returns the path of name or an error wrapping
	// ErrFileNotFound.
	Resolve(name string) (string, error)
	Open(path string) (File, error)
}

// File is an open patch file.
type File interface {
	io.Closer
	Size() (int64, error)
	// ReadAll reads the file from its start into buf and returns the
	// number of bytes read.
	ReadAll(buf []byte) (int, error)
}

// Allocator provides buffers for patch data.
type Allocator interface {
	Allocate(size int) (*Buffer, error)
}

// Buffer is memory holding patch data. Release must be called once the
// buffer is no longer used.
type Buffer struct {
	data    []byte
	release func([]byte) error
}

// NewBuffer wraps data. release, if not nil, is called by Release.
func NewBuffer(data []byte, release func([]byte) error) *Buffer {
	return &Buffer{data: data, release: release}
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Release frees the buffer. Further calls are no-ops.
func (b *Buffer) Release() error {
	if b == nil || b.data == nil {
		return nil
	}

	data := b.data
	b.data = nil

	if b.release == nil {
		return nil
	}

	return b.release(data)
}

// HeapAllocator allocates from the Go heap.
type HeapAllocator struct{}

// Allocate implements Allocator.
func (HeapAllocator) Allocate(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrAllocation, size)
	}

	return NewBuffer(make([]byte, size), nil), nil
}

// Read resolves name, reads the whole file into a buffer from alloc and
// returns it. The file is closed before Read returns. On error no buffer
// is returned and everything allocated is released.
func Read(fs FS, alloc Allocator, name string) (*Buffer, error) {
	path, err := fs.Resolve(name)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, sterror.E(sterror.Source, sterror.Op("resolve"), err)
		}

		return nil, sterror.E(sterror.Source, sterror.Op("resolve"), ErrFileNotFound, err.Error())
	}

	stlog.Debug("Patch file %q resolved to %s", name, path)

	f, err := fs.Open(path)
	if err != nil {
		return nil, sterror.E(sterror.Source, sterror.Op("open"), ErrRead, fmt.Sprintf("%s: %v", path, err))
	}

	defer func() {
		if cerr := f.Close(); cerr != nil {
			stlog.Warn("closing %s: %v", path, cerr)
		}
	}()

	size, err := f.Size()
	if err != nil {
		return nil, sterror.E(sterror.Source, sterror.Op("size"), ErrRead, fmt.Sprintf("%s: %v", path, err))
	}

	if size <= 0 {
		return nil, sterror.E(sterror.Source, sterror.Op("size"), ErrRead, fmt.Sprintf("%s is empty", path))
	}

	buf, err := alloc.Allocate(int(size))
	if err != nil {
		return nil, sterror.E(sterror.Source, sterror.Op("allocate"), ErrAllocation,
			fmt.Sprintf("%s: %v", humanize.IBytes(uint64(size)), err))
	}

	n, err := f.ReadAll(buf.Bytes())
	if err == nil && int64(n) != size {
		err = fmt.Errorf("read %d of %d bytes", n, size)
	}

	if err != nil {
		if rerr := buf.Release(); rerr != nil {
			stlog.Warn("releasing patch buffer: %v", rerr)
		}

		return nil, sterror.E(sterror.Source, sterror.Op("read"), ErrRead, fmt.Sprintf("%s: %v", path, err))
	}

	stlog.Debug("Read %s from %s", humanize.IBytes(uint64(n)), path)

	return buf, nil
}
