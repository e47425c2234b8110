// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dir resolves patch files against a list of directories, searched in
// order. Absolute names are used as they are.
type Dir struct {
	SearchPaths []string
}

var _ FS = Dir{}

// Resolve implements FS.
func (d Dir) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if isRegular(name) {
			return name, nil
		}

		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	for _, dir := range d.SearchPaths {
		p := filepath.Join(dir, name)
		if isRegular(p) {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s not in %s", ErrFileNotFound, name, strings.Join(d.SearchPaths, ":"))
}

// Open implements FS.
func (d Dir) Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return osFile{f}, nil
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)

	return err == nil && fi.Mode().IsRegular()
}

type osFile struct {
	*os.File
}

func (f osFile) Size() (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}

	return fi.Size(), nil
}

// ReadAll reads from the start of the file until buf is full.
func (f osFile) ReadAll(buf []byte) (int, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	return io.ReadFull(f, buf)
}
