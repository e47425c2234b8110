// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.pdmccormick.com/initramfs"
)

// Initramfs resolves patch files as members of a (possibly concatenated
// and partially compressed) initramfs cpio archive, such as the early
// microcode archive the kernel reads.
type Initramfs struct {
	Archive string
}

var _ FS = Initramfs{}

//nolint:gochecknoglobals
var compressReaders = initramfs.CompressReaderMap{
	initramfs.Gzip:  initramfs.GzipReader,
	initramfs.Bzip2: initramfs.Bzip2Reader,
	initramfs.Xz:    func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) },
	initramfs.Zstd:  func(r io.Reader) (io.Reader, error) { return zstd.NewReader(r) },
}

var errStop = errors.New("stop")

// Resolve implements FS. name is matched against member paths, leading
// slashes ignored.
func (a Initramfs) Resolve(name string) (string, error) {
	want := strings.TrimPrefix(name, "/")

	var found string

	err := a.walk(func(hdr *initramfs.Header, _ io.Reader) error {
		if hdr.Filename == want {
			found = hdr.Filename

			return errStop
		}

		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", fmt.Errorf("%w: %s in %s: %v", ErrFileNotFound, name, a.Archive, err)
	}

	if found == "" {
		return "", fmt.Errorf("%w: %s not in %s", ErrFileNotFound, name, a.Archive)
	}

	return found, nil
}

// Open implements FS. The member is read into memory.
func (a Initramfs) Open(member string) (File, error) {
	var (
		data []byte
		seen bool
	)

	err := a.walk(func(hdr *initramfs.Header, r io.Reader) error {
		if hdr.Filename != member {
			return nil
		}

		seen = true

		var err error
		if data, err = io.ReadAll(io.LimitReader(r, int64(hdr.DataSize))); err != nil {
			return err
		}

		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	if !seen {
		return nil, fmt.Errorf("%s vanished from %s", member, a.Archive)
	}

	return &memFile{data: data}, nil
}

// walk calls fn for every regular file member until fn returns an error.
func (a Initramfs) walk(fn func(hdr *initramfs.Header, r io.Reader) error) error {
	f, err := os.Open(a.Archive)
	if err != nil {
		return err
	}
	defer f.Close()

	r := initramfs.NewReader(f)

	for {
		for _, hdr := range r.All() {
			if hdr.Trailer() || !hdr.Mode.File() {
				continue
			}

			if err := fn(&hdr, r); err != nil {
				return err
			}
		}

		compressed, _, err := r.ContinueCompressed(compressReaders)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if !compressed {
			return nil
		}
	}
}

// WriteMicrocode adds patch to iw as member dst followed by a trailer.
// Intel data is aligned the way the kernel's early loader expects.
func WriteMicrocode(iw *initramfs.Writer, dst string, patch []byte) error {
	// Parent directories first, alignment only holds for the next header.
	if err := iw.MkdirAll(path.Dir(dst), 0); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	if dst == initramfs.MicrocodePath_GenuineIntel {
		if err := iw.SetDataAlignment(initramfs.MicrocodeDataAlignment); err != nil {
			return fmt.Errorf("set data alignment: %w", err)
		}
	}

	hdr := initramfs.Header{
		Filename: dst,
		Mode:     initramfs.Mode_File.WithPerms(0o644),
		DataSize: uint32(len(patch)),
	}

	if err := iw.WriteHeader(&hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if _, err := iw.Write(patch); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	return iw.WriteTrailer()
}

type memFile struct {
	data []byte
}

func (m *memFile) Size() (int64, error) { return int64(len(m.data)), nil }

func (m *memFile) ReadAll(buf []byte) (int, error) {
	n := copy(buf, m.data)
	if n < len(buf) {
		return n, io.ErrUnexpectedEOF
	}

	return n, nil
}

func (m *memFile) Close() error {
	m.data = nil

	return nil
}
