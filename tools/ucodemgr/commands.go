// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.pdmccormick.com/initramfs"
	"system-transparency.org/ucode/microcode"
	"system-transparency.org/ucode/source"
)

const (
	vendorIntel = "intel"
	vendorAMD   = "amd"

	compressNone = "none"
	compressGzip = "gzip"
	compressXz   = "xz"
	compressZstd = "zstd"
)

func vendorPath(vendor string) (string, error) {
	switch vendor {
	case vendorIntel:
		return initramfs.MicrocodePath_GenuineIntel, nil
	case vendorAMD:
		return initramfs.MicrocodePath_AuthenticAMD, nil
	default:
		return "", fmt.Errorf("unknown vendor %q", vendor)
	}
}

func compressor(name string) (initramfs.CompressWriter, error) {
	switch name {
	case compressNone:
		return nil, nil
	case compressGzip:
		return initramfs.GzipWriter, nil
	case compressXz:
		return func(w io.Writer) (io.Writer, error) { return xz.NewWriter(w) }, nil
	case compressZstd:
		return func(w io.Writer) (io.Writer, error) { return zstd.NewWriter(w) }, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

func showCmd(out io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p, err := microcode.Parse(data)
	if err != nil {
		return err
	}

	h := p.Header

	date := "invalid"
	if d, err := h.Date(); err == nil {
		date = d.Format("2006-01-02")
	}

	checksum := "valid"
	if !p.ChecksumValid() {
		checksum = "INVALID"
	}

	fmt.Fprintf(out, "File:               %s (%s)\n", path, humanize.IBytes(uint64(len(data))))
	fmt.Fprintf(out, "Header version:     %d\n", h.HeaderVersion())
	fmt.Fprintf(out, "Update revision:    %#x\n", h.UpdateRevision())
	fmt.Fprintf(out, "Date:               %s\n", date)
	fmt.Fprintf(out, "Signature:          %#x (%s)\n", h.ProcessorSignature(), h.Signature())
	fmt.Fprintf(out, "Processor flags:    %#x\n", h.ProcessorFlags())
	fmt.Fprintf(out, "Loader revision:    %#x\n", h.LoaderRevision())
	if h.RawDataSize() == 0 {
		fmt.Fprintf(out, "Data size:          0 (implied %d)\n", microcode.DefaultDataSize)
	} else {
		fmt.Fprintf(out, "Data size:          %d\n", h.RawDataSize())
	}
	fmt.Fprintf(out, "Total size:         %d\n", h.TotalSize())
	fmt.Fprintf(out, "Checksum:           %#x (%s)\n", h.Checksum(), checksum)

	return nil
}

func extractCmd(archive, vendor, out string) error {
	member, err := vendorPath(vendor)
	if err != nil {
		return err
	}

	buf, err := source.Read(source.Initramfs{Archive: archive}, source.HeapAllocator{}, member)
	if err != nil {
		return err
	}

	defer buf.Release()

	return os.WriteFile(out, buf.Bytes(), 0o644)
}

func packCmd(patch, vendor, compress, out string) (err error) {
	member, err := vendorPath(vendor)
	if err != nil {
		return err
	}

	cw, err := compressor(compress)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(patch)
	if err != nil {
		return err
	}

	if vendor == vendorIntel {
		if _, err := microcode.Parse(data); err != nil {
			return fmt.Errorf("%s: %w", patch, err)
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}

	iw := initramfs.NewWriter(f)

	defer func() {
		if cerr := iw.Close(); err == nil {
			err = cerr
		}
	}()

	if cw != nil {
		if err := iw.StartCompression(cw); err != nil {
			return err
		}
	}

	return source.WriteMicrocode(iw, member, data)
}
