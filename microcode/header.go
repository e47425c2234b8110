// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package microcode decodes Intel microcode update patches and loads
// them into the processor it runs on.
package microcode

import (
	"encoding/binary"
	"fmt"
	"time"

	"system-transparency.org/ucode/sterror"
)

// Error reports problems with microcode patches.
type Error string

// Error implements error interface.
func (e Error) Error() string {
	return string(e)
}

const ErrMalformedHeader = Error("malformed microcode header")

const (
	// HeaderSize is the size of the fixed patch header.
	HeaderSize = 48
	// DefaultDataSize is implied when the header's DataSize is 0.
	DefaultDataSize = 2000
)

// Field offsets within the header.
const (
	offHeaderVersion      = 0
	offUpdateRevision     = 4
	offDate               = 8
	offProcessorSignature = 12
	offChecksum           = 16
	offLoaderRevision     = 20
	offProcessorFlags     = 24
	offDataSize           = 28
	offTotalSize          = 32
)

// Header is a read-only view of the first HeaderSize bytes of a patch.
// It aliases the buffer it was decoded from.
type Header []byte

// DecodeHeader returns a view of the header at the start of buf.
func DecodeHeader(buf []byte) (Header, error) {
	const operation = sterror.Op("decode header")

	if len(buf) < HeaderSize {
		return nil, sterror.E(sterror.Patch, operation, ErrMalformedHeader,
			fmt.Sprintf("%d bytes, need at least %d", len(buf), HeaderSize))
	}

	h := Header(buf[:HeaderSize:HeaderSize])

	if h.TotalSize() < HeaderSize {
		return nil, sterror.E(sterror.Patch, operation, ErrMalformedHeader,
			fmt.Sprintf("total size %d smaller than header", h.TotalSize()))
	}

	return h, nil
}

func (h Header) field(off int) uint32 {
	return binary.LittleEndian.Uint32(h[off:])
}

func (h Header) HeaderVersion() uint32      { return h.field(offHeaderVersion) }
func (h Header) UpdateRevision() uint32     { return h.field(offUpdateRevision) }
func (h Header) RawDate() uint32            { return h.field(offDate) }
func (h Header) ProcessorSignature() uint32 { return h.field(offProcessorSignature) }
func (h Header) Checksum() uint32           { return h.field(offChecksum) }
func (h Header) LoaderRevision() uint32     { return h.field(offLoaderRevision) }
func (h Header) ProcessorFlags() uint32     { return h.field(offProcessorFlags) }
func (h Header) RawDataSize() uint32        { return h.field(offDataSize) }
func (h Header) TotalSize() uint32          { return h.field(offTotalSize) }

// DataSize is the size of the update data, applying the default for
// headers that leave the field 0.
func (h Header) DataSize() uint32 {
	if s := h.RawDataSize(); s != 0 {
		return s
	}

	return DefaultDataSize
}

// PayloadSize is the number of bytes following the header.
func (h Header) PayloadSize() uint32 {
	return h.TotalSize() - HeaderSize
}

// Date decodes the BCD encoded mmddyyyy date field.
func (h Header) Date() (time.Time, error) {
	d := h.RawDate()

	month, ok1 := bcd(d>>24, 2)
	day, ok2 := bcd(d>>16, 2)
	year, ok3 := bcd(d, 4)

	if !ok1 || !ok2 || !ok3 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid BCD date %08x", d)
	}

	return time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC), nil
}

func bcd(v uint32, digits int) (uint32, bool) {
	var n uint32

	for i := digits - 1; i >= 0; i-- {
		nibble := (v >> (4 * uint(i))) & 0xf
		if nibble > 9 {
			return 0, false
		}

		n = n*10 + nibble
	}

	return n, true
}

// Signature returns the decoded processor signature.
func (h Header) Signature() Signature {
	return Signature(h.ProcessorSignature())
}

// String formats the header fields for diagnostics.
func (h Header) String() string {
	date := fmt.Sprintf("%08x", h.RawDate())
	if d, err := h.Date(); err == nil {
		date = d.Format("2006-01-02")
	}

	return fmt.Sprintf("version %d, revision %#x, date %s, signature %#x (%s), checksum %#x, "+
		"loader revision %#x, flags %#x, data size %#x, total size %#x",
		h.HeaderVersion(), h.UpdateRevision(), date, h.ProcessorSignature(), h.Signature(),
		h.Checksum(), h.LoaderRevision(), h.ProcessorFlags(), h.RawDataSize(), h.TotalSize())
}

// Signature is a processor signature as reported in EAX of CPUID leaf 1.
type Signature uint32

func (s Signature) Stepping() uint32 { return uint32(s) & 0xf }

// Family is the display family including the extended family bits.
func (s Signature) Family() uint32 {
	f := (uint32(s) >> 8) & 0xf
	if f == 0xf {
		f += (uint32(s) >> 20) & 0xff
	}

	return f
}

// Model is the display model including the extended model bits.
func (s Signature) Model() uint32 {
	m := (uint32(s) >> 4) & 0xf
	if f := (uint32(s) >> 8) & 0xf; f == 0x6 || f == 0xf {
		m |= ((uint32(s) >> 16) & 0xf) << 4
	}

	return m
}

// String implements fmt.Stringer.
func (s Signature) String() string {
	return fmt.Sprintf("family %#x model %#x stepping %#x", s.Family(), s.Model(), s.Stepping())
}
