// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package microcode

import (
	"encoding/binary"
	"fmt"

	"system-transparency.org/ucode/sterror"
)

// Patch is a decoded microcode patch. Header and Payload alias the
// buffer passed to Parse, which must outlive the Patch.
type Patch struct {
	Header  Header
	Payload []byte

	raw []byte
}

// Parse decodes the patch at the start of buf. Bytes past TotalSize are
// ignored.
func Parse(buf []byte) (*Patch, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}

	total := int(h.TotalSize())
	if len(buf) < total {
		return nil, sterror.E(sterror.Patch, sterror.Op("parse patch"), ErrMalformedHeader,
			fmt.Sprintf("buffer holds %d bytes, header declares %d", len(buf), total))
	}

	return &Patch{
		Header:  h,
		Payload: buf[HeaderSize:total:total],
		raw:     buf[:total:total],
	}, nil
}

// Bytes returns the complete patch including the header.
func (p *Patch) Bytes() []byte {
	return p.raw
}

// ChecksumValid reports whether the 32-bit little-endian words of the
// patch sum up to zero.
func (p *Patch) ChecksumValid() bool {
	if len(p.raw)%4 != 0 {
		return false
	}

	var sum uint32

	for i := 0; i < len(p.raw); i += 4 {
		sum += binary.LittleEndian.Uint32(p.raw[i:])
	}

	return sum == 0
}
