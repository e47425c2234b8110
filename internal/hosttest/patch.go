// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hosttest

import "encoding/binary"

const patchHeaderSize = 48

// PatchFields are the header fields of a test patch.
type PatchFields struct {
	HeaderVersion      uint32
	UpdateRevision     uint32
	Date               uint32
	ProcessorSignature uint32
	LoaderRevision     uint32
	ProcessorFlags     uint32
	DataSize           uint32
	TotalSize          uint32
}

// BuildPatch returns a blob of size bytes starting with a header holding
// f. The payload is filled with a counting pattern and, if the blob is
// word aligned and TotalSize covers it exactly, the checksum is set so
// the words sum to zero.
func BuildPatch(f PatchFields, size int) []byte {
	if size < patchHeaderSize {
		size = patchHeaderSize
	}

	buf := make([]byte, size)
	le := binary.LittleEndian

	for i, v := range []uint32{
		f.HeaderVersion, f.UpdateRevision, f.Date, f.ProcessorSignature,
		0, f.LoaderRevision, f.ProcessorFlags, f.DataSize, f.TotalSize,
	} {
		le.PutUint32(buf[4*i:], v)
	}

	for i := patchHeaderSize; i < size; i++ {
		buf[i] = byte(i)
	}

	if int(f.TotalSize) == size && size%4 == 0 {
		var sum uint32
		for i := 0; i < size; i += 4 {
			sum += le.Uint32(buf[i:])
		}

		le.PutUint32(buf[16:], -sum)
	}

	return buf
}
