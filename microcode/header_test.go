// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package microcode

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"system-transparency.org/ucode/internal/hosttest"
)

var testFields = hosttest.PatchFields{
	HeaderVersion:      1,
	UpdateRevision:     0xf0,
	Date:               0x03272019,
	ProcessorSignature: 0x000906ea,
	LoaderRevision:     1,
	ProcessorFlags:     0x22,
	DataSize:           2000,
	TotalSize:          2048,
}

func TestDecodeHeader(t *testing.T) {
	buf := hosttest.BuildPatch(testFields, 2048)

	h, err := DecodeHeader(buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), h.HeaderVersion())
	assert.Equal(t, uint32(0xf0), h.UpdateRevision())
	assert.Equal(t, uint32(0x03272019), h.RawDate())
	assert.Equal(t, uint32(0x000906ea), h.ProcessorSignature())
	assert.Equal(t, uint32(1), h.LoaderRevision())
	assert.Equal(t, uint32(0x22), h.ProcessorFlags())
	assert.Equal(t, uint32(2000), h.DataSize())
	assert.Equal(t, uint32(2048), h.TotalSize())
	assert.Equal(t, uint32(2000), h.PayloadSize())
	assert.Len(t, h, HeaderSize)
}

func TestDecodeHeaderIsAView(t *testing.T) {
	buf := hosttest.BuildPatch(testFields, 2048)

	h, err := DecodeHeader(buf)
	require.NoError(t, err)

	buf[offUpdateRevision] = 0xf4
	assert.Equal(t, uint32(0xf4), h.UpdateRevision())
}

func TestDecodeHeaderDeterministic(t *testing.T) {
	buf := hosttest.BuildPatch(testFields, 2048)

	a, err := DecodeHeader(buf)
	require.NoError(t, err)

	b, err := DecodeHeader(buf)
	require.NoError(t, err)

	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, []byte(a), []byte(b))
}

func TestDecodeHeaderMalformed(t *testing.T) {
	for _, tt := range []struct {
		name string
		buf  []byte
	}{
		{
			name: "empty buffer",
			buf:  nil,
		},
		{
			name: "buffer shorter than header",
			buf:  make([]byte, HeaderSize-1),
		},
		{
			name: "total size zero",
			buf:  hosttest.BuildPatch(hosttest.PatchFields{HeaderVersion: 1}, 2048),
		},
		{
			name: "total size one below header",
			buf:  hosttest.BuildPatch(hosttest.PatchFields{DataSize: 10, TotalSize: HeaderSize - 1}, 2048),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeader(tt.buf)
			if !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("DecodeHeader() err = %v, want %v", err, ErrMalformedHeader)
			}
		})
	}
}

func TestDecodeHeaderTotalSizeAtMinimum(t *testing.T) {
	buf := hosttest.BuildPatch(hosttest.PatchFields{TotalSize: HeaderSize}, HeaderSize)

	h, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h.PayloadSize())
}

func TestDefaultDataSize(t *testing.T) {
	f := testFields
	f.DataSize = 0

	h, err := DecodeHeader(hosttest.BuildPatch(f, 2048))
	require.NoError(t, err)

	assert.Equal(t, uint32(0), h.RawDataSize())
	assert.Equal(t, uint32(DefaultDataSize), h.DataSize())
}

func TestHeaderDate(t *testing.T) {
	for _, tt := range []struct {
		raw     uint32
		want    time.Time
		wantErr bool
	}{
		{0x03272019, time.Date(2019, time.March, 27, 0, 0, 0, 0, time.UTC), false},
		{0x12312001, time.Date(2001, time.December, 31, 0, 0, 0, 0, time.UTC), false},
		{0x13012019, time.Time{}, true},
		{0x0a012019, time.Time{}, true},
		{0x00002019, time.Time{}, true},
	} {
		f := testFields
		f.Date = tt.raw

		h, err := DecodeHeader(hosttest.BuildPatch(f, 2048))
		require.NoError(t, err)

		got, err := h.Date()
		if tt.wantErr {
			assert.Error(t, err, "%08x", tt.raw)

			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSignature(t *testing.T) {
	for _, tt := range []struct {
		sig                     Signature
		family, model, stepping uint32
	}{
		{0x000906ea, 0x6, 0x9e, 0xa},
		{0x000306c3, 0x6, 0x3c, 0x3},
		{0x00000f29, 0xf, 0x2, 0x9},
		{0x00000611, 0x6, 0x1, 0x1},
	} {
		assert.Equal(t, tt.family, tt.sig.Family(), "%s", tt.sig)
		assert.Equal(t, tt.model, tt.sig.Model(), "%s", tt.sig)
		assert.Equal(t, tt.stepping, tt.sig.Stepping(), "%s", tt.sig)
	}
}

func TestHeaderString(t *testing.T) {
	h, err := DecodeHeader(hosttest.BuildPatch(testFields, 2048))
	require.NoError(t, err)

	s := h.String()
	assert.Contains(t, s, "revision 0xf0")
	assert.Contains(t, s, "date 2019-03-27")
	assert.Contains(t, s, "family 0x6 model 0x9e stepping 0xa")
}
