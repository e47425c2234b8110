// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package update

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
	"system-transparency.org/ucode/microcode"
	"system-transparency.org/ucode/stlog"
)

// CPUInfo identifies the processor model running the update.
type CPUInfo struct {
	Brand    string
	Intel    bool
	Family   int
	Model    int
	Stepping int
}

// HostCPU describes the processor Run is called on.
func HostCPU() *CPUInfo {
	return &CPUInfo{
		Brand:    cpuid.CPU.BrandName,
		Intel:    cpuid.CPU.VendorID == cpuid.Intel,
		Family:   cpuid.CPU.Family,
		Model:    cpuid.CPU.Model,
		Stepping: cpuid.CPU.Stepping,
	}
}

// Matches reports whether sig names this processor model.
func (c *CPUInfo) Matches(sig microcode.Signature) bool {
	return c.Intel &&
		uint32(c.Family) == sig.Family() &&
		uint32(c.Model) == sig.Model() &&
		uint32(c.Stepping) == sig.Stepping()
}

// describe logs the patch header. Nothing found here stops the update.
func describe(p *microcode.Patch, host *CPUInfo) {
	h := p.Header

	stlog.Info("Patch header version = %d", h.HeaderVersion())
	stlog.Info("Patch update revision = %#x", h.UpdateRevision())
	stlog.Info("Patch date = %08x", h.RawDate())
	stlog.Info("Patch processor signature = %#x (%s)", h.ProcessorSignature(), h.Signature())
	stlog.Info("Patch checksum = %#x", h.Checksum())
	stlog.Info("Patch loader revision = %#x", h.LoaderRevision())
	stlog.Info("Patch processor flags = %#x", h.ProcessorFlags())
	stlog.Info("Patch data size = %s", dataSize(h))
	stlog.Info("Patch total size = %#x (%s)", h.TotalSize(), humanize.IBytes(uint64(h.TotalSize())))

	if _, err := h.Date(); err != nil {
		stlog.Warn("Patch date is not valid BCD: %v", err)
	}

	if !p.ChecksumValid() {
		stlog.Warn("Patch checksum does not verify")
	}

	if !host.Matches(h.Signature()) {
		stlog.Warn("Patch signature %s does not match host processor %s (family %#x model %#x stepping %d)",
			h.Signature(), host.Brand, host.Family, host.Model, host.Stepping)
	}
}

// dataSize formats the header's stored data size, noting the implied
// size when the field is 0.
func dataSize(h microcode.Header) string {
	if h.RawDataSize() == 0 {
		return fmt.Sprintf("0 (implied %#x, %s)", microcode.DefaultDataSize, humanize.IBytes(microcode.DefaultDataSize))
	}

	return fmt.Sprintf("%#x (%s)", h.RawDataSize(), humanize.IBytes(uint64(h.RawDataSize())))
}
