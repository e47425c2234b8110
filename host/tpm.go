// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/u-root/u-root/pkg/tss"
	"system-transparency.org/ucode/stlog"
)

// MicrocodePCR is extended with the patch before it is applied.
const MicrocodePCR uint32 = 8

// MeasureTPM extends MicrocodePCR with each of data in order.
func MeasureTPM(data ...[]byte) error {
	tpm, err := tss.NewTPM()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTPM, err)
	}

	defer tpm.Close()

	if i, err := tpm.Info(); err == nil {
		if str, err := json.MarshalIndent(i, "", "  "); err == nil {
			stlog.Debug("TPM info: %s", str)
		}
	}

	for n, d := range data {
		stlog.Debug("Measuring element %d (%s) into PCR %d", n+1, humanize.IBytes(uint64(len(d))), MicrocodePCR)

		if err := tpm.Measure(d, MicrocodePCR); err != nil {
			return fmt.Errorf("%w: element %d: %v", ErrTPM, n+1, err)
		}
	}

	return nil
}
