// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

// Error reports problems regarding the host environment and hardware.
type Error string

// Error implements error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	ErrNoMSRDevice   = Error("no MSR device")
	ErrNoCPUIDDevice = Error("no CPUID device")
	ErrShortAccess   = Error("short register access")
	ErrTPM           = Error("failed to measure TPM")
)
