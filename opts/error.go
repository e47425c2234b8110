// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package opts

// Error reports problems while loading and validating configuration data.
type Error string

// Error implements error interface.
func (e Error) Error() string {
	return string(e)
}

// InvalidError reports invalid data of Opts.
type InvalidError string

// Error implements error interface.
func (e InvalidError) Error() string {
	return string(e)
}

// ErrNonNil is used for testing.
const ErrNonNil = Error("")

const (
	ErrNoSrcProvided = Error("no source provided")
	ErrUnknownKey    = Error("unknown JSON key")
)
