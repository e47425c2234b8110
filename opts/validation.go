// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package opts

import (
	"path/filepath"
	"strings"

	"system-transparency.org/ucode/stlog"
)

const (
	ErrMissingPatchFile   = InvalidError("patch file must be set")
	ErrInvalidPatchFile   = InvalidError("patch file must be a plain name or an absolute path")
	ErrMissingSearchPaths = InvalidError("search paths must not be empty when no initramfs is set")
	ErrRelativeSearchPath = InvalidError("search paths must be absolute")
	ErrUnknownLogLevel    = InvalidError("unknown log level")
	ErrUnknownLogOutput   = InvalidError("unknown log output")
)

// Validater is the interface that wraps the Validate method.
//
// Validate takes Opts and performs validation on it. If Opts is not
// valid an InvalidError is returned.
type Validater interface {
	Validate(*Opts) error
}

type validFunc func(*Opts) error

// ValidationSet is a collection of validation functions.
type ValidationSet []validFunc

// Validate implements Validater.
func (v *ValidationSet) Validate(opts *Opts) error {
	for _, f := range *v {
		if err := f(opts); err != nil {
			return err
		}
	}

	return nil
}

// ConfigValidation is a Validater for the fields of Config.
func ConfigValidation() *ValidationSet {
	return &ValidationSet{
		checkPatchFile,
		checkSearchPaths,
		checkLogLevel,
		checkLogOutput,
	}
}

func checkPatchFile(opts *Opts) error {
	name := opts.PatchFile
	if name == "" {
		return ErrMissingPatchFile
	}

	if opts.Initramfs != "" {
		return nil
	}

	if !filepath.IsAbs(name) && strings.ContainsRune(name, filepath.Separator) {
		return ErrInvalidPatchFile
	}

	return nil
}

func checkSearchPaths(opts *Opts) error {
	if opts.Initramfs != "" {
		return nil
	}

	if len(opts.SearchPaths) == 0 && !filepath.IsAbs(opts.PatchFile) {
		return ErrMissingSearchPaths
	}

	for _, p := range opts.SearchPaths {
		if !filepath.IsAbs(p) {
			return ErrRelativeSearchPath
		}
	}

	return nil
}

func checkLogLevel(opts *Opts) error {
	if _, ok := stlog.ParseLevel(opts.LogLevel); !ok {
		return ErrUnknownLogLevel
	}

	return nil
}

func checkLogOutput(opts *Opts) error {
	switch opts.LogOutput {
	case OutputStderr, OutputKmsg:
		return nil
	default:
		return ErrUnknownLogOutput
	}
}
