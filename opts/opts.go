// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package opts holds the configuration of a ucode run.
package opts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"system-transparency.org/ucode/internal/jsonutil"
	"system-transparency.org/ucode/source"
	"system-transparency.org/ucode/sterror"
	"system-transparency.org/ucode/stlog"
)

// DefaultConfigFile is read if present.
const DefaultConfigFile = "/etc/ucode/config.json"

// DefaultSearchPaths are searched for the patch file when nothing else
// is configured.
//
//nolint:gochecknoglobals
var DefaultSearchPaths = []string{"/lib/firmware/ucode", "/boot", "/"}

// Log outputs.
const (
	OutputStderr = "stderr"
	OutputKmsg   = "kmsg"
)

// Loader fills particular fields of Opts depending on its source.
type Loader func(*Opts) error

// Config is the part of Opts read from the configuration file. Omitted
// keys keep their previous value.
type Config struct {
	PatchFile   string   `json:"patch_file"`
	SearchPaths []string `json:"search_paths"`
	// Initramfs, if set, is a cpio archive the patch file is read from
	// instead of the search paths.
	Initramfs   string `json:"initramfs"`
	LogLevel    string `json:"log_level"`
	LogOutput   string `json:"log_output"`
	DryRun      bool   `json:"dry_run"`
	Measure     bool   `json:"measure"`
	LoadModules bool   `json:"load_modules"`
}

// Opts controls the operation of ucode.
type Opts struct {
	Config
}

// NewOpts returns a new Opts initialized by the provided Loaders.
func NewOpts(loaders ...Loader) (*Opts, error) {
	opts := &Opts{}

	for _, l := range loaders {
		if err := l(opts); err != nil {
			return nil, err
		}
	}

	return opts, nil
}

// WithDefaults sets defaults for every field.
func WithDefaults() Loader {
	return func(o *Opts) error {
		o.Config = Config{
			PatchFile:   source.DefaultPatchFile,
			SearchPaths: append([]string(nil), DefaultSearchPaths...),
			LogLevel:    "info",
			LogOutput:   OutputStderr,
			LoadModules: true,
		}

		return nil
	}
}

// WithConfig reads JSON configuration from src. Unknown keys are an error.
func WithConfig(src io.Reader) Loader {
	return func(o *Opts) error {
		if src == nil {
			return sterror.E(sterror.Opts, sterror.Op("load config"), ErrNoSrcProvided)
		}

		cfg := o.Config
		cfg.SearchPaths = append([]string(nil), o.SearchPaths...)

		d := json.NewDecoder(src)
		d.DisallowUnknownFields()

		if err := d.Decode(&cfg); err != nil {
			if strings.HasPrefix(err.Error(), "json: unknown field") {
				return sterror.E(sterror.Opts, sterror.Op("load config"), ErrUnknownKey,
					fmt.Sprintf("%v, known keys: %s", err, strings.Join(jsonutil.Tags(cfg), ", ")))
			}

			return err
		}

		if err := ConfigValidation().Validate(&Opts{Config: cfg}); err != nil {
			return err
		}

		o.Config = cfg

		return nil
	}
}

// WithConfigFromFile reads JSON configuration from the named file. If
// optional is set, a missing file is not an error.
func WithConfigFromFile(name string, optional bool) Loader {
	return func(o *Opts) error {
		data, err := os.ReadFile(name)
		if err != nil {
			if optional && errors.Is(err, os.ErrNotExist) {
				stlog.Debug("No config file at %s", name)

				return nil
			}

			return sterror.E(sterror.Opts, sterror.Op("load config"), err)
		}

		if err := WithConfig(bytes.NewReader(data))(o); err != nil {
			return sterror.E(sterror.Opts, sterror.Op("load config"), err, fmt.Sprintf("file %s", name))
		}

		stlog.Debug("Loaded config from %s", name)

		return nil
	}
}

// Validate checks o with ConfigValidation.
func (o *Opts) Validate() error {
	return ConfigValidation().Validate(o)
}
