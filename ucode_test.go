// Copyright 2022 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"system-transparency.org/ucode/mp"
	"system-transparency.org/ucode/opts"
	"system-transparency.org/ucode/source"
	"system-transparency.org/ucode/stlog"
	"system-transparency.org/ucode/update"
)

func Test(t *testing.T) {
	// Empty test to calculate coverage right.
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

func TestLoadOpts(t *testing.T) {
	if !testing.Verbose() {
		stlog.SetLevel(stlog.ErrorLevel)
	}

	missing := filepath.Join(t.TempDir(), "none.json")
	cfg := writeConfig(t, `{"patch_file": "m.pdb", "search_paths": ["/srv"], "dry_run": true}`)

	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, o *opts.Opts)
		wantErr bool
	}{
		{
			name: "flags reset config",
			args: []string{"-config", cfg, "-dryrun=false", "-file", source.DefaultPatchFile},
			check: func(t *testing.T, o *opts.Opts) {
				assert.Equal(t, source.DefaultPatchFile, o.PatchFile)
				assert.False(t, o.DryRun)
				assert.Equal(t, []string{"/srv"}, o.SearchPaths)
			},
		},
		{
			name: "config file",
			args: []string{"-config", cfg},
			check: func(t *testing.T, o *opts.Opts) {
				assert.Equal(t, "m.pdb", o.PatchFile)
				assert.True(t, o.DryRun)
				assert.Equal(t, "info", o.LogLevel)
			},
		},
		{
			name: "flags override",
			args: []string{"-config", cfg, "-loglevel", "d", "-initramfs", "/boot/early.cpio", "-kmsg", "-measure"},
			check: func(t *testing.T, o *opts.Opts) {
				assert.Equal(t, "d", o.LogLevel)
				assert.Equal(t, "/boot/early.cpio", o.Initramfs)
				assert.Equal(t, opts.OutputKmsg, o.LogOutput)
				assert.True(t, o.Measure)
			},
		},
		{
			name:    "explicit config missing",
			args:    []string{"-config", missing},
			wantErr: true,
		},
		{
			name:    "invalid override",
			args:    []string{"-config", cfg, "-loglevel", "loud"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"-reboot"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := loadOpts(tt.args)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestPatchSource(t *testing.T) {
	o := &opts.Opts{Config: opts.Config{SearchPaths: []string{"/boot"}}}
	assert.Equal(t, source.Dir{SearchPaths: []string{"/boot"}}, patchSource(o))

	o.Initramfs = "/boot/early.cpio"
	assert.Equal(t, source.Initramfs{Archive: "/boot/early.cpio"}, patchSource(o))
}

func TestRunFileNotFound(t *testing.T) {
	if !testing.Verbose() {
		stlog.SetLevel(stlog.ErrorLevel)
	}

	cfg := writeConfig(t, `{"search_paths": ["`+t.TempDir()+`"], "log_level": "error", "load_modules": false}`)

	var out bytes.Buffer

	assert.Equal(t, 2, run([]string{"-config", cfg}, &out))
	assert.Empty(t, out.String())
}

func TestRunBadConfig(t *testing.T) {
	cfg := writeConfig(t, `{"log_level": "loud"}`)

	assert.Equal(t, 1, run([]string{"-config", cfg}, &bytes.Buffer{}))
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer

	printReport(&out, &update.Report{
		Path:           "ucode.pdb",
		UpdateRevision: 0xf0,
		Topology:       mp.Topology{Total: 2, Enabled: 2, BSP: 0},
		Results: []update.Result{
			{CPU: 0, Revision: 0xf0, Applied: true},
			{CPU: 1, Revision: 0x10},
		},
	})

	assert.Contains(t, out.String(), "CPU 0 is on microcode revision 0xf0\n")
	assert.Contains(t, out.String(), "CPU 1 is on microcode revision 0x10 (not updated)\n")
	assert.Contains(t, out.String(), "2 processors, 2 enabled, BSP 0")
}
