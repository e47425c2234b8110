// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"system-transparency.org/ucode/host"
	"system-transparency.org/ucode/mp"
	"system-transparency.org/ucode/opts"
	"system-transparency.org/ucode/source"
	"system-transparency.org/ucode/stlog"
	"system-transparency.org/ucode/update"
)

const (
	logLevelHelp  = "Log level: e 'errors' w 'warn', i 'info', d 'debug'."
	dryRunHelp    = "Read the microcode revision of every processor without loading the patch"
	configHelp    = "JSON configuration file"
	fileHelp      = "Patch file name or absolute path, overrides the configuration"
	initramfsHelp = "Read the patch file from this cpio archive"
	measureHelp   = "Measure the patch into the TPM before loading it"
	kmsgHelp      = "Log to the kernel log instead of stderr"
)

const banner = `
            _
 _   _  ___| |__   ___
| | | |/ __| '_ \ / _ \
| |_| | (__| (_) | (_) |  ___
 \__,_|\___|\___/ \___/  |___|

`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	o, err := loadOpts(args)
	if err != nil {
		stlog.Error("load opts: %v", err)

		return 1
	}

	setupLogging(o)

	stlog.Info(banner)

	if str, err := json.MarshalIndent(o, "", "  "); err == nil {
		stlog.Debug("Opts: %s", str)
	}

	u := newUpdater(o)

	report, err := u.Run()
	if report != nil {
		printReport(out, report)
	}

	if err != nil {
		stlog.Error("microcode update %s: %v", u.State(), err)

		return update.ExitCode(err)
	}

	stlog.Info("Microcode update done")

	return 0
}

// loadOpts builds Opts from defaults, the configuration file and the
// command line, in that order.
func loadOpts(args []string) (*opts.Opts, error) {
	fs := flag.NewFlagSet("ucode", flag.ContinueOnError)

	logLevel := fs.String("loglevel", "", logLevelHelp)
	dryRun := fs.Bool("dryrun", false, dryRunHelp)
	config := fs.String("config", opts.DefaultConfigFile, configHelp)
	file := fs.String("file", "", fileHelp)
	archive := fs.String("initramfs", "", initramfsHelp)
	measure := fs.Bool("measure", false, measureHelp)
	kmsg := fs.Bool("kmsg", false, kmsgHelp)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	flags := func(o *opts.Opts) error {
		if *logLevel != "" {
			o.LogLevel = *logLevel
		}

		if *file != "" {
			o.PatchFile = *file
		}

		if *archive != "" {
			o.Initramfs = *archive
		}

		if set["dryrun"] {
			o.DryRun = *dryRun
		}

		if set["measure"] {
			o.Measure = *measure
		}

		if set["kmsg"] && *kmsg {
			o.LogOutput = opts.OutputKmsg
		}

		return nil
	}

	o, err := opts.NewOpts(
		opts.WithDefaults(),
		opts.WithConfigFromFile(*config, !set["config"]),
		flags)
	if err != nil {
		return nil, err
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}

	return o, nil
}

func setupLogging(o *opts.Opts) {
	level, _ := stlog.ParseLevel(o.LogLevel)
	stlog.SetLevel(level)

	if o.LogOutput == opts.OutputKmsg {
		if err := stlog.SetOutput(stlog.KernelSyslog); err != nil {
			stlog.Warn("kernel log unavailable, logging to stderr: %v", err)
		}
	}
}

func newUpdater(o *opts.Opts) *update.Updater {
	u := &update.Updater{
		FS:     patchSource(o),
		Alloc:  source.LockedAllocator{},
		Name:   o.PatchFile,
		DryRun: o.DryRun,
		Locate: func() (mp.Service, error) {
			return mp.Locate(o.LoadModules)
		},
	}

	if o.Measure {
		u.Measure = host.MeasureTPM
	}

	return u
}

func patchSource(o *opts.Opts) source.FS {
	if o.Initramfs != "" {
		return source.Initramfs{Archive: o.Initramfs}
	}

	return source.Dir{SearchPaths: o.SearchPaths}
}

func printReport(out io.Writer, r *update.Report) {
	fmt.Fprintf(out, "patch %s: revision %#x for %s\n", r.Path, r.UpdateRevision, r.Signature)

	if r.Topology.Enabled > 0 {
		fmt.Fprintf(out, "%s\n", r.Topology)
	}

	for _, res := range r.Results {
		mark := ""
		if !res.Applied {
			mark = " (not updated)"
		}

		fmt.Fprintf(out, "CPU %d is on microcode revision %#x%s\n", res.CPU, res.Revision, mark)
	}
}
