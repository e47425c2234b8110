// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

// ucodemgr inspects microcode patch files and moves them in and out of
// early initramfs archives.

import (
	"log"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	// HelpText is the command line help
	HelpText = "ucodemgr can be used for inspecting and packaging microcode patches"

	DefaultPackName = "early_ucode.cpio"
)

var goversion string

var (
	show      = kingpin.Command("show", "Print the header of a microcode patch")
	showPatch = show.Arg("patch", "Microcode patch file").Required().ExistingFile()

	extract        = kingpin.Command("extract", "Copy the microcode patch out of an early initramfs")
	extractArchive = extract.Arg("initramfs", "Early initramfs cpio archive").Required().ExistingFile()
	extractVendor  = extract.Flag("vendor", "Processor vendor of the patch").Default(vendorIntel).Enum(vendorIntel, vendorAMD)
	extractOut     = extract.Flag("out", "Output file").Required().String()

	pack         = kingpin.Command("pack", "Write a microcode patch into an early initramfs")
	packPatch    = pack.Arg("patch", "Microcode patch file").Required().ExistingFile()
	packVendor   = pack.Flag("vendor", "Processor vendor of the patch").Default(vendorIntel).Enum(vendorIntel, vendorAMD)
	packCompress = pack.Flag("compress", "Compression of the archive").Default(compressNone).Enum(compressNone, compressGzip, compressXz, compressZstd)
	packOut      = pack.Flag("out", "Output file. Defaults to "+DefaultPackName).Default(DefaultPackName).String()
)

func main() {
	log.SetPrefix("ucodemgr: ")
	log.SetFlags(0)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(goversion)
	kingpin.CommandLine.Help = HelpText

	switch kingpin.Parse() {
	case show.FullCommand():
		if err := showCmd(os.Stdout, *showPatch); err != nil {
			log.Fatal(err)
		}

	case extract.FullCommand():
		if err := extractCmd(*extractArchive, *extractVendor, *extractOut); err != nil {
			log.Fatal(err)
		}

	case pack.FullCommand():
		if err := packCmd(*packPatch, *packVendor, *packCompress, *packOut); err != nil {
			log.Fatal(err)
		}

	default:
		log.Fatal("command not found")
	}
}
