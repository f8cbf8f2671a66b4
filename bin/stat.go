package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	stat_command = app.Command(
		"stat", "inspect the MFT record.")

	stat_command_i30 = stat_command.Flag(
		"i30", "Carve out $I30 entries").Bool()

	stat_command_file_arg = stat_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	stat_command_image_offset = stat_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	stat_command_arg = stat_command.Arg(
		"path", "The path to list or an MFT entry.",
	).Default("5").String()
)

func doSTAT() {
	volume := openVolume(*stat_command_file_arg, *stat_command_image_offset,
		parser.GetDefaultOptions())
	defer volume.Close()

	entry, err := parser.GetFileEntry(volume, *stat_command_arg)
	kingpin.FatalIfError(err, "Can not open path")
	defer entry.Release()

	if *debug_flag {
		fmt.Println(entry.DebugString())
		fmt.Println(entry.MFTEntry().DebugString())
	}

	stat, err := parser.ModelMFTEntry(entry)
	kingpin.FatalIfError(err, "Can not open path")
	printJSON(stat)

	if *stat_command_i30 {
		i30_list, err := parser.ExtractI30List(entry)
		kingpin.FatalIfError(err, "Can not extract $I30")
		printJSON(i30_list)
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case stat_command.FullCommand():
			doSTAT()
		default:
			return false
		}
		return true
	})
}
