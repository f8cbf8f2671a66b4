package main

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	info_command = app.Command(
		"info", "inspect the boot record and volume information.")

	info_command_file_arg = info_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	info_command_image_offset = info_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()
)

func doInfo() {
	volume := openVolume(*info_command_file_arg, *info_command_image_offset,
		parser.GetDefaultOptions())
	defer volume.Close()

	if *debug_flag {
		fmt.Println(volume.Boot.DebugString())
	}

	printJSON(volume.Dict())

	printer := message.NewPrinter(language.English)
	printer.Printf("Volume size: %d bytes in %d clusters of %d bytes\n",
		volume.Boot.VolumeSize(), volume.Boot.BlockCount(), volume.ClusterSize())
	printer.Printf("MFT: %d entries of %d bytes\n",
		volume.NumberOfFileEntries(), volume.MFTEntrySize())
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case info_command.FullCommand():
			doInfo()
		default:
			return false
		}
		return true
	})
}
