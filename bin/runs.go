package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	runs_command = app.Command(
		"runs", "Display the extents of a stream.")

	runs_command_file_arg = runs_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	runs_command_image_offset = runs_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	runs_command_raw_runs = runs_command.Flag(
		"raw_runs", "Also show raw runs.",
	).Bool()

	runs_command_arg = runs_command.Arg(
		"mft_id", "An inode in MFT notation e.g. 43-128-0 or a path.",
	).Required().String()
)

func doRuns() {
	volume := openVolume(*runs_command_file_arg, *runs_command_image_offset,
		parser.GetDefaultOptions())
	defer volume.Close()

	stream := openStream(volume, *runs_command_arg)
	defer stream.Release()

	if *runs_command_raw_runs {
		runs, err := stream.Attribute().DataRuns()
		kingpin.FatalIfError(err, "Can not decode runs")
		for _, line := range parser.DebugRuns(runs) {
			fmt.Println(line)
		}
	}

	extents, err := stream.Extents()
	kingpin.FatalIfError(err, "Can not get extents")

	for idx, extent := range extents {
		fmt.Printf("%d Offset %#x Size %#x sparse %v compressed %v\n",
			idx, extent.Offset, extent.Size,
			extent.IsSparse(), extent.IsCompressed())
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case runs_command.FullCommand():
			doRuns()
		default:
			return false
		}
		return true
	})
}
