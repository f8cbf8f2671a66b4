package main

import (
	"fmt"
	"strings"

	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	carve_command = app.Command(
		"carve", "Carve USN records from the disk.")

	carve_command_file_arg = carve_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	carve_command_image_offset = carve_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()
)

func doCarve() {
	volume := openVolume(*carve_command_file_arg, *carve_command_image_offset,
		parser.GetDefaultOptions())
	defer volume.Close()

	size := volume.Boot.VolumeSize()
	fmt.Printf("VolumeSize %v\n", size)

	ctx, cancel := interruptible(volume.SignalAbort)
	defer cancel()

	reader := &parser.OffsetReader{
		Offset: *carve_command_image_offset,
		Reader: getReader(*carve_command_file_arg),
	}

	for record := range parser.CarveUSN(ctx, volume, reader, size) {
		printUSNRecord(record, strings.Join(record.Links(), ", "))
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case carve_command.FullCommand():
			doCarve()
		default:
			return false
		}
		return true
	})
}
