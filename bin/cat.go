package main

import (
	"io"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	cat_command = app.Command(
		"cat", "Dump file stream.")

	cat_command_file_arg = cat_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	cat_command_arg = cat_command.Arg(
		"path", "The path to extract or an inode (e.g. 1234-128-6).",
	).Required().String()

	cat_command_offset = cat_command.Flag(
		"offset", "The offset to start reading.",
	).Int64()

	cat_command_image_offset = cat_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	cat_command_output_file = cat_command.Flag(
		"out", "Write to this file",
	).OpenFile(os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(0666))
)

func doCAT() {
	volume := openVolume(*cat_command_file_arg, *cat_command_image_offset,
		parser.GetDefaultOptions())
	defer volume.Close()

	stream := openStream(volume, *cat_command_arg)
	defer stream.Release()

	var fd io.WriteCloser = os.Stdout
	if *cat_command_output_file != nil {
		fd = *cat_command_output_file
		defer fd.Close()
	}

	_, err := stream.Seek(*cat_command_offset, io.SeekStart)
	kingpin.FatalIfError(err, "Seek")

	buf := make([]byte, 1024*1024*10)
	_, err = io.CopyBuffer(fd, stream, buf)
	kingpin.FatalIfError(err, "Reading stream")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case cat_command.FullCommand():
			doCAT()
		default:
			return false
		}
		return true
	})
}
