package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	fls_command = app.Command(
		"fls", "Recursively list all files.")

	fls_command_file_arg = fls_command.Arg(
		"file", "The image file to inspect",
	).Required().OpenFile(os.O_RDONLY, os.FileMode(0666))

	fls_command_image_offset = fls_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()
)

func doFLS() {
	options := parser.GetDefaultOptions()
	options.BestEffort = true

	volume := openVolume(*fls_command_file_arg, *fls_command_image_offset, options)
	defer volume.Close()

	ctx, cancel := interruptible(volume.SignalAbort)
	defer cancel()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"MFT Id",
		"Size",
		"Mtime",
		"IsDir",
		"Path",
	})
	defer table.Render()

	err := volume.WalkContext(ctx, func(path string, entry *parser.FileEntry) error {
		mtime, _ := entry.ModificationTime()
		table.Append([]string{
			parser.FormatFileReference(entry.FileReference()),
			fmt.Sprintf("%d", entry.Size()),
			fmt.Sprintf("%v", mtime),
			fmt.Sprintf("%v", entry.IsDirectory()),
			path,
		})
		return nil
	})
	kingpin.FatalIfError(err, "Walking the volume")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case fls_command.FullCommand():
			doFLS()
		default:
			return false
		}
		return true
	})
}
