package main

import (
	"fmt"
	"strings"

	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	usn_command = app.Command(
		"usn", "inspect the USN journal.")

	usn_command_file_arg = usn_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	usn_command_image_offset = usn_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	usn_command_start = usn_command.Flag(
		"start", "Skip records before this journal offset.",
	).Int64()

	usn_command_watch = usn_command.Flag(
		"watch", "Watch the USN for changes").Bool()

	usn_command_period = usn_command.Flag(
		"period", "Seconds between checks when watching").
		Default("30").Int()
)

const template = `
USN ID: %#x @ %#x
Filename: %s
FullPath: %s
Timestamp: %v
Reason: %s
FileAttributes: %s
SourceInfo: %s
`

func printUSNRecord(record *parser.USN_RECORD, full_path string) {
	if *debug_flag {
		fmt.Print(record.DebugString())
	}

	fmt.Printf(template, record.Usn(), record.Offset,
		record.Filename(), full_path, record.TimeStamp(),
		strings.Join(record.Reason(), ", "),
		strings.Join(record.FileAttributes(), ", "),
		strings.Join(record.SourceInfo(), ", "),
	)
}

func doUSN() {
	volume := openVolume(*usn_command_file_arg, *usn_command_image_offset,
		parser.GetDefaultOptions())
	defer volume.Close()

	ctx, cancel := interruptible(volume.SignalAbort)
	defer cancel()

	records := parser.ParseUSN(ctx, volume, *usn_command_start)
	if *usn_command_watch {
		records = parser.WatchUSN(ctx, volume, *usn_command_period)
	}

	for record := range records {
		printUSNRecord(record, record.FullPath())
	}
	printStats(volume)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case usn_command.FullCommand():
			doUSN()
		default:
			return false
		}
		return true
	})
}
