package main

import (
	"regexp"

	"github.com/pkg/errors"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	mft_command = app.Command(
		"mft", "Process a raw $MFT file.")

	mft_command_file_arg = mft_command.Flag(
		"file", "The $MFT file to process",
	).String()

	mft_command_image_arg = mft_command.Flag(
		"image", "An image containing an $MFT",
	).File()

	mft_command_image_offset = mft_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	mft_command_filename_filter = mft_command.Flag(
		"filename_filter", "A regex to filter on filename",
	).Default(".").String()

	mft_command_start = mft_command.Flag(
		"start", "The first MFT entry to process",
	).Int64()
)

// Both a volume and a bare $MFT file can enumerate their entries.
type entrySource interface {
	NumberOfFileEntries() int64
	FileEntryByIndex(index int64) (*parser.FileEntry, error)
	SignalAbort()
}

type DetailedHighlights struct {
	*parser.NTFSFileInformation
	Links []string
}

func dumpEntries(source entrySource) {
	filename_filter := regexp.MustCompile(*mft_command_filename_filter)

	ctx, cancel := interruptible(source.SignalAbort)
	defer cancel()

	for i := *mft_command_start; i < source.NumberOfFileEntries(); i++ {
		if ctx.Err() != nil {
			return
		}

		entry, err := source.FileEntryByIndex(i)
		if errors.Is(err, parser.ErrAborted) {
			return
		}
		if err != nil {
			parser.DebugPrint("MFT entry %v: %v\n", i, err)
			continue
		}

		if !filename_filter.MatchString(entry.Name()) {
			entry.Release()
			continue
		}

		model, err := parser.ModelMFTEntry(entry)
		if err == nil {
			printJSON(DetailedHighlights{
				NTFSFileInformation: model,
				Links:               entry.Links(),
			})
		}
		entry.Release()
	}
}

func doMFT() {
	if *mft_command_file_arg != "" {
		mft, err := parser.OpenMFTMetadataFile(
			*mft_command_file_arg, parser.GetDefaultOptions())
		kingpin.FatalIfError(err, "Can not open MFT file")
		defer mft.Close()

		dumpEntries(mft)
		return
	}

	if *mft_command_image_arg != nil {
		volume := openVolume(*mft_command_image_arg, *mft_command_image_offset,
			parser.GetDefaultOptions())
		defer volume.Close()

		dumpEntries(volume)
		printStats(volume)
		return
	}

	kingpin.Fatalf("One of --file or --image is required")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case mft_command.FullCommand():
			doMFT()
		default:
			return false
		}
		return true
	})
}
