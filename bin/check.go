package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	check_command = app.Command(
		"check", "Check for some sanity.")

	check_command_file_arg = check_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	check_command_image_offset = check_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	check_command_start_id = check_command.Flag(
		"start", "The ID to start with").Int64()

	check_command_end_id = check_command.Flag(
		"end", "The ID to end with").Default("10000000").Int64()
)

func doCheck() {
	volume := openVolume(*check_command_file_arg, *check_command_image_offset,
		parser.GetDefaultOptions())
	defer volume.Close()

	mft, err := volume.FileEntryByIndex(parser.MFT_ENTRY_MFT)
	kingpin.FatalIfError(err, "Can not open $MFT")
	extents, err := mft.Extents()
	mft.Release()
	kingpin.FatalIfError(err, "Can not map $MFT")

	end := *check_command_end_id
	if end > volume.NumberOfFileEntries() {
		end = volume.NumberOfFileEntries()
	}

	for i := *check_command_start_id; i < end; i++ {
		if i%100 == 0 {
			reportOffset(volume, extents, i)
		}

		mft_entry, err := volume.MFTEntryByIndex(i)
		if err != nil {
			reportOffset(volume, extents, i)
			fmt.Printf("Error: %v: %v\n", i, err)
			continue
		}

		// Older volumes do not store the record number.
		if mft_entry.Record_number() != 0 &&
			mft_entry.Record_number() != uint32(i) {
			reportOffset(volume, extents, i)
			fmt.Printf("Error: %v: record claims to be %v\n",
				i, mft_entry.Record_number())
		}
	}
}

// Map the entry's offset in the $MFT to the disk.
func reportOffset(volume *parser.Volume, extents []parser.Extent, id int64) {
	offset := volume.MFTEntrySize() * id
	disk_offset := int64(-1)

	vcn_offset := int64(0)
	for _, extent := range extents {
		if offset < vcn_offset+extent.Size {
			if !extent.IsSparse() {
				disk_offset = extent.Offset + offset - vcn_offset
			}
			break
		}
		vcn_offset += extent.Size
	}

	fmt.Printf("MFTId %v: Offset %v (%v clusters), disk offset %v (%v clusters)\n",
		id, offset, offset/volume.ClusterSize(),
		disk_offset, disk_offset/volume.ClusterSize())
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case check_command.FullCommand():
			doCheck()
		default:
			return false
		}
		return true
	})
}
