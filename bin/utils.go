package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Velocidex/ordereddict"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

func getReader(reader io.ReaderAt) io.ReaderAt {
	if *record_directory == "" {
		return reader
	}

	// Create a recorder
	parser.DebugPrint("Will record to dir %v\n", *record_directory)
	return parser.NewRecorder(*record_directory, reader)
}

// Open the volume inside the image file, possibly at an offset into
// it (e.g. a partition).
func openVolume(fd *os.File, image_offset int64,
	options parser.Options) *parser.Volume {
	st, err := fd.Stat()
	kingpin.FatalIfError(err, "Can not stat image")

	reader, err := parser.NewPagedReader(&parser.OffsetReader{
		Offset: image_offset,
		Reader: getReader(fd),
	}, 1024, 10000)
	kingpin.FatalIfError(err, "Can not open image")

	size := st.Size() - image_offset
	if size <= 0 {
		// Devices report no size, the volume takes it from the
		// boot sector.
		size = 0
	}

	volume, err := parser.OpenVolume(reader, size, options)
	kingpin.FatalIfError(err, "Can not open filesystem")
	return volume
}

// Open a stream by inode (e.g. 1234-128-6) or by path (e.g.
// Folder\Hello.txt:hiddenstream).
func openStream(volume *parser.Volume, path_or_id string) *parser.DataStream {
	mft_idx, attr_type, attr_id, err := parser.ParseMFTId(path_or_id)
	if err != nil {
		stream, err := parser.GetDataForPath(volume, path_or_id)
		kingpin.FatalIfError(err, "Can not open stream")
		return stream
	}

	entry, err := volume.FileEntryByIndex(mft_idx)
	kingpin.FatalIfError(err, "Can not open MFT entry %v", mft_idx)
	defer entry.Release()

	stream, err := parser.OpenStream(entry, uint32(attr_type), uint16(attr_id))
	kingpin.FatalIfError(err, "Can not open stream")
	return stream
}

func printJSON(item interface{}) {
	serialized, err := json.MarshalIndent(item, " ", " ")
	kingpin.FatalIfError(err, "Marshal")

	fmt.Println(string(serialized))
}

// Long running commands stop on ctrl-c. The volume is told to abort
// so parsing in progress returns early.
func interruptible(abort func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		select {
		case <-c:
			abort()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(c)
		cancel()
	}
}

func printStats(volume *parser.Volume) {
	if !*debug_flag {
		return
	}
	stats := ordereddict.NewDict().Set("Stats", volume.Stats())
	printJSON(stats)
}
