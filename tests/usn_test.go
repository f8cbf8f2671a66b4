package tests

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/sebdah/goldie/v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

// 2021-01-02 03:04:05 UTC
const usn_filetime = uint64(132540302450000000)

func usnRecord(ref, parent uint64, usn int64, reason uint32, name string) []byte {
	name16 := parser.StringToUTF16(name)
	length := (parser.USN_RECORD_V2_SIZE + len(name16) + 7) &^ 7

	b := make([]byte, length)
	binary.LittleEndian.PutUint32(b[0:], uint32(length))
	binary.LittleEndian.PutUint16(b[4:], 2)
	binary.LittleEndian.PutUint64(b[8:], ref)
	binary.LittleEndian.PutUint64(b[16:], parent)
	binary.LittleEndian.PutUint64(b[24:], uint64(usn))
	binary.LittleEndian.PutUint64(b[32:], usn_filetime)
	binary.LittleEndian.PutUint32(b[40:], reason)
	binary.LittleEndian.PutUint32(b[48:], 0x100)
	binary.LittleEndian.PutUint32(b[52:], 0x20)
	binary.LittleEndian.PutUint16(b[56:], uint16(len(name16)))
	binary.LittleEndian.PutUint16(b[58:], parser.USN_RECORD_V2_SIZE)
	copy(b[parser.USN_RECORD_V2_SIZE:], name16)
	return b
}

// Records left behind in unallocated space are found by carving the
// raw disk.
func TestCarveUSN(t *testing.T) {
	root := uint64(5) | uint64(5)<<48

	disk := make([]byte, 0x1000)
	copy(disk[0x800:], usnRecord(16|1<<48, root, 0x800, 0x100, "alpha.txt"))
	copy(disk[0x850:], usnRecord(17|3<<48, root, 0x850, 0x2, "Beta.bin"))

	// Junk that is not a record.
	copy(disk[0x100:], []byte{0x50, 0, 0, 0, 2, 0, 0, 0})

	// The disk is read through a partition offset like a real image.
	image := append(make([]byte, 0x200), disk...)
	reader := &parser.OffsetReader{Offset: 0x200, Reader: bytes.NewReader(image)}

	result := []string{}
	for record := range parser.CarveUSN(
		context.Background(), nil, reader, int64(len(disk))) {
		result = append(result, record.DebugString())
	}
	assert.Equal(t, 2, len(result))

	g := goldie.New(t, goldie.WithFixtureDir("fixtures"))
	g.Assert(t, "CarvedUSN", []byte(strings.Join(result, "")))
}

func TestCarveUSNCancelled(t *testing.T) {
	disk := make([]byte, 0x1000)
	copy(disk[0x800:], usnRecord(16|1<<48, 5|5<<48, 0x800, 0x100, "alpha.txt"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count := 0
	for range parser.CarveUSN(ctx, nil, bytes.NewReader(disk), int64(len(disk))) {
		count++
	}
	assert.Equal(t, 0, count)
}
