package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
)

// Parse USN records
// https://docs.microsoft.com/en-us/windows/win32/api/winioctl/ns-winioctl-usn_record_v2

const (
	USN_RECORD_V2_SIZE = 60
	USN_RECORD_V3_SIZE = 76

	// Records are 8 byte aligned and never very large.
	MAX_USN_RECORD_SIZE = 0x1000

	USN_MAX_SIZE = 32
)

var (
	usn_reason_names = map[uint64]string{
		0x00000001: "DATA_OVERWRITE",
		0x00000002: "DATA_EXTEND",
		0x00000004: "DATA_TRUNCATION",
		0x00000010: "NAMED_DATA_OVERWRITE",
		0x00000020: "NAMED_DATA_EXTEND",
		0x00000040: "NAMED_DATA_TRUNCATION",
		0x00000100: "FILE_CREATE",
		0x00000200: "FILE_DELETE",
		0x00000400: "EA_CHANGE",
		0x00000800: "SECURITY_CHANGE",
		0x00001000: "RENAME_OLD_NAME",
		0x00002000: "RENAME_NEW_NAME",
		0x00004000: "INDEXABLE_CHANGE",
		0x00008000: "BASIC_INFO_CHANGE",
		0x00010000: "HARD_LINK_CHANGE",
		0x00020000: "COMPRESSION_CHANGE",
		0x00040000: "ENCRYPTION_CHANGE",
		0x00080000: "OBJECT_ID_CHANGE",
		0x00100000: "REPARSE_POINT_CHANGE",
		0x00200000: "STREAM_CHANGE",
		0x00400000: "TRANSACTED_CHANGE",
		0x00800000: "INTEGRITY_CHANGE",
		0x80000000: "CLOSE",
	}

	usn_source_names = map[uint64]string{
		0x1: "DATA_MANAGEMENT",
		0x2: "AUXILIARY_DATA",
		0x4: "REPLICATION_MANAGEMENT",
		0x8: "CLIENT_REPLICATION_MANAGEMENT",
	}
)

// A USN_RECORD_V2 or USN_RECORD_V3. The V3 layout widens the file
// references to 128 bits which shifts every following field.
type USN_RECORD struct {
	b []byte

	// Offset of the record in the $J stream (or on disk when
	// carved).
	Offset int64

	volume *Volume
}

// Decode a single USN record. The buffer must hold exactly the
// record, as returned by UsnChangeJournal.ReadUSNRecord().
func ParseUSNRecord(data []byte) (*USN_RECORD, error) {
	STATS.Inc_USN_RECORD()

	if len(data) < USN_RECORD_V2_SIZE {
		return nil, malformedf("USN record too short (%d bytes)", len(data))
	}

	self := &USN_RECORD{b: data}
	length := int(self.RecordLength())
	if length < USN_RECORD_V2_SIZE || length > len(data) {
		return nil, malformedf("USN record length %#x invalid for %d bytes",
			length, len(data))
	}

	switch self.MajorVersion() {
	case 2:
	case 3:
		if length < USN_RECORD_V3_SIZE {
			return nil, malformedf("USN_RECORD_V3 too short (%d bytes)", length)
		}
	default:
		return nil, malformedf("unsupported USN record version %d.%d",
			self.MajorVersion(), self.MinorVersion())
	}

	name_end := int(self.FileNameOffset()) + int(self.FileNameLength())
	if self.FileNameLength() > 0 && name_end > length {
		return nil, malformedf("USN record name overruns record")
	}

	return self, nil
}

func (self *USN_RECORD) isV3() bool {
	return self.MajorVersion() == 3
}

// Field offsets past the file references move by 16 bytes in V3.
func (self *USN_RECORD) field(v2_offset int) int {
	if self.isV3() {
		return v2_offset + 16
	}
	return v2_offset
}

func (self *USN_RECORD) RecordLength() uint32 {
	return getUint32(self.b, 0)
}

func (self *USN_RECORD) MajorVersion() uint16 {
	return getUint16(self.b, 4)
}

func (self *USN_RECORD) MinorVersion() uint16 {
	return getUint16(self.b, 6)
}

// The 64 bit file reference. For V3 records the low 64 bits of the
// 128 bit identifier.
func (self *USN_RECORD) FileReferenceNumber() uint64 {
	return getUint64(self.b, 8)
}

func (self *USN_RECORD) ParentFileReferenceNumber() uint64 {
	if self.isV3() {
		return getUint64(self.b, 24)
	}
	return getUint64(self.b, 16)
}

// The 128 bit identifiers of V3 records.
func (self *USN_RECORD) FileReferenceNumber128() []byte {
	if !self.isV3() {
		return nil
	}
	return getBytes(self.b, 8, 16)
}

func (self *USN_RECORD) ParentFileReferenceNumber128() []byte {
	if !self.isV3() {
		return nil
	}
	return getBytes(self.b, 24, 16)
}

func (self *USN_RECORD) FileReferenceNumberID() uint64 {
	return FileReferenceIndex(self.FileReferenceNumber())
}

func (self *USN_RECORD) FileReferenceNumberSequence() uint16 {
	return FileReferenceSequence(self.FileReferenceNumber())
}

func (self *USN_RECORD) ParentFileReferenceNumberID() uint64 {
	return FileReferenceIndex(self.ParentFileReferenceNumber())
}

func (self *USN_RECORD) ParentFileReferenceNumberSequence() uint16 {
	return FileReferenceSequence(self.ParentFileReferenceNumber())
}

func (self *USN_RECORD) Usn() int64 {
	return int64(getUint64(self.b, self.field(24)))
}

func (self *USN_RECORD) TimeStamp() WinFileTime {
	return NewWinFileTime(getUint64(self.b, self.field(32)))
}

func (self *USN_RECORD) ReasonFlags() uint32 {
	return getUint32(self.b, self.field(40))
}

func (self *USN_RECORD) SourceInfoFlags() uint32 {
	return getUint32(self.b, self.field(44))
}

func (self *USN_RECORD) SecurityId() uint32 {
	return getUint32(self.b, self.field(48))
}

func (self *USN_RECORD) FileAttributeFlags() uint32 {
	return getUint32(self.b, self.field(52))
}

func (self *USN_RECORD) FileNameLength() uint16 {
	return getUint16(self.b, self.field(56))
}

func (self *USN_RECORD) FileNameOffset() uint16 {
	return getUint16(self.b, self.field(58))
}

func (self *USN_RECORD) Filename() string {
	return ParseUTF16String(self.b, int(self.FileNameOffset()),
		int(CapUint32(uint32(self.FileNameLength()), MAX_FILENAME_LENGTH)))
}

func (self *USN_RECORD) Reason() []string {
	return flagNames(uint64(self.ReasonFlags()), usn_reason_names)
}

func (self *USN_RECORD) SourceInfo() []string {
	return flagNames(uint64(self.SourceInfoFlags()), usn_source_names)
}

func (self *USN_RECORD) FileAttributes() []string {
	return FileAttributeNames(self.FileAttributeFlags())
}

// The record is attached to a volume when read from its journal,
// allowing names to be resolved.
func (self *USN_RECORD) Volume() *Volume {
	return self.volume
}

// Since this record could mean a file deletion event, resolving the
// MFT entry of the file itself is unreliable. We resolve the parent
// directory instead and add the record's name to it.
func (self *USN_RECORD) Links() []string {
	if self.volume == nil {
		return nil
	}

	parent_mft_id := self.ParentFileReferenceNumberID()
	parent_mft_sequence := self.ParentFileReferenceNumberSequence()

	// Make sure the parent has the correct sequence to prevent
	// nonsensical paths.
	parent, err := self.volume.GetMFTSummary(parent_mft_id, parent_mft_sequence)
	if err != nil {
		return []string{fmt.Sprintf("<Err>\\<Parent %v Error %v>\\%v",
			parent_mft_id, err, self.Filename())}
	}

	if parent.Sequence != parent_mft_sequence {
		return []string{fmt.Sprintf("<Err>\\<Parent %v-%v need %v>\\%v",
			parent_mft_id, parent.Sequence, parent_mft_sequence,
			self.Filename())}
	}

	components := GetHardLinks(self.volume, parent_mft_id, DefaultMaxLinks)
	result := make([]string, 0, len(components))
	for _, l := range components {
		l = append(l, self.Filename())
		result = append(result, "\\"+strings.Join(l, "\\"))
	}
	return result
}

// The full path of the file: the parent's path and the record's
// name. Empty when the parent can not be resolved.
func (self *USN_RECORD) FullPath() string {
	if self.volume == nil {
		return ""
	}

	parent_path, err := GetFullPath(self.volume, self.ParentFileReferenceNumberID())
	if err != nil {
		return ""
	}

	return strings.TrimSuffix(parent_path, "\\") + "\\" + self.Filename()
}

func (self *USN_RECORD) Dict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Usn", self.Usn()).
		Set("Offset", self.Offset).
		Set("Version", fmt.Sprintf("%d.%d", self.MajorVersion(), self.MinorVersion())).
		Set("FileReference", FormatFileReference(self.FileReferenceNumber())).
		Set("ParentFileReference", FormatFileReference(self.ParentFileReferenceNumber())).
		Set("TimeStamp", self.TimeStamp().Time).
		Set("Filename", self.Filename()).
		Set("Reason", self.Reason()).
		Set("SourceInfo", self.SourceInfo()).
		Set("FileAttributes", self.FileAttributes()).
		Set("SecurityId", self.SecurityId())
}

func (self *USN_RECORD) DebugString() string {
	result := fmt.Sprintf("struct USN_RECORD @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  RecordLength: %#0x\n", self.RecordLength())
	result += fmt.Sprintf("  Version: %d.%d\n", self.MajorVersion(), self.MinorVersion())
	result += fmt.Sprintf("  FileReferenceNumber: %v\n",
		FormatFileReference(self.FileReferenceNumber()))
	result += fmt.Sprintf("  ParentFileReferenceNumber: %v\n",
		FormatFileReference(self.ParentFileReferenceNumber()))
	result += fmt.Sprintf("  Usn: %#0x\n", self.Usn())
	result += fmt.Sprintf("  TimeStamp: %v\n", self.TimeStamp().DebugString())
	result += fmt.Sprintf("  Reason: %v\n", strings.Join(self.Reason(), ", "))
	result += fmt.Sprintf("  SourceInfo: %v\n", strings.Join(self.SourceInfo(), ", "))
	result += fmt.Sprintf("  SecurityId: %#0x\n", self.SecurityId())
	result += fmt.Sprintf("  FileAttributes: %v\n", strings.Join(self.FileAttributes(), ", "))
	result += fmt.Sprintf("  Filename: %v\n", self.Filename())
	return result
}

// $UsnJrnl:$Max describes the journal.
type USN_MAX struct {
	b []byte
}

func NewUSN_MAX(data []byte) (*USN_MAX, error) {
	if len(data) < USN_MAX_SIZE {
		return nil, malformedf("$Max too short (%d bytes)", len(data))
	}
	return &USN_MAX{b: data}, nil
}

func (self *USN_MAX) MaxSize() uint64 {
	return getUint64(self.b, 0)
}

func (self *USN_MAX) AllocationDelta() uint64 {
	return getUint64(self.b, 8)
}

func (self *USN_MAX) UsnJournalID() uint64 {
	return getUint64(self.b, 16)
}

func (self *USN_MAX) LowestValidUsn() int64 {
	return int64(getUint64(self.b, 24))
}

// A stretch of the $J stream. Windows frees the start of the journal
// by making it sparse.
type usnRange struct {
	Offset   int64
	Length   int64
	IsSparse bool
}

// UsnChangeJournal reads the $UsnJrnl:$J stream one journal block at
// a time. It keeps its own cursor and holds a volume reference until
// released.
type UsnChangeJournal struct {
	volume *Volume
	stream *DataStream
	max    *USN_MAX

	block_size int64
	ranges     []usnRange

	range_index  int
	range_offset int64

	block        []byte
	block_start  int64
	block_offset int
}

// Open $Extend\$UsnJrnl:$J.
func (self *Volume) UsnChangeJournal() (*UsnChangeJournal, error) {
	entry, err := self.fileEntryByPath("$Extend\\$UsnJrnl")
	if err != nil {
		return nil, errors.WithMessage(err, "opening $UsnJrnl")
	}

	attr := entry.findAttribute(ATTR_TYPE_DATA, "$J")
	if attr == nil {
		return nil, notFoundf("$UsnJrnl has no $J stream")
	}

	ranges, err := usnRanges(attr, self.cluster_size)
	if err != nil {
		return nil, err
	}

	stream, err := entry.openStream(attr)
	if err != nil {
		return nil, err
	}

	result := &UsnChangeJournal{
		volume:     self,
		stream:     stream,
		block_size: self.options.JournalBlockSize,
		ranges:     ranges,
	}

	max_attr := entry.findAttribute(ATTR_TYPE_DATA, "$Max")
	if max_attr != nil {
		data, err := max_attr.ReadAll()
		if err == nil {
			result.max, _ = NewUSN_MAX(data)
		}
	}

	return result, nil
}

// Split the stream into sparse and allocated ranges.
func usnRanges(attr *Attribute, cluster_size int64) ([]usnRange, error) {
	size := attr.DataSize()
	if attr.IsResident() {
		return []usnRange{{Offset: 0, Length: size}}, nil
	}

	runs, err := attr.DataRuns()
	if err != nil {
		return nil, err
	}

	result := []usnRange{}
	for _, run := range runs {
		offset := run.VCN * cluster_size
		if offset >= size {
			break
		}

		length := run.Clusters * cluster_size
		if offset+length > size {
			length = size - offset
		}

		result = append(result, usnRange{
			Offset:   offset,
			Length:   length,
			IsSparse: run.IsSparse,
		})
	}
	return result, nil
}

func (self *UsnChangeJournal) Release() {
	self.stream.Release()
}

// The journal's $Max record, nil if it could not be read.
func (self *UsnChangeJournal) Max() *USN_MAX {
	return self.max
}

func (self *UsnChangeJournal) Size() int64 {
	return self.stream.Size()
}

// The offset in $J of the block last returned by ReadBlock().
func (self *UsnChangeJournal) Offset() int64 {
	return self.block_start
}

func (self *UsnChangeJournal) BlockSize() int64 {
	return self.block_size
}

// Read the next journal block, skipping the sparse start of the
// stream. The last block of a range may be short. Returns io.EOF
// once the stream is exhausted.
func (self *UsnChangeJournal) ReadBlock() ([]byte, error) {
	for {
		err := self.volume.checkAbort()
		if err != nil {
			return nil, err
		}

		if self.range_index >= len(self.ranges) {
			return nil, io.EOF
		}

		rng := self.ranges[self.range_index]
		if rng.IsSparse || self.range_offset >= rng.Length {
			self.range_index++
			self.range_offset = 0
			continue
		}

		to_read := rng.Length - self.range_offset
		if to_read > self.block_size {
			to_read = self.block_size
		}

		// An unreadable block is skipped by the next call.
		offset := rng.Offset + self.range_offset
		self.range_offset += self.block_size
		self.block_start = offset

		block, err := self.stream.ReadBufferAtOffset(int(to_read), offset)
		if err != nil {
			return nil, errors.WithMessagef(err, "journal block at %#x", offset)
		}
		return block, nil
	}
}

// Read the raw bytes of the next USN record. A zero record length
// marks the padding at the end of a block. Returns io.EOF at the end
// of the journal.
func (self *UsnChangeJournal) ReadUSNRecord() ([]byte, error) {
	data, _, err := self.readUSNRecord()
	return data, err
}

func (self *UsnChangeJournal) readUSNRecord() ([]byte, int64, error) {
	for {
		if self.block == nil ||
			self.block_offset+USN_RECORD_V2_SIZE > len(self.block) {
			block, err := self.ReadBlock()
			if err != nil {
				return nil, 0, err
			}
			self.block = block
			self.block_offset = 0
			continue
		}

		size := int(getUint32(self.block, self.block_offset))
		if size == 0 {
			self.block = nil
			continue
		}

		if size < USN_RECORD_V2_SIZE || size > MAX_USN_RECORD_SIZE ||
			self.block_offset+size > len(self.block) {
			offset := self.block_start + int64(self.block_offset)
			self.block = nil
			return nil, offset, malformedf(
				"USN record at %#x has invalid size %#x", offset, size)
		}

		offset := self.block_start + int64(self.block_offset)
		record := make([]byte, size)
		copy(record, self.block[self.block_offset:])
		self.block_offset += size

		return record, offset, nil
	}
}

// Read and decode the next USN record.
func (self *UsnChangeJournal) Next() (*USN_RECORD, error) {
	data, offset, err := self.readUSNRecord()
	if err != nil {
		return nil, err
	}

	record, err := ParseUSNRecord(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "at %#x", offset)
	}
	record.Offset = offset
	record.volume = self.volume
	return record, nil
}

// All remaining records as a lazy iterator.
func (self *UsnChangeJournal) Records() *Iterator[*USN_RECORD] {
	return NewIterator(self.Next)
}

// Returns a channel which will send USN records on. We start parsing
// at the start of the journal and skip records before
// starting_offset. Records which fail to decode and journal blocks
// which can not be read are skipped.
func ParseUSN(ctx context.Context, volume *Volume, starting_offset int64) chan *USN_RECORD {
	output := make(chan *USN_RECORD)

	go func() {
		defer close(output)

		journal, err := volume.UsnChangeJournal()
		if err != nil {
			DebugPrint("ParseUSN error: %v\n", err)
			return
		}
		defer journal.Release()

		count := 0
		defer func() {
			DebugPrint("Skipped %v entries\n", count)
		}()

		for ctx.Err() == nil {
			record, err := journal.Next()
			if errors.Is(err, io.EOF) || errors.Is(err, ErrAborted) ||
				errors.Is(err, ErrVolumeClosed) {
				return
			}

			if err != nil {
				DebugPrint("ParseUSN error: %v\n", err)
				count++
				continue
			}

			if record.Offset < starting_offset {
				continue
			}

			select {
			case <-ctx.Done():
				return

			case output <- record:
			}
		}
	}()

	return output
}

// Find the last USN record of the journal.
func getLastUSN(ctx context.Context, volume *Volume) (*USN_RECORD, error) {
	journal, err := volume.UsnChangeJournal()
	if err != nil {
		return nil, err
	}

	// Start from the last allocated range.
	start := int64(0)
	for _, rng := range journal.ranges {
		if !rng.IsSparse {
			start = rng.Offset
		}
	}
	journal.Release()

	var result *USN_RECORD
	for record := range ParseUSN(ctx, volume, start) {
		result = record
	}

	if result == nil {
		return nil, notFoundf("no USN records found")
	}
	return result, nil
}

// Follow the journal, emitting new records as they are written. The
// volume is re-read every period seconds (default 30).
func WatchUSN(ctx context.Context, volume *Volume, period int) chan *USN_RECORD {
	output := make(chan *USN_RECORD)

	if period == 0 {
		period = 30
	}

	go func() {
		defer close(output)

		start_offset := int64(0)

		for {
			usn, err := getLastUSN(ctx, volume)
			if err == nil && usn != nil {
				start_offset = usn.Offset
				break
			}

			// Keep waiting here until we are able to get the last USN entry.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(period) * time.Second):
			}
		}

		for {
			count := 0
			DebugPrint("Checking usn from %#08x\n", start_offset)

			// Purge all caching so we always get fresh data.
			volume.Purge()

			for record := range ParseUSN(ctx, volume, start_offset) {
				if record.Offset > start_offset {
					select {
					case <-ctx.Done():
						return

					case output <- record:
						count++
					}
					start_offset = record.Offset
				}
			}
			DebugPrint("Emitted %v events\n", count)

			select {
			case <-ctx.Done():
				return

			case <-time.After(time.Second * time.Duration(period)):
			}
		}
	}()

	return output
}
