package parser

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	MFT_ENTRY_HEADER_SIZE = 42
)

// A single fixed up MFT entry. The buffer is owned by the entry.
type MFT_ENTRY struct {
	b []byte

	// The index the entry was read from. Record_number() is not
	// present on NTFS 3.0 volumes so we keep track ourselves.
	Index int64

	attributes []*NTFS_ATTRIBUTE
}

// Decode an MFT entry from a record sized buffer. The buffer is fixed
// up in place. Entries without a FILE signature are returned as empty
// unallocated entries rather than an error.
func NewMFT_ENTRY(buffer []byte, index int64) (*MFT_ENTRY, error) {
	STATS.Inc_MFT_ENTRY()

	self := &MFT_ENTRY{b: buffer, Index: index}
	if !self.HasSignature() {
		return self, nil
	}

	if len(buffer) < MFT_ENTRY_HEADER_SIZE {
		return nil, errors.Wrapf(ErrCorruptRecord,
			"MFT entry %d: record too small (%d bytes)", index, len(buffer))
	}

	err := applyFixups(buffer, int(self.Fixup_offset()),
		int(self.Fixup_count()), ErrCorruptRecord)
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d", index)
	}

	used := int(self.Mft_entry_size())
	attr_offset := int(self.Attribute_offset())
	if used > len(buffer) || attr_offset < MFT_ENTRY_HEADER_SIZE ||
		attr_offset > used {
		return nil, errors.Wrapf(ErrCorruptRecord,
			"MFT entry %d: attribute offset %#x or used size %#x out of range",
			index, attr_offset, used)
	}

	self.attributes, err = self.parseAttributes()
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d", index)
	}

	return self, nil
}

func (self *MFT_ENTRY) Magic() string {
	if len(self.b) < 4 {
		return ""
	}
	return string(self.b[:4])
}

func (self *MFT_ENTRY) HasSignature() bool {
	return self.Magic() == "FILE"
}

// Windows marks records which failed a fixup check with BAAD.
func (self *MFT_ENTRY) IsCorrupted() bool {
	return self.Magic() == "BAAD"
}

func (self *MFT_ENTRY) Fixup_offset() uint16 {
	return getUint16(self.b, 4)
}

func (self *MFT_ENTRY) Fixup_count() uint16 {
	return getUint16(self.b, 6)
}

func (self *MFT_ENTRY) Logfile_sequence_number() uint64 {
	return getUint64(self.b, 8)
}

func (self *MFT_ENTRY) Sequence_value() uint16 {
	return getUint16(self.b, 16)
}

func (self *MFT_ENTRY) Link_count() uint16 {
	return getUint16(self.b, 18)
}

func (self *MFT_ENTRY) Attribute_offset() uint16 {
	return getUint16(self.b, 20)
}

func (self *MFT_ENTRY) Flags() uint16 {
	return getUint16(self.b, 22)
}

func (self *MFT_ENTRY) Mft_entry_size() uint32 {
	return getUint32(self.b, 24)
}

func (self *MFT_ENTRY) Mft_entry_allocated() uint32 {
	return getUint32(self.b, 28)
}

func (self *MFT_ENTRY) Base_record_reference() uint64 {
	return getUint64(self.b, 32)
}

func (self *MFT_ENTRY) Next_attribute_id() uint16 {
	return getUint16(self.b, 40)
}

// Only present from NTFS 3.1
func (self *MFT_ENTRY) Record_number() uint32 {
	if self.Fixup_offset() < 48 {
		return uint32(self.Index)
	}
	return getUint32(self.b, 44)
}

func (self *MFT_ENTRY) IsAllocated() bool {
	return self.HasSignature() && self.Flags()&MFT_ENTRY_FLAG_ALLOCATED != 0
}

func (self *MFT_ENTRY) IsDirectory() bool {
	return self.Flags()&MFT_ENTRY_FLAG_DIRECTORY != 0
}

func (self *MFT_ENTRY) IsEmpty() bool {
	return len(self.attributes) == 0
}

// Extension records point at the base record holding their
// $ATTRIBUTE_LIST.
func (self *MFT_ENTRY) IsBaseRecord() bool {
	return self.Base_record_reference() == 0
}

// The file reference of this entry: the index in the low 48 bits and
// the sequence number in the high 16 bits.
func (self *MFT_ENTRY) FileReference() uint64 {
	return MakeFileReference(uint64(self.Index), self.Sequence_value())
}

// The attributes stored directly in this record. Attribute lists are
// not expanded here - see FileEntry.
func (self *MFT_ENTRY) Attributes() []*NTFS_ATTRIBUTE {
	return self.attributes
}

func (self *MFT_ENTRY) parseAttributes() ([]*NTFS_ATTRIBUTE, error) {
	result := make([]*NTFS_ATTRIBUTE, 0, 16)

	used := int(self.Mft_entry_size())
	offset := int(self.Attribute_offset())

	for offset+4 <= used {
		attr_type := getUint32(self.b, offset)
		if attr_type == ATTR_TYPE_END {
			break
		}

		attr_length := int(getUint32(self.b, offset+4))
		if attr_length < ATTRIBUTE_HEADER_SIZE || offset+attr_length > used {
			return nil, errors.Wrapf(ErrMalformedAttribute,
				"attribute %s at %#x: size %#x exceeds the %#x remaining bytes",
				AttributeTypeName(attr_type), offset, attr_length, used-offset)
		}

		attr, err := NewNTFS_ATTRIBUTE(
			self.b[offset:offset+attr_length], self.Index)
		if err != nil {
			return nil, err
		}
		result = append(result, attr)

		offset += attr_length
	}

	return result, nil
}

// Search the entry for an attribute by type and identifier without
// expanding attribute lists.
func (self *MFT_ENTRY) GetDirectAttribute(
	attr_type uint32, attr_id uint16) (*NTFS_ATTRIBUTE, error) {
	for _, attr := range self.attributes {
		if attr.Type() == attr_type && attr.Attribute_id() == attr_id {
			return attr, nil
		}
	}
	return nil, notFoundf("MFT entry %d has no attribute %s with id %d",
		self.Index, AttributeTypeName(attr_type), attr_id)
}

func (self *MFT_ENTRY) DebugString() string {
	result := fmt.Sprintf("struct MFT_ENTRY %d:\n", self.Index)
	result += fmt.Sprintf("  Magic: %q\n", self.Magic())
	result += fmt.Sprintf("  Fixup_offset: %#0x\n", self.Fixup_offset())
	result += fmt.Sprintf("  Fixup_count: %#0x\n", self.Fixup_count())
	result += fmt.Sprintf("  Logfile_sequence_number: %#0x\n", self.Logfile_sequence_number())
	result += fmt.Sprintf("  Sequence_value: %#0x\n", self.Sequence_value())
	result += fmt.Sprintf("  Link_count: %#0x\n", self.Link_count())
	result += fmt.Sprintf("  Attribute_offset: %#0x\n", self.Attribute_offset())
	result += fmt.Sprintf("  Flags: %#0x (%v)\n", self.Flags(),
		joinFlags(uint64(self.Flags()), mft_entry_flag_names))
	result += fmt.Sprintf("  Mft_entry_size: %#0x\n", self.Mft_entry_size())
	result += fmt.Sprintf("  Mft_entry_allocated: %#0x\n", self.Mft_entry_allocated())
	result += fmt.Sprintf("  Base_record_reference: %#0x\n", self.Base_record_reference())
	result += fmt.Sprintf("  Next_attribute_id: %#0x\n", self.Next_attribute_id())
	result += fmt.Sprintf("  Record_number: %#0x\n", self.Record_number())

	attrs := []string{}
	for _, attr := range self.attributes {
		attrs = append(attrs, attr.DebugString())
	}
	return result + strings.Join(attrs, "")
}

func MakeFileReference(index uint64, sequence uint16) uint64 {
	return index&0xFFFFFFFFFFFF | uint64(sequence)<<48
}

func FileReferenceIndex(ref uint64) uint64 {
	return ref & 0xFFFFFFFFFFFF
}

func FileReferenceSequence(ref uint64) uint16 {
	return uint16(ref >> 48)
}

// Render a file reference the way the Windows tools do.
func FormatFileReference(ref uint64) string {
	return fmt.Sprintf("%d-%d", FileReferenceIndex(ref), FileReferenceSequence(ref))
}
