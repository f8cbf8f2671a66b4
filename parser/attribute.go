package parser

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	ATTRIBUTE_HEADER_SIZE      = 16
	RESIDENT_HEADER_SIZE       = 24
	NON_RESIDENT_HEADER_SIZE   = 64
	COMPRESSED_HEADER_SIZE     = 72
	DEFAULT_COMPRESSION_UNIT   = 4
	MAX_COMPRESSION_UNIT_SHIFT = 8
)

// An attribute as stored in a single MFT entry. Large non-resident
// attributes may be split into several of these across extension
// records - see Attribute for the merged view.
type NTFS_ATTRIBUTE struct {
	b []byte

	// The MFT entry the attribute was found in.
	Record int64
}

func NewNTFS_ATTRIBUTE(b []byte, record int64) (*NTFS_ATTRIBUTE, error) {
	STATS.Inc_NTFS_ATTRIBUTE()

	self := &NTFS_ATTRIBUTE{b: b, Record: record}
	err := self.validate()
	if err != nil {
		return nil, err
	}
	return self, nil
}

func (self *NTFS_ATTRIBUTE) validate() error {
	length := len(self.b)

	name_end := int(self.name_offset()) + 2*int(self.name_length())
	if self.name_length() > 0 && name_end > length {
		return malformedf("attribute %s: name at %#x overruns attribute of size %#x",
			self.TypeName(), self.name_offset(), length)
	}

	if self.IsResident() {
		if length < RESIDENT_HEADER_SIZE {
			return malformedf("resident attribute %s too short (%d bytes)",
				self.TypeName(), length)
		}

		end := int(self.Content_offset()) + int(self.Content_size())
		if end > length {
			return malformedf("attribute %s: data size %#x at %#x exceeds attribute size %#x",
				self.TypeName(), self.Content_size(), self.Content_offset(), length)
		}
		return nil
	}

	if length < NON_RESIDENT_HEADER_SIZE {
		return malformedf("non-resident attribute %s too short (%d bytes)",
			self.TypeName(), length)
	}

	if int(self.Runlist_offset()) > length {
		return malformedf("attribute %s: run list offset %#x outside attribute",
			self.TypeName(), self.Runlist_offset())
	}

	if self.Runlist_vcn_end()+1 < self.Runlist_vcn_start() {
		return malformedf("attribute %s: last VCN %#x before first VCN %#x",
			self.TypeName(), self.Runlist_vcn_end(), self.Runlist_vcn_start())
	}

	if self.Compression_unit_size() > MAX_COMPRESSION_UNIT_SHIFT {
		return malformedf("attribute %s: compression unit %d too large",
			self.TypeName(), self.Compression_unit_size())
	}

	// The sizes are only meaningful in the first piece.
	if self.Runlist_vcn_start() == 0 {
		if self.Initialized_size() > self.Actual_size() ||
			self.Actual_size() > self.Allocated_size() {
			return malformedf("attribute %s: sizes out of order (valid %#x, data %#x, allocated %#x)",
				self.TypeName(), self.Initialized_size(),
				self.Actual_size(), self.Allocated_size())
		}
	}

	return nil
}

func (self *NTFS_ATTRIBUTE) Type() uint32 {
	return getUint32(self.b, 0)
}

func (self *NTFS_ATTRIBUTE) TypeName() string {
	return AttributeTypeName(self.Type())
}

func (self *NTFS_ATTRIBUTE) Length() uint32 {
	return getUint32(self.b, 4)
}

func (self *NTFS_ATTRIBUTE) IsResident() bool {
	return getUint8(self.b, 8) == 0
}

func (self *NTFS_ATTRIBUTE) name_length() uint8 {
	return getUint8(self.b, 9)
}

func (self *NTFS_ATTRIBUTE) name_offset() uint16 {
	return getUint16(self.b, 10)
}

func (self *NTFS_ATTRIBUTE) Flags() uint16 {
	return getUint16(self.b, 12)
}

func (self *NTFS_ATTRIBUTE) IsCompressed() bool {
	return self.Flags()&ATTRIBUTE_FLAG_COMPRESSED != 0
}

func (self *NTFS_ATTRIBUTE) IsSparse() bool {
	return self.Flags()&ATTRIBUTE_FLAG_SPARSE != 0
}

func (self *NTFS_ATTRIBUTE) IsEncrypted() bool {
	return self.Flags()&ATTRIBUTE_FLAG_ENCRYPTED != 0
}

func (self *NTFS_ATTRIBUTE) Attribute_id() uint16 {
	return getUint16(self.b, 14)
}

func (self *NTFS_ATTRIBUTE) Name() string {
	if self.name_length() == 0 {
		return ""
	}
	return ParseUTF16String(self.b, int(self.name_offset()),
		2*int(self.name_length()))
}

// Resident attributes

func (self *NTFS_ATTRIBUTE) Content_size() uint32 {
	return getUint32(self.b, 16)
}

func (self *NTFS_ATTRIBUTE) Content_offset() uint16 {
	return getUint16(self.b, 20)
}

func (self *NTFS_ATTRIBUTE) Indexed() bool {
	return getUint8(self.b, 22) != 0
}

func (self *NTFS_ATTRIBUTE) ResidentData() []byte {
	if !self.IsResident() {
		return nil
	}
	offset := int(self.Content_offset())
	return self.b[offset : offset+int(self.Content_size())]
}

// Non resident attributes

func (self *NTFS_ATTRIBUTE) Runlist_vcn_start() uint64 {
	return getUint64(self.b, 16)
}

func (self *NTFS_ATTRIBUTE) Runlist_vcn_end() uint64 {
	return getUint64(self.b, 24)
}

func (self *NTFS_ATTRIBUTE) Runlist_offset() uint16 {
	return getUint16(self.b, 32)
}

func (self *NTFS_ATTRIBUTE) Compression_unit_size() uint16 {
	return getUint16(self.b, 34)
}

func (self *NTFS_ATTRIBUTE) Allocated_size() uint64 {
	return getUint64(self.b, 40)
}

func (self *NTFS_ATTRIBUTE) Actual_size() uint64 {
	return getUint64(self.b, 48)
}

func (self *NTFS_ATTRIBUTE) Initialized_size() uint64 {
	return getUint64(self.b, 56)
}

// Only present when the attribute is compressed or sparse.
func (self *NTFS_ATTRIBUTE) Total_allocated() uint64 {
	if self.IsResident() || len(self.b) < COMPRESSED_HEADER_SIZE ||
		self.Runlist_offset() < COMPRESSED_HEADER_SIZE {
		return self.Allocated_size()
	}
	return getUint64(self.b, 64)
}

func (self *NTFS_ATTRIBUTE) RunListBytes() []byte {
	if self.IsResident() {
		return nil
	}
	return self.b[self.Runlist_offset():]
}

// Decode this piece's run list into absolute runs starting at the
// piece's first VCN.
func (self *NTFS_ATTRIBUTE) DataRuns() ([]DataRun, error) {
	runs, err := DecodeRunList(self.RunListBytes())
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d attribute %s",
			self.Record, self.TypeName())
	}

	data_runs, err := MakeExtents(int64(self.Runlist_vcn_start()), runs)
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d attribute %s",
			self.Record, self.TypeName())
	}

	// The runs must cover the VCN range the piece claims.
	if len(data_runs) > 0 {
		last := data_runs[len(data_runs)-1]
		if uint64(last.VCN+last.Clusters) < self.Runlist_vcn_end()+1 {
			return nil, malformedf("MFT entry %d attribute %s: runs end at VCN %#x, expected %#x",
				self.Record, self.TypeName(), last.VCN+last.Clusters-1,
				self.Runlist_vcn_end())
		}
	}
	return data_runs, nil
}

func (self *NTFS_ATTRIBUTE) DataSize() int64 {
	if self.IsResident() {
		return int64(self.Content_size())
	}
	return int64(self.Actual_size())
}

func (self *NTFS_ATTRIBUTE) DebugString() string {
	result := fmt.Sprintf("struct NTFS_ATTRIBUTE (MFT entry %d):\n", self.Record)
	result += fmt.Sprintf("  Type: %#x (%v)\n", self.Type(), self.TypeName())
	result += fmt.Sprintf("  Length: %#0x\n", self.Length())
	result += fmt.Sprintf("  Resident: %v\n", self.IsResident())
	result += fmt.Sprintf("  Name: %q\n", self.Name())
	result += fmt.Sprintf("  Flags: %#x (%v)\n", self.Flags(),
		joinFlags(uint64(self.Flags()), attribute_flag_names))
	result += fmt.Sprintf("  Attribute_id: %#0x\n", self.Attribute_id())
	if self.IsResident() {
		result += fmt.Sprintf("  Content_size: %#0x\n", self.Content_size())
		result += fmt.Sprintf("  Content_offset: %#0x\n", self.Content_offset())
		return result
	}
	result += fmt.Sprintf("  Runlist_vcn_start: %#0x\n", self.Runlist_vcn_start())
	result += fmt.Sprintf("  Runlist_vcn_end: %#0x\n", self.Runlist_vcn_end())
	result += fmt.Sprintf("  Runlist_offset: %#0x\n", self.Runlist_offset())
	result += fmt.Sprintf("  Compression_unit_size: %#0x\n", self.Compression_unit_size())
	result += fmt.Sprintf("  Allocated_size: %#0x\n", self.Allocated_size())
	result += fmt.Sprintf("  Actual_size: %#0x\n", self.Actual_size())
	result += fmt.Sprintf("  Initialized_size: %#0x\n", self.Initialized_size())
	return result
}
