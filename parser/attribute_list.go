package parser

import (
	"fmt"
)

const ATTRIBUTE_LIST_ENTRY_SIZE = 26

// An entry in the $ATTRIBUTE_LIST: points at an attribute (or a piece
// of one) stored in some MFT entry.
type ATTRIBUTE_LIST_ENTRY struct {
	b []byte
}

func (self *ATTRIBUTE_LIST_ENTRY) Type() uint32 {
	return getUint32(self.b, 0)
}

func (self *ATTRIBUTE_LIST_ENTRY) Length() uint16 {
	return getUint16(self.b, 4)
}

func (self *ATTRIBUTE_LIST_ENTRY) name_length() uint8 {
	return getUint8(self.b, 6)
}

func (self *ATTRIBUTE_LIST_ENTRY) name_offset() uint8 {
	return getUint8(self.b, 7)
}

func (self *ATTRIBUTE_LIST_ENTRY) Starting_vcn() uint64 {
	return getUint64(self.b, 8)
}

func (self *ATTRIBUTE_LIST_ENTRY) FileReference() uint64 {
	return getUint64(self.b, 16)
}

func (self *ATTRIBUTE_LIST_ENTRY) MftReference() uint64 {
	return FileReferenceIndex(self.FileReference())
}

func (self *ATTRIBUTE_LIST_ENTRY) Attribute_id() uint16 {
	return getUint16(self.b, 24)
}

func (self *ATTRIBUTE_LIST_ENTRY) Name() string {
	if self.name_length() == 0 {
		return ""
	}
	return ParseUTF16String(self.b, int(self.name_offset()), 2*int(self.name_length()))
}

func (self *ATTRIBUTE_LIST_ENTRY) DebugString() string {
	return fmt.Sprintf("ATTRIBUTE_LIST_ENTRY %v %q VCN %#x in %v id %d",
		AttributeTypeName(self.Type()), self.Name(), self.Starting_vcn(),
		FormatFileReference(self.FileReference()), self.Attribute_id())
}

type ATTRIBUTE_LIST struct {
	Entries []*ATTRIBUTE_LIST_ENTRY
}

func NewATTRIBUTE_LIST(data []byte) (*ATTRIBUTE_LIST, error) {
	result := &ATTRIBUTE_LIST{}

	for offset := 0; offset+ATTRIBUTE_LIST_ENTRY_SIZE <= len(data); {
		length := int(getUint16(data, offset+4))
		if length < ATTRIBUTE_LIST_ENTRY_SIZE || offset+length > len(data) {
			return nil, malformedf("$ATTRIBUTE_LIST entry at %#x has invalid size %#x",
				offset, length)
		}

		entry := &ATTRIBUTE_LIST_ENTRY{b: data[offset : offset+length]}
		if entry.name_length() > 0 &&
			int(entry.name_offset())+2*int(entry.name_length()) > length {
			return nil, malformedf("$ATTRIBUTE_LIST entry at %#x: name overruns entry", offset)
		}

		result.Entries = append(result.Entries, entry)
		offset += length
	}

	return result, nil
}

func (self *ATTRIBUTE_LIST) AttributeType() uint32 {
	return ATTR_TYPE_ATTRIBUTE_LIST
}
