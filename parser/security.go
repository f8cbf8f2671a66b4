package parser

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Since NTFS 3.0 security descriptors are shared: $STANDARD_INFORMATION
// carries a security id which is looked up in the $SII index of
// $Secure to find the descriptor in the $SDS stream.

const (
	SDS_ENTRY_HEADER_SIZE = 20
)

// An $SDS entry header. $SII index entries carry a copy as data.
type SDS_ENTRY_HEADER struct {
	b []byte
}

func (self *SDS_ENTRY_HEADER) Hash() uint32 {
	return getUint32(self.b, 0)
}

func (self *SDS_ENTRY_HEADER) Id() uint32 {
	return getUint32(self.b, 4)
}

func (self *SDS_ENTRY_HEADER) Offset() int64 {
	return int64(getUint64(self.b, 8))
}

func (self *SDS_ENTRY_HEADER) Size() uint32 {
	return getUint32(self.b, 16)
}

type securityIndex struct {
	sii *Index
	sds *Attribute
}

func (self *Volume) loadSecurityIndex() (*securityIndex, error) {
	if self.secure != nil {
		return self.secure, nil
	}

	entry, err := self.fileEntryByIndex(MFT_ENTRY_SECURE)
	if err != nil {
		return nil, err
	}

	root_attr := entry.findAttribute(ATTR_TYPE_INDEX_ROOT, "$SII")
	if root_attr == nil {
		return nil, notFoundf("$Secure has no $SII index")
	}

	sds := entry.findAttribute(ATTR_TYPE_DATA, "$SDS")
	if sds == nil {
		return nil, notFoundf("$Secure has no $SDS stream")
	}

	sii, err := self.openIndex(entry, root_attr)
	if err != nil {
		return nil, err
	}

	self.secure = &securityIndex{sii: sii, sds: sds}
	return self.secure, nil
}

// The self relative security descriptor registered under the id in
// $Secure.
func (self *Volume) SecurityDescriptorByID(id uint32) ([]byte, error) {
	err := self.checkOpen()
	if err != nil {
		return nil, err
	}

	secure, err := self.loadSecurityIndex()
	if err != nil {
		return nil, err
	}

	key := make([]byte, 4)
	binary.LittleEndian.PutUint32(key, id)

	entry, err := secure.sii.LookupKey(key)
	if err != nil {
		return nil, errors.WithMessagef(err, "security id %d", id)
	}

	header := &SDS_ENTRY_HEADER{b: entry.Data()}
	if len(header.b) < SDS_ENTRY_HEADER_SIZE {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"$SII entry for security id %d too short", id)
	}

	size := int64(header.Size())
	if size < SDS_ENTRY_HEADER_SIZE {
		return nil, malformedf("$SDS entry for security id %d has size %d", id, size)
	}

	err = checkAllocation(size, self.options.MaxAllocationSize, "$SDS entry")
	if err != nil {
		return nil, err
	}

	stream, err := secure.sds.Stream()
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, size)
	n, err := stream.ReadAt(buffer, header.Offset())
	if int64(n) < size {
		return nil, ioErrorf(err, "reading $SDS entry for security id %d at %#x",
			id, header.Offset())
	}

	stored := &SDS_ENTRY_HEADER{b: buffer}
	if stored.Id() != id {
		return nil, malformedf("$SDS entry at %#x has security id %d, expected %d",
			header.Offset(), stored.Id(), id)
	}

	return buffer[SDS_ENTRY_HEADER_SIZE:], nil
}
