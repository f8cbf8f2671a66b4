package parser

import (
	"fmt"

	"github.com/Velocidex/ordereddict"
)

// The decoded payload of an attribute. The concrete type depends on
// the attribute type code:
//
//	$STANDARD_INFORMATION   *STANDARD_INFORMATION
//	$ATTRIBUTE_LIST         *ATTRIBUTE_LIST
//	$FILE_NAME              *FILE_NAME
//	$OBJECT_ID              *OBJECT_ID
//	$SECURITY_DESCRIPTOR    *SECURITY_DESCRIPTOR
//	$VOLUME_NAME            *VOLUME_NAME
//	$VOLUME_INFORMATION     *VOLUME_INFORMATION
//	$INDEX_ROOT             *INDEX_ROOT
//	$BITMAP                 *BITMAP
//	$REPARSE_POINT          *REPARSE_POINT
//	$EA_INFORMATION         *EA_INFORMATION
//	$EA                     *EA
//	$LOGGED_UTILITY_STREAM  *LOGGED_UTILITY_STREAM
//
// Everything else ($DATA, $INDEX_ALLOCATION and unknown types) is a
// *RawAttributeValue.
type AttributeValue interface {
	AttributeType() uint32
}

// Decode an attribute payload. Unknown types never fail.
func DecodeAttributeValue(attr_type uint32, name string, data []byte) (AttributeValue, error) {
	switch attr_type {
	case ATTR_TYPE_STANDARD_INFORMATION:
		return NewSTANDARD_INFORMATION(data)

	case ATTR_TYPE_ATTRIBUTE_LIST:
		return NewATTRIBUTE_LIST(data)

	case ATTR_TYPE_FILE_NAME:
		return NewFILE_NAME(data)

	case ATTR_TYPE_OBJECT_ID:
		return NewOBJECT_ID(data)

	case ATTR_TYPE_SECURITY_DESCRIPTOR:
		return &SECURITY_DESCRIPTOR{Data: data}, nil

	case ATTR_TYPE_VOLUME_NAME:
		return &VOLUME_NAME{Name: UTF16ToString(data)}, nil

	case ATTR_TYPE_VOLUME_INFORMATION:
		return NewVOLUME_INFORMATION(data)

	case ATTR_TYPE_INDEX_ROOT:
		return NewINDEX_ROOT(data)

	case ATTR_TYPE_BITMAP:
		return &BITMAP{Data: data}, nil

	case ATTR_TYPE_REPARSE_POINT:
		return NewREPARSE_POINT(data)

	case ATTR_TYPE_EA_INFORMATION:
		return NewEA_INFORMATION(data)

	case ATTR_TYPE_EA:
		return NewEA(data)

	case ATTR_TYPE_LOGGED_UTILITY:
		return NewLOGGED_UTILITY_STREAM(name, data)
	}

	return &RawAttributeValue{Type: attr_type, Data: data}, nil
}

type RawAttributeValue struct {
	Type uint32
	Data []byte
}

func (self *RawAttributeValue) AttributeType() uint32 {
	return self.Type
}

// $STANDARD_INFORMATION
type STANDARD_INFORMATION struct {
	b []byte
}

func NewSTANDARD_INFORMATION(data []byte) (*STANDARD_INFORMATION, error) {
	if len(data) < 48 {
		return nil, malformedf("$STANDARD_INFORMATION too short (%d bytes)", len(data))
	}
	return &STANDARD_INFORMATION{b: data}, nil
}

func (self *STANDARD_INFORMATION) AttributeType() uint32 {
	return ATTR_TYPE_STANDARD_INFORMATION
}

func (self *STANDARD_INFORMATION) Create_time() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 0))
}

func (self *STANDARD_INFORMATION) File_altered_time() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 8))
}

func (self *STANDARD_INFORMATION) Mft_altered_time() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 16))
}

func (self *STANDARD_INFORMATION) File_accessed_time() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 24))
}

func (self *STANDARD_INFORMATION) Flags() uint32 {
	return getUint32(self.b, 32)
}

func (self *STANDARD_INFORMATION) Max_versions() uint32 {
	return getUint32(self.b, 36)
}

func (self *STANDARD_INFORMATION) Version() uint32 {
	return getUint32(self.b, 40)
}

func (self *STANDARD_INFORMATION) Class_id() uint32 {
	return getUint32(self.b, 44)
}

// The following fields are only present from NTFS 3.0 (72 bytes).
func (self *STANDARD_INFORMATION) HasExtendedFields() bool {
	return len(self.b) >= 72
}

func (self *STANDARD_INFORMATION) Owner_id() uint32 {
	return getUint32(self.b, 48)
}

func (self *STANDARD_INFORMATION) Security_id() uint32 {
	return getUint32(self.b, 52)
}

func (self *STANDARD_INFORMATION) Quota_charged() uint64 {
	return getUint64(self.b, 56)
}

func (self *STANDARD_INFORMATION) Usn() uint64 {
	return getUint64(self.b, 64)
}

func (self *STANDARD_INFORMATION) Dict() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("CreateTime", self.Create_time().Time).
		Set("FileModifiedTime", self.File_altered_time().Time).
		Set("MFTModifiedTime", self.Mft_altered_time().Time).
		Set("AccessedTime", self.File_accessed_time().Time).
		Set("FileAttributes", FileAttributeNames(self.Flags()))
	if self.HasExtendedFields() {
		result.Set("OwnerId", self.Owner_id()).
			Set("SecurityId", self.Security_id()).
			Set("Usn", self.Usn())
	}
	return result
}

// $FILE_NAME. Also used as the key of $I30 index entries.
type FILE_NAME struct {
	b []byte
}

const FILE_NAME_HEADER_SIZE = 66

func NewFILE_NAME(data []byte) (*FILE_NAME, error) {
	if len(data) < FILE_NAME_HEADER_SIZE {
		return nil, malformedf("$FILE_NAME too short (%d bytes)", len(data))
	}

	self := &FILE_NAME{b: data}
	if FILE_NAME_HEADER_SIZE+2*int(self._length_of_name()) > len(data) {
		return nil, malformedf("$FILE_NAME name of %d characters overruns %d bytes",
			self._length_of_name(), len(data))
	}
	return self, nil
}

func (self *FILE_NAME) AttributeType() uint32 {
	return ATTR_TYPE_FILE_NAME
}

func (self *FILE_NAME) ParentReference() uint64 {
	return getUint64(self.b, 0)
}

func (self *FILE_NAME) MftReference() uint64 {
	return FileReferenceIndex(self.ParentReference())
}

func (self *FILE_NAME) Seq_num() uint16 {
	return FileReferenceSequence(self.ParentReference())
}

func (self *FILE_NAME) Created() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 8))
}

func (self *FILE_NAME) File_modified() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 16))
}

func (self *FILE_NAME) Mft_modified() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 24))
}

func (self *FILE_NAME) File_accessed() WinFileTime {
	return NewWinFileTime(getUint64(self.b, 32))
}

func (self *FILE_NAME) Allocated_size() uint64 {
	return getUint64(self.b, 40)
}

func (self *FILE_NAME) FilenameSize() uint64 {
	return getUint64(self.b, 48)
}

func (self *FILE_NAME) Flags() uint32 {
	return getUint32(self.b, 56)
}

// The reparse tag when the file is a reparse point, otherwise the
// extended attribute size.
func (self *FILE_NAME) Reparse_value() uint32 {
	return getUint32(self.b, 60)
}

func (self *FILE_NAME) _length_of_name() uint8 {
	return getUint8(self.b, 64)
}

func (self *FILE_NAME) Name_type() uint8 {
	return getUint8(self.b, 65)
}

func (self *FILE_NAME) NameType() string {
	name, pres := namespace_names[self.Name_type()]
	if !pres {
		return fmt.Sprintf("%#x", self.Name_type())
	}
	return name
}

// DOS only names are the 8.3 short names.
func (self *FILE_NAME) IsShortName() bool {
	return self.Name_type() == FILE_NAME_NAMESPACE_DOS
}

func (self *FILE_NAME) Name() string {
	return ParseUTF16String(self.b, FILE_NAME_HEADER_SIZE, 2*int(self._length_of_name()))
}

// The raw UTF-16 name used for collation.
func (self *FILE_NAME) NameUTF16() []byte {
	return self.b[FILE_NAME_HEADER_SIZE : FILE_NAME_HEADER_SIZE+2*int(self._length_of_name())]
}

func (self *FILE_NAME) Dict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Name", self.Name()).
		Set("NameType", self.NameType()).
		Set("ParentReference", FormatFileReference(self.ParentReference())).
		Set("CreateTime", self.Created().Time).
		Set("FileModifiedTime", self.File_modified().Time).
		Set("MFTModifiedTime", self.Mft_modified().Time).
		Set("AccessedTime", self.File_accessed().Time).
		Set("Size", self.FilenameSize()).
		Set("AllocatedSize", self.Allocated_size()).
		Set("FileAttributes", FileAttributeNames(self.Flags()))
}

// $OBJECT_ID: the droid file identifier optionally followed by the
// birth droid identifiers.
type OBJECT_ID struct {
	b []byte
}

func NewOBJECT_ID(data []byte) (*OBJECT_ID, error) {
	if len(data) < 16 {
		return nil, malformedf("$OBJECT_ID too short (%d bytes)", len(data))
	}
	return &OBJECT_ID{b: data}, nil
}

func (self *OBJECT_ID) AttributeType() uint32 {
	return ATTR_TYPE_OBJECT_ID
}

func (self *OBJECT_ID) ObjectId() string {
	return FormatGUID(getBytes(self.b, 0, 16))
}

// Empty when not present.
func (self *OBJECT_ID) BirthVolumeId() string {
	return FormatGUID(getBytes(self.b, 16, 16))
}

func (self *OBJECT_ID) BirthObjectId() string {
	return FormatGUID(getBytes(self.b, 32, 16))
}

func (self *OBJECT_ID) DomainId() string {
	return FormatGUID(getBytes(self.b, 48, 16))
}

type SECURITY_DESCRIPTOR struct {
	Data []byte
}

func (self *SECURITY_DESCRIPTOR) AttributeType() uint32 {
	return ATTR_TYPE_SECURITY_DESCRIPTOR
}

type VOLUME_NAME struct {
	Name string
}

func (self *VOLUME_NAME) AttributeType() uint32 {
	return ATTR_TYPE_VOLUME_NAME
}

type VOLUME_INFORMATION struct {
	b []byte
}

func NewVOLUME_INFORMATION(data []byte) (*VOLUME_INFORMATION, error) {
	if len(data) < 12 {
		return nil, malformedf("$VOLUME_INFORMATION too short (%d bytes)", len(data))
	}
	return &VOLUME_INFORMATION{b: data}, nil
}

func (self *VOLUME_INFORMATION) AttributeType() uint32 {
	return ATTR_TYPE_VOLUME_INFORMATION
}

func (self *VOLUME_INFORMATION) Major() uint8 {
	return getUint8(self.b, 8)
}

func (self *VOLUME_INFORMATION) Minor() uint8 {
	return getUint8(self.b, 9)
}

func (self *VOLUME_INFORMATION) Flags() uint16 {
	return getUint16(self.b, 10)
}

func (self *VOLUME_INFORMATION) IsDirty() bool {
	return self.Flags()&1 != 0
}

type BITMAP struct {
	Data []byte
}

func (self *BITMAP) AttributeType() uint32 {
	return ATTR_TYPE_BITMAP
}

func (self *BITMAP) IsSet(bit int64) bool {
	idx := bit / 8
	if bit < 0 || idx >= int64(len(self.Data)) {
		return false
	}
	return self.Data[idx]&(1<<uint(bit%8)) != 0
}

// $REPARSE_POINT. Mount points and symbolic links carry substitute
// and print names, other tags are left as raw data.
type REPARSE_POINT struct {
	b []byte
}

func NewREPARSE_POINT(data []byte) (*REPARSE_POINT, error) {
	if len(data) < 8 {
		return nil, malformedf("$REPARSE_POINT too short (%d bytes)", len(data))
	}

	self := &REPARSE_POINT{b: data}
	if 8+int(self.Data_size()) > len(data) {
		return nil, malformedf("$REPARSE_POINT data size %#x overruns %d bytes",
			self.Data_size(), len(data))
	}
	return self, nil
}

func (self *REPARSE_POINT) AttributeType() uint32 {
	return ATTR_TYPE_REPARSE_POINT
}

func (self *REPARSE_POINT) Tag() uint32 {
	return getUint32(self.b, 0)
}

func (self *REPARSE_POINT) Data_size() uint16 {
	return getUint16(self.b, 4)
}

func (self *REPARSE_POINT) Data() []byte {
	return self.b[8 : 8+int(self.Data_size())]
}

func (self *REPARSE_POINT) IsMountPoint() bool {
	return self.Tag() == IO_REPARSE_TAG_MOUNT_POINT
}

func (self *REPARSE_POINT) IsSymbolicLink() bool {
	return self.Tag() == IO_REPARSE_TAG_SYMLINK
}

// Symbolic links have an extra flags field before the path buffer.
func (self *REPARSE_POINT) pathBuffer() int {
	if self.IsSymbolicLink() {
		return 20
	}
	return 16
}

func (self *REPARSE_POINT) name(offset_field int) string {
	if !self.IsMountPoint() && !self.IsSymbolicLink() {
		return ""
	}

	data := self.Data()
	offset := int(getUint16(data, offset_field))
	length := int(getUint16(data, offset_field+2))
	return ParseUTF16String(data, self.pathBuffer()-8+offset, length)
}

func (self *REPARSE_POINT) SubstituteName() string {
	return self.name(0)
}

func (self *REPARSE_POINT) PrintName() string {
	return self.name(4)
}

func (self *REPARSE_POINT) IsRelative() bool {
	return self.IsSymbolicLink() &&
		getUint32(self.Data(), 8)&SYMLINK_FLAG_RELATIVE != 0
}

func (self *REPARSE_POINT) Dict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Tag", fmt.Sprintf("%#x", self.Tag())).
		Set("SubstituteName", self.SubstituteName()).
		Set("PrintName", self.PrintName()).
		Set("IsRelative", self.IsRelative())
}

type EA_INFORMATION struct {
	b []byte
}

func NewEA_INFORMATION(data []byte) (*EA_INFORMATION, error) {
	if len(data) < 8 {
		return nil, malformedf("$EA_INFORMATION too short (%d bytes)", len(data))
	}
	return &EA_INFORMATION{b: data}, nil
}

func (self *EA_INFORMATION) AttributeType() uint32 {
	return ATTR_TYPE_EA_INFORMATION
}

func (self *EA_INFORMATION) PackedSize() uint16 {
	return getUint16(self.b, 0)
}

func (self *EA_INFORMATION) NeedEACount() uint16 {
	return getUint16(self.b, 2)
}

func (self *EA_INFORMATION) UnpackedSize() uint32 {
	return getUint32(self.b, 4)
}

type EA_ENTRY struct {
	Flags uint8
	Name  string
	Value []byte
}

// $EA: a list of extended attributes.
type EA struct {
	Entries []*EA_ENTRY
}

func NewEA(data []byte) (*EA, error) {
	result := &EA{}

	for offset := 0; offset+8 <= len(data); {
		next := int(getUint32(data, offset))
		name_length := int(getUint8(data, offset+5))
		value_length := int(getUint16(data, offset+6))

		name := getBytes(data, offset+8, name_length)
		// The name is followed by a NUL terminator.
		value := getBytes(data, offset+8+name_length+1, value_length)
		if name == nil || value == nil {
			return nil, malformedf("$EA entry at %#x overruns %d bytes", offset, len(data))
		}

		result.Entries = append(result.Entries, &EA_ENTRY{
			Flags: getUint8(data, offset+4),
			Name:  string(name),
			Value: value,
		})

		if next <= 0 {
			break
		}
		offset += next
	}

	return result, nil
}

func (self *EA) AttributeType() uint32 {
	return ATTR_TYPE_EA
}

// Transactional NTFS data stored in the $TXF_DATA logged utility
// stream.
type TXF_DATA struct {
	b []byte
}

const TXF_DATA_SIZE = 56

func (self *TXF_DATA) RmRootFileReference() uint64 {
	return getUint64(self.b, 6)
}

func (self *TXF_DATA) UsnIndex() uint64 {
	return getUint64(self.b, 14)
}

func (self *TXF_DATA) FileIdentifier() uint64 {
	return getUint64(self.b, 22)
}

func (self *TXF_DATA) DataLSN() uint64 {
	return getUint64(self.b, 30)
}

func (self *TXF_DATA) MetadataLSN() uint64 {
	return getUint64(self.b, 38)
}

func (self *TXF_DATA) DirectoryIndexLSN() uint64 {
	return getUint64(self.b, 46)
}

func (self *TXF_DATA) Flags() uint16 {
	return getUint16(self.b, 54)
}

type LOGGED_UTILITY_STREAM struct {
	Name string
	Data []byte

	// Set for the $TXF_DATA stream.
	TxF *TXF_DATA
}

func NewLOGGED_UTILITY_STREAM(name string, data []byte) (*LOGGED_UTILITY_STREAM, error) {
	result := &LOGGED_UTILITY_STREAM{Name: name, Data: data}
	if name == "$TXF_DATA" {
		if len(data) != TXF_DATA_SIZE {
			return nil, malformedf("$TXF_DATA has unsupported size %d", len(data))
		}
		result.TxF = &TXF_DATA{b: data}
	}
	return result, nil
}

func (self *LOGGED_UTILITY_STREAM) AttributeType() uint32 {
	return ATTR_TYPE_LOGGED_UTILITY
}
