package parser

const (
	ATTR_TYPE_STANDARD_INFORMATION = 0x10
	ATTR_TYPE_ATTRIBUTE_LIST       = 0x20
	ATTR_TYPE_FILE_NAME            = 0x30
	ATTR_TYPE_OBJECT_ID            = 0x40
	ATTR_TYPE_SECURITY_DESCRIPTOR  = 0x50
	ATTR_TYPE_VOLUME_NAME          = 0x60
	ATTR_TYPE_VOLUME_INFORMATION   = 0x70
	ATTR_TYPE_DATA                 = 0x80
	ATTR_TYPE_INDEX_ROOT           = 0x90
	ATTR_TYPE_INDEX_ALLOCATION     = 0xA0
	ATTR_TYPE_BITMAP               = 0xB0
	ATTR_TYPE_REPARSE_POINT        = 0xC0
	ATTR_TYPE_EA_INFORMATION       = 0xD0
	ATTR_TYPE_EA                   = 0xE0
	ATTR_TYPE_PROPERTY_SET         = 0xF0
	ATTR_TYPE_LOGGED_UTILITY       = 0x100

	// Marks the end of the attributes in an MFT entry.
	ATTR_TYPE_END = 0xFFFFFFFF
)

// Well known MFT entries.
const (
	MFT_ENTRY_MFT     = 0
	MFT_ENTRY_MFTMIRR = 1
	MFT_ENTRY_LOGFILE = 2
	MFT_ENTRY_VOLUME  = 3
	MFT_ENTRY_ATTRDEF = 4
	MFT_ENTRY_ROOT    = 5
	MFT_ENTRY_BITMAP  = 6
	MFT_ENTRY_BOOT    = 7
	MFT_ENTRY_BADCLUS = 8
	MFT_ENTRY_SECURE  = 9
	MFT_ENTRY_UPCASE  = 10
	MFT_ENTRY_EXTEND  = 11
)

const (
	MFT_ENTRY_FLAG_ALLOCATED = 1 << 0
	MFT_ENTRY_FLAG_DIRECTORY = 1 << 1

	ATTRIBUTE_FLAG_COMPRESSED = 1 << 0
	ATTRIBUTE_FLAG_ENCRYPTED  = 1 << 14
	ATTRIBUTE_FLAG_SPARSE     = 1 << 15

	INDEX_ENTRY_FLAG_HAS_SUB_NODE = 1 << 0
	INDEX_ENTRY_FLAG_IS_LAST      = 1 << 1

	INDEX_NODE_FLAG_HAS_ALLOCATION = 1 << 0

	COLLATION_BINARY         = 0x00
	COLLATION_FILE_NAME      = 0x01
	COLLATION_UNICODE_STRING = 0x02
	COLLATION_NTOFS_ULONG    = 0x10
	COLLATION_NTOFS_SID      = 0x11
	COLLATION_NTOFS_SECURITY = 0x12
	COLLATION_NTOFS_ULONGS   = 0x13

	FILE_NAME_NAMESPACE_POSIX     = 0
	FILE_NAME_NAMESPACE_WIN32     = 1
	FILE_NAME_NAMESPACE_DOS       = 2
	FILE_NAME_NAMESPACE_DOS_WIN32 = 3

	IO_REPARSE_TAG_MOUNT_POINT = 0xA0000003
	IO_REPARSE_TAG_SYMLINK     = 0xA000000C

	SYMLINK_FLAG_RELATIVE = 1

	FILE_ATTRIBUTE_REPARSE_POINT = 0x400

	// Set in $FILE_NAME flags of directories.
	FILE_ATTRIBUTE_DIRECTORY_INDEX = 0x10000000
)

const (
	MAX_MFT_ENTRY_SIZE  = 0x10000
	MAX_FILENAME_LENGTH = 0x200
	MAX_CLUSTER_SIZE    = 0x200000

	// NTFS fixups always protect 512 byte strides regardless of the
	// sector size.
	FIXUP_STRIDE = 512
)

var (
	attribute_type_names = map[uint32]string{
		ATTR_TYPE_STANDARD_INFORMATION: "$STANDARD_INFORMATION",
		ATTR_TYPE_ATTRIBUTE_LIST:       "$ATTRIBUTE_LIST",
		ATTR_TYPE_FILE_NAME:            "$FILE_NAME",
		ATTR_TYPE_OBJECT_ID:            "$OBJECT_ID",
		ATTR_TYPE_SECURITY_DESCRIPTOR:  "$SECURITY_DESCRIPTOR",
		ATTR_TYPE_VOLUME_NAME:          "$VOLUME_NAME",
		ATTR_TYPE_VOLUME_INFORMATION:   "$VOLUME_INFORMATION",
		ATTR_TYPE_DATA:                 "$DATA",
		ATTR_TYPE_INDEX_ROOT:           "$INDEX_ROOT",
		ATTR_TYPE_INDEX_ALLOCATION:     "$INDEX_ALLOCATION",
		ATTR_TYPE_BITMAP:               "$BITMAP",
		ATTR_TYPE_REPARSE_POINT:        "$REPARSE_POINT",
		ATTR_TYPE_EA_INFORMATION:       "$EA_INFORMATION",
		ATTR_TYPE_EA:                   "$EA",
		ATTR_TYPE_PROPERTY_SET:         "$PROPERTY_SET",
		ATTR_TYPE_LOGGED_UTILITY:       "$LOGGED_UTILITY_STREAM",
	}

	file_attribute_names = map[uint64]string{
		0x1:     "READ_ONLY",
		0x2:     "HIDDEN",
		0x4:     "SYSTEM",
		0x10:    "DIRECTORY",
		0x20:    "ARCHIVE",
		0x40:    "DEVICE",
		0x80:    "NORMAL",
		0x100:   "TEMPORARY",
		0x200:   "SPARSE_FILE",
		0x400:   "REPARSE_POINT",
		0x800:   "COMPRESSED",
		0x1000:  "OFFLINE",
		0x2000:  "NOT_CONTENT_INDEXED",
		0x4000:  "ENCRYPTED",
		0x8000:  "INTEGRITY_STREAM",
		0x10000: "VIRTUAL",
		0x20000: "NO_SCRUB_DATA",
		// Only ever set in $FILE_NAME and index keys.
		0x10000000: "DUP_FILE_NAME_INDEX_PRESENT",
		0x20000000: "DUP_VIEW_INDEX_PRESENT",
	}

	mft_entry_flag_names = map[uint64]string{
		MFT_ENTRY_FLAG_ALLOCATED: "ALLOCATED",
		MFT_ENTRY_FLAG_DIRECTORY: "DIRECTORY",
		0x4:                      "EXTEND",
		0x8:                      "VIEW_INDEX",
	}

	attribute_flag_names = map[uint64]string{
		ATTRIBUTE_FLAG_COMPRESSED: "COMPRESSED",
		ATTRIBUTE_FLAG_ENCRYPTED:  "ENCRYPTED",
		ATTRIBUTE_FLAG_SPARSE:     "SPARSE",
	}

	namespace_names = map[uint8]string{
		FILE_NAME_NAMESPACE_POSIX:     "POSIX",
		FILE_NAME_NAMESPACE_WIN32:     "Win32",
		FILE_NAME_NAMESPACE_DOS:       "DOS",
		FILE_NAME_NAMESPACE_DOS_WIN32: "DOS+Win32",
	}
)

func AttributeTypeName(attr_type uint32) string {
	name, pres := attribute_type_names[attr_type]
	if pres {
		return name
	}
	return "Unknown"
}

// Names of the FILE_ATTRIBUTE_* flags stored in $STANDARD_INFORMATION
// and $FILE_NAME.
func FileAttributeNames(flags uint32) []string {
	return flagNames(uint64(flags), file_attribute_names)
}
