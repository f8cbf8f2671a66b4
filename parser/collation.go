package parser

import (
	"bytes"
	"encoding/binary"
	"unicode"
)

// The volume's $UpCase table maps every UTF-16 code unit to its upper
// case form. File name collation compares upcased code units.
type UpcaseTable struct {
	table []uint16
}

// Build the table from the $UpCase data. Missing entries map to
// themselves.
func NewUpcaseTable(data []byte) *UpcaseTable {
	table := make([]uint16, 0x10000)
	for i := range table {
		table[i] = uint16(i)
	}

	for i := 0; i+1 < len(data) && i/2 < len(table); i += 2 {
		table[i/2] = binary.LittleEndian.Uint16(data[i:])
	}
	return &UpcaseTable{table: table}
}

// Used when the volume has no readable $UpCase: simple Unicode upper
// casing of the basic multilingual plane.
func NewDefaultUpcaseTable() *UpcaseTable {
	table := make([]uint16, 0x10000)
	for i := range table {
		r := rune(i)
		upper := unicode.ToUpper(r)
		if upper > 0xFFFF {
			upper = r
		}
		table[i] = uint16(upper)
	}
	return &UpcaseTable{table: table}
}

func (self *UpcaseTable) Upper(c uint16) uint16 {
	return self.table[c]
}

// Compare two little endian UTF-16 strings case insensitively.
func (self *UpcaseTable) CompareUTF16(a, b []byte) int {
	length := len(a) / 2
	if len(b)/2 < length {
		length = len(b) / 2
	}

	for i := 0; i < length; i++ {
		c1 := self.Upper(binary.LittleEndian.Uint16(a[2*i:]))
		c2 := self.Upper(binary.LittleEndian.Uint16(b[2*i:]))
		if c1 < c2 {
			return -1
		}
		if c1 > c2 {
			return 1
		}
	}

	switch {
	case len(a)/2 < len(b)/2:
		return -1
	case len(a)/2 > len(b)/2:
		return 1
	}
	return 0
}

func compareUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare sequences of little endian 32 bit values.
func compareUlongs(a, b []byte) int {
	for i := 0; i+4 <= len(a) && i+4 <= len(b); i += 4 {
		res := compareUint32(binary.LittleEndian.Uint32(a[i:]),
			binary.LittleEndian.Uint32(b[i:]))
		if res != 0 {
			return res
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Returns a comparison function for the index collation rule. The
// needle is always in the same format as the stored key, except for
// file name collation where the needle is the bare UTF-16 name.
func collationFunc(rule uint32, upcase *UpcaseTable) func(key, needle []byte) int {
	switch rule {
	case COLLATION_FILE_NAME:
		return func(key, needle []byte) int {
			file_name, err := NewFILE_NAME(key)
			if err != nil {
				return -1
			}
			return upcase.CompareUTF16(file_name.NameUTF16(), needle)
		}

	case COLLATION_UNICODE_STRING:
		return upcase.CompareUTF16

	case COLLATION_NTOFS_ULONG:
		return func(key, needle []byte) int {
			return compareUint32(getUint32(key, 0), getUint32(needle, 0))
		}

	// The $SDH key is the hash followed by the security id which
	// collates the same way.
	case COLLATION_NTOFS_ULONGS, COLLATION_NTOFS_SECURITY:
		return compareUlongs
	}

	return bytes.Compare
}
