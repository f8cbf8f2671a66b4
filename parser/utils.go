package parser

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

const (
	// Seconds between 1601-01-01 and 1970-01-01
	filetime_epoch_delta = 11644473600
)

var (
	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// Decode a little endian UTF-16 buffer. Odd trailing bytes are
// dropped.
func UTF16ToString(data []byte) string {
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}

	decoded, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// Encode a string as little endian UTF-16.
func StringToUTF16(in string) []byte {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(in))
	if err != nil {
		return nil
	}
	return encoded
}

// Read a counted UTF-16 string out of a buffer with bounds checking.
func ParseUTF16String(data []byte, offset, length int) string {
	if offset < 0 || length <= 0 || offset >= len(data) {
		return ""
	}
	end := offset + length
	if end > len(data) {
		end = len(data)
	}
	return UTF16ToString(data[offset:end])
}

// A FileTime object is a timestamp in windows filetime format.
type WinFileTime struct {
	time.Time

	// The raw 100ns ticks since 1601-01-01
	Raw uint64
}

func NewWinFileTime(filetime uint64) WinFileTime {
	seconds := int64(filetime/10000000) - filetime_epoch_delta
	nanoseconds := int64(filetime%10000000) * 100
	return WinFileTime{
		Time: time.Unix(seconds, nanoseconds).UTC(),
		Raw:  filetime,
	}
}

func (self WinFileTime) GoString() string {
	return self.DebugString()
}

func (self WinFileTime) DebugString() string {
	return fmt.Sprintf("%v (%#x)", self.Time.Format(time.RFC3339Nano), self.Raw)
}

// Format a 16 byte little endian GUID.
func FormatGUID(data []byte) string {
	if len(data) < 16 {
		return ""
	}
	return fmt.Sprintf("{%08x-%04x-%04x-%x-%x}",
		binary.LittleEndian.Uint32(data[0:4]),
		binary.LittleEndian.Uint16(data[4:6]),
		binary.LittleEndian.Uint16(data[6:8]),
		data[8:10], data[10:16])
}

// Little endian accessors which return 0 when out of range instead of
// panicing. On disk structures are frequently truncated.
func getUint8(data []byte, offset int) uint8 {
	if offset < 0 || offset >= len(data) {
		return 0
	}
	return data[offset]
}

func getUint16(data []byte, offset int) uint16 {
	if offset < 0 || offset+2 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint16(data[offset:])
}

func getUint32(data []byte, offset int) uint32 {
	if offset < 0 || offset+4 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint32(data[offset:])
}

func getUint64(data []byte, offset int) uint64 {
	if offset < 0 || offset+8 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint64(data[offset:])
}

func getBytes(data []byte, offset, length int) []byte {
	if offset < 0 || length < 0 || offset+length > len(data) {
		return nil
	}
	return data[offset : offset+length]
}

func CapUint64(v uint64, max uint64) uint64 {
	if v > max {
		return max
	}
	return v
}

func CapUint32(v uint32, max uint32) uint32 {
	if v > max {
		return max
	}
	return v
}

func CapInt64(v int64, max int64) int64 {
	if v > max {
		return max
	}
	return v
}

func CopySlice(in []string) []string {
	result := make([]string, len(in))
	copy(result, in)
	return result
}

func ReverseStringSlice(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Render a set of flags as names joined by ",".
func flagNames(value uint64, names map[uint64]string) []string {
	result := []string{}
	for bit := uint64(1); bit != 0; bit <<= 1 {
		if value&bit == 0 {
			continue
		}
		name, pres := names[bit]
		if !pres {
			name = fmt.Sprintf("%#x", bit)
		}
		result = append(result, name)
	}
	return result
}

func joinFlags(value uint64, names map[uint64]string) string {
	return strings.Join(flagNames(value, names), ",")
}
