package parser

import (
	"context"
	"io"
)

const (
	carve_chunk_size = 1024 * 1024

	earliest_usn_time = 1000000000 // Sun Sep  9 11:46:40 2001
	latest_usn_time   = 2000000000 // Wed May 18 13:33:20 2033
)

// A quick plausibility test for a USN_RECORD_V2 at the offset.
func looksLikeUSNRecord(data []byte, offset int) bool {
	if offset+USN_RECORD_V2_SIZE > len(data) {
		return false
	}

	length := int(getUint32(data, offset))
	if length < USN_RECORD_V2_SIZE || length > MAX_USN_RECORD_SIZE ||
		length%8 != 0 || offset+length > len(data) {
		return false
	}

	if getUint16(data, offset+4) != 2 || getUint16(data, offset+6) != 0 {
		return false
	}

	name_length := int(getUint16(data, offset+56))
	name_offset := int(getUint16(data, offset+58))
	if name_length == 0 || name_length%2 != 0 ||
		name_offset != USN_RECORD_V2_SIZE ||
		name_offset+name_length > length {
		return false
	}

	ts := NewWinFileTime(getUint64(data, offset+32)).Unix()
	return ts > earliest_usn_time && ts < latest_usn_time
}

// Scan the raw disk for USN records. Journal blocks are reused as
// the journal wraps so old records survive in unallocated space. The
// records' Offset is the disk offset they were found at.
func CarveUSN(ctx context.Context, volume *Volume,
	reader io.ReaderAt, size int64) chan *USN_RECORD {
	output := make(chan *USN_RECORD)

	go func() {
		defer close(output)

		buffer := make([]byte, carve_chunk_size+MAX_USN_RECORD_SIZE)
		for chunk := int64(0); chunk < size; chunk += carve_chunk_size {
			if ctx.Err() != nil {
				return
			}

			n, err := reader.ReadAt(buffer, chunk)
			if n == 0 && err != nil {
				DebugPrint("CarveUSN: %v\n", err)
				return
			}
			data := buffer[:n]

			// Records overlapping the end of the chunk are found
			// in the next one.
			limit := carve_chunk_size
			if limit > n {
				limit = n
			}

			for offset := 0; offset < limit; offset += 8 {
				if !looksLikeUSNRecord(data, offset) {
					continue
				}

				length := int(getUint32(data, offset))
				record_data := make([]byte, length)
				copy(record_data, data[offset:])

				record, err := ParseUSNRecord(record_data)
				if err != nil {
					continue
				}
				record.Offset = chunk + int64(offset)
				record.volume = volume

				select {
				case <-ctx.Done():
					return
				case output <- record:
				}

				offset += length - 8
			}
		}
	}()

	return output
}
