/*
Decompression support for the LZNT1 compression algorithm.

Reference:
http://msdn.microsoft.com/en-us/library/jj665697.aspx
(2.5 LZNT1 Algorithm Details)
*/

package parser

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	LZNT1_COMPRESSED_MASK = uint16(1 << 15)
	LZNT1_SIZE_MASK       = uint16(1<<12) - 1
	LZNT1_CHUNK_SIZE      = 0x1000
)

// The number of bits the offset is shifted by depends on how far into
// the chunk we are.
func get_displacement(offset uint16) byte {
	result := byte(0)
	for {
		if offset < 0x10 {
			return result
		}

		offset >>= 1
		result += 1
	}
}

// Decompress a buffer made of LZNT1 chunks. Decompression stops at a
// zero chunk header, the end of the input or when max_size bytes were
// produced (0 means unlimited).
func LZNT1Decompress(in []byte, max_size int) ([]byte, error) {
	STATS.Inc_LZNT1()
	LZNT1Printf("LZNT1Decompress in:\n%s\n", debugHexDump(in))

	// Index into the in buffer
	i := 0
	out := make([]byte, 0, max_size)

	for i+2 <= len(in) {
		if max_size > 0 && len(out) >= max_size {
			break
		}

		chunk_start := len(out)
		block_offset := i

		block_header := binary.LittleEndian.Uint16(in[i:])
		i += 2

		if block_header == 0 {
			break
		}

		size := int(block_header & LZNT1_SIZE_MASK)
		block_end := block_offset + size + 3
		LZNT1Printf("%d Block Size: %x ends at %x\n", len(out), size+3, block_end)
		if block_end > len(in) {
			return nil, errors.Wrapf(ErrMalformedAttribute,
				"LZNT1 chunk at %#x overruns buffer", block_offset)
		}

		if block_header&LZNT1_COMPRESSED_MASK == 0 {
			// Stored chunk.
			out = append(out, in[i:block_end]...)
			i = block_end
			continue
		}

		for i < block_end {
			tag := in[i]
			i++

			for mask_idx := 0; mask_idx < 8 && i < block_end; mask_idx++ {
				if tag&1 == 0 {
					out = append(out, in[i])
					i++

				} else {
					if i+2 > block_end {
						return nil, errors.Wrapf(ErrMalformedAttribute,
							"LZNT1 back reference at %#x truncated", i)
					}
					pointer := binary.LittleEndian.Uint16(in[i:])
					i += 2

					position := len(out) - chunk_start
					if position == 0 {
						return nil, errors.Wrapf(ErrMalformedAttribute,
							"LZNT1 back reference at start of chunk")
					}

					displacement := get_displacement(uint16(position - 1))
					symbol_offset := int(pointer>>(12-displacement)) + 1
					symbol_length := int(pointer&(0xFFF>>displacement)) + 3

					start_offset := len(out) - symbol_offset
					if start_offset < chunk_start {
						LZNT1Printf("pointer %v, displacement %v out\n%v\n",
							pointer, displacement, debugHexDump(out))
						return nil, errors.Wrapf(ErrMalformedAttribute,
							"LZNT1 back reference %d before chunk start", symbol_offset)
					}

					// The source may overlap the output so copy
					// byte by byte.
					for j := 0; j < symbol_length; j++ {
						out = append(out, out[start_offset+j])
					}
				}
				tag >>= 1
			}
		}

		// A chunk which decompresses short of the chunk size is
		// padded with zeros when another chunk follows.
		if i+2 <= len(in) && binary.LittleEndian.Uint16(in[i:]) != 0 {
			for len(out)-chunk_start < LZNT1_CHUNK_SIZE {
				out = append(out, 0)
			}
		}
	}

	if max_size > 0 && len(out) > max_size {
		out = out[:max_size]
	}

	LZNT1Printf("decompression out %v\n", len(out))
	return out, nil
}
