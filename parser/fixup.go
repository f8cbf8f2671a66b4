package parser

import (
	"github.com/pkg/errors"
)

// Apply the update sequence array to a multi-sector record in
// place. The array is a 2 byte update sequence number followed by one
// saved value per 512 byte stride. The last two bytes of every stride
// must hold the update sequence number and are replaced by the saved
// value.
//
// kind is the error the mismatch is reported as (ErrCorruptRecord for
// MFT entries, ErrCorruptIndex for INDX blocks).
func applyFixups(buffer []byte, fixup_offset, fixup_count int, kind error) error {
	STATS.Inc_FixUpRecord()

	// Some very old records do not carry fixups.
	if fixup_count == 0 {
		return nil
	}

	fixup_table := getBytes(buffer, fixup_offset, fixup_count*2)
	if fixup_table == nil {
		return errors.Wrapf(kind, "fixup table at %#x (count %d) outside record of size %#x",
			fixup_offset, fixup_count, len(buffer))
	}

	if (fixup_count-1)*FIXUP_STRIDE > len(buffer) {
		return errors.Wrapf(kind, "fixup count %d too large for record of size %#x",
			fixup_count, len(buffer))
	}

	magic_0 := fixup_table[0]
	magic_1 := fixup_table[1]

	// Copy the saved values out first: the table itself may
	// straddle a stride boundary.
	saved := make([]byte, len(fixup_table)-2)
	copy(saved, fixup_table[2:])

	for idx := 0; idx < fixup_count-1; idx++ {
		offset := (idx+1)*FIXUP_STRIDE - 2
		if buffer[offset] != magic_0 || buffer[offset+1] != magic_1 {
			return errors.Wrapf(kind, "fixup mismatch in sector %d: %02x%02x != %02x%02x",
				idx, buffer[offset+1], buffer[offset], magic_1, magic_0)
		}

		buffer[offset] = saved[2*idx]
		buffer[offset+1] = saved[2*idx+1]
	}

	return nil
}
