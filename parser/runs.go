package parser

import (
	"fmt"
	"sort"
)

const (
	EXTENT_FLAG_IS_SPARSE     = 1 << 0
	EXTENT_FLAG_IS_COMPRESSED = 1 << 1
)

// A run as encoded in the run list: a cluster count and an LCN
// relative to the previous run.
type Run struct {
	RelativeUrnOffset int64
	Length            int64
	IsSparse          bool
}

// A run with an absolute position in both the file (VCN) and on the
// volume (LCN).
type DataRun struct {
	VCN      int64
	Clusters int64
	LCN      int64
	IsSparse bool
}

func (self DataRun) String() string {
	if self.IsSparse {
		return fmt.Sprintf("VCN %d-%d: sparse", self.VCN, self.VCN+self.Clusters-1)
	}
	return fmt.Sprintf("VCN %d-%d: LCN %d-%d", self.VCN, self.VCN+self.Clusters-1,
		self.LCN, self.LCN+self.Clusters-1)
}

// A byte range on the volume backing part of a stream.
type Extent struct {
	Offset int64
	Size   int64
	Flags  uint32
}

func (self Extent) IsSparse() bool {
	return self.Flags&EXTENT_FLAG_IS_SPARSE != 0
}

func (self Extent) IsCompressed() bool {
	return self.Flags&EXTENT_FLAG_IS_COMPRESSED != 0
}

// Decode the run list byte stream. Each run starts with a header
// byte: the low nibble is the size of the cluster count and the high
// nibble the size of the signed LCN delta. A zero delta size marks a
// sparse run and a zero header byte ends the list.
func DecodeRunList(buffer []byte) ([]Run, error) {
	result := []Run{}

	for offset := 0; offset < len(buffer); {
		header := buffer[offset]
		if header == 0 {
			return result, nil
		}
		offset++

		length_size := int(header & 0xF)
		run_offset_size := int(header >> 4)

		if length_size == 0 || length_size > 8 || run_offset_size > 8 {
			return nil, malformedf("invalid run header %#x at %#x", header, offset-1)
		}

		if offset+length_size+run_offset_size > len(buffer) {
			return nil, malformedf("run list truncated at %#x", offset-1)
		}

		var run_length uint64
		for i := 0; i < length_size; i++ {
			run_length |= uint64(buffer[offset+i]) << (8 * uint(i))
		}
		offset += length_size

		if run_length == 0 || run_length > 1<<48 {
			return nil, malformedf("invalid run length %#x", run_length)
		}

		var relative_offset int64
		if run_offset_size > 0 {
			var value uint64
			for i := 0; i < run_offset_size; i++ {
				value |= uint64(buffer[offset+i]) << (8 * uint(i))
			}

			// Sign extend from the top byte.
			shift := uint(64 - 8*run_offset_size)
			relative_offset = int64(value<<shift) >> shift
			offset += run_offset_size
		}

		result = append(result, Run{
			RelativeUrnOffset: relative_offset,
			Length:            int64(run_length),
			IsSparse:          run_offset_size == 0,
		})
	}

	// Ran off the end of the attribute without a terminator. This
	// is common when the run list exactly fills the attribute.
	return result, nil
}

// Convert the relative run list into absolute runs starting at
// first_vcn.
func MakeExtents(first_vcn int64, runs []Run) ([]DataRun, error) {
	result := make([]DataRun, 0, len(runs))
	vcn := first_vcn
	lcn := int64(0)

	for _, run := range runs {
		if run.IsSparse {
			result = append(result, DataRun{
				VCN:      vcn,
				Clusters: run.Length,
				IsSparse: true,
			})
			vcn += run.Length
			continue
		}

		lcn += run.RelativeUrnOffset
		if lcn < 0 {
			return nil, malformedf("run at VCN %#x has negative LCN %d", vcn, lcn)
		}

		result = append(result, DataRun{
			VCN:      vcn,
			Clusters: run.Length,
			LCN:      lcn,
		})
		vcn += run.Length
	}

	return result, nil
}

// Find the run covering the vcn. The runs are sorted and gapless.
func findRun(runs []DataRun, vcn int64) (int, bool) {
	idx := sort.Search(len(runs), func(i int) bool {
		return runs[i].VCN+runs[i].Clusters > vcn
	})
	if idx >= len(runs) || runs[idx].VCN > vcn {
		return 0, false
	}
	return idx, true
}

// Convert data runs into volume byte extents.
func runsToExtents(runs []DataRun, cluster_size int64, compressed bool) []Extent {
	result := make([]Extent, 0, len(runs))
	for _, run := range runs {
		extent := Extent{
			Offset: run.LCN * cluster_size,
			Size:   run.Clusters * cluster_size,
		}
		if run.IsSparse {
			extent.Offset = 0
			extent.Flags |= EXTENT_FLAG_IS_SPARSE
		}
		if compressed {
			extent.Flags |= EXTENT_FLAG_IS_COMPRESSED
		}
		result = append(result, extent)
	}
	return result
}

func DebugRuns(runs []DataRun) []string {
	result := make([]string, 0, len(runs))
	for idx, run := range runs {
		result = append(result, fmt.Sprintf("%d %v", idx, run))
	}
	return result
}
