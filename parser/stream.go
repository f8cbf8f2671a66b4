package parser

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ClusterStream reads a non-resident attribute's data through its
// runs. Sparse runs and the region past the initialized size read as
// zeros, reads are clipped at the data size.
type ClusterStream struct {
	mu sync.Mutex

	reader       io.ReaderAt
	cluster_size int64
	runs         []DataRun

	size             int64
	initialized_size int64

	// In clusters, 0 when the stream is not compressed.
	compression_unit int64

	// The last decompressed compression unit.
	cached_unit int64
	cached_data []byte
}

func NewClusterStream(reader io.ReaderAt, cluster_size int64, runs []DataRun,
	size, initialized_size int64) *ClusterStream {
	if initialized_size > size {
		initialized_size = size
	}

	return &ClusterStream{
		reader:           reader,
		cluster_size:     cluster_size,
		runs:             runs,
		size:             size,
		initialized_size: initialized_size,
		cached_unit:      -1,
	}
}

// Compression units are given in clusters as a power of two.
func (self *ClusterStream) SetCompressionUnit(shift uint16) {
	self.compression_unit = 1 << uint(shift)
}

func (self *ClusterStream) Size() int64 {
	return self.size
}

func (self *ClusterStream) Runs() []DataRun {
	return self.runs
}

func (self *ClusterStream) Extents() []Extent {
	return runsToExtents(self.runs, self.cluster_size, self.compression_unit > 0)
}

// Reads are clipped at the data size: a read starting at or past the
// end returns io.EOF, a read running past the end returns the
// available bytes and io.EOF. A storage fault fails the whole read.
func (self *ClusterStream) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.Wrapf(ErrOutOfRange, "negative offset %d", offset)
	}

	if offset >= self.size {
		return 0, io.EOF
	}

	to_read := int64(len(buf))
	if offset+to_read > self.size {
		to_read = self.size - offset
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	var err error
	if self.compression_unit > 0 {
		err = self.readCompressed(buf[:to_read], offset)
	} else {
		err = self.readUncompressed(buf[:to_read], offset)
	}
	if err != nil {
		return 0, err
	}

	if to_read < int64(len(buf)) {
		return int(to_read), io.EOF
	}
	return int(to_read), nil
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

func (self *ClusterStream) readUncompressed(buf []byte, offset int64) error {
	for len(buf) > 0 {
		// Uninitialized data reads as zeros.
		if offset >= self.initialized_size {
			zero(buf)
			return nil
		}

		vcn := offset / self.cluster_size
		idx, ok := findRun(self.runs, vcn)
		if !ok {
			return ioErrorf(nil, "no run maps offset %#x (VCN %#x)", offset, vcn)
		}
		run := self.runs[idx]

		run_start := run.VCN * self.cluster_size
		run_end := run_start + run.Clusters*self.cluster_size
		available := run_end - offset
		if offset+available > self.initialized_size {
			available = self.initialized_size - offset
		}
		if available > int64(len(buf)) {
			available = int64(len(buf))
		}

		chunk := buf[:available]
		if run.IsSparse {
			zero(chunk)
		} else {
			disk_offset := run.LCN*self.cluster_size + (offset - run_start)
			_, err := self.reader.ReadAt(chunk, disk_offset)
			if err != nil {
				return ioErrorf(err, "reading %d bytes of run %v", len(chunk), run)
			}
		}

		buf = buf[available:]
		offset += available
	}
	return nil
}

func (self *ClusterStream) readCompressed(buf []byte, offset int64) error {
	unit_size := self.compression_unit * self.cluster_size

	for len(buf) > 0 {
		if offset >= self.initialized_size {
			zero(buf)
			return nil
		}

		unit := offset / unit_size
		data, err := self.getUnit(unit)
		if err != nil {
			return err
		}

		unit_offset := offset - unit*unit_size
		available := unit_size - unit_offset
		if offset+available > self.initialized_size {
			available = self.initialized_size - offset
		}
		if available > int64(len(buf)) {
			available = int64(len(buf))
		}

		copy(buf[:available], data[unit_offset:unit_offset+available])
		buf = buf[available:]
		offset += available
	}
	return nil
}

// Produce the uncompressed data of a single compression unit. A unit
// fully backed by clusters is stored raw, a fully sparse unit is
// zeros and anything in between holds LZNT1 compressed data followed
// by sparse padding.
func (self *ClusterStream) getUnit(unit int64) ([]byte, error) {
	if unit == self.cached_unit {
		return self.cached_data, nil
	}

	unit_size := self.compression_unit * self.cluster_size
	first_vcn := unit * self.compression_unit
	last_vcn := first_vcn + self.compression_unit

	type piece struct {
		lcn      int64
		clusters int64
	}
	pieces := []piece{}
	allocated := int64(0)

	for vcn := first_vcn; vcn < last_vcn; {
		idx, ok := findRun(self.runs, vcn)
		if !ok {
			// Past the last run - the rest of the unit is
			// unallocated.
			break
		}
		run := self.runs[idx]

		clusters := run.VCN + run.Clusters - vcn
		if vcn+clusters > last_vcn {
			clusters = last_vcn - vcn
		}

		if !run.IsSparse {
			pieces = append(pieces, piece{
				lcn:      run.LCN + (vcn - run.VCN),
				clusters: clusters,
			})
			allocated += clusters
		}
		vcn += clusters
	}

	err := checkAllocation(allocated*self.cluster_size, MAX_CLUSTER_SIZE*16,
		"compression unit")
	if err != nil {
		return nil, err
	}

	raw := make([]byte, allocated*self.cluster_size)
	raw_offset := int64(0)
	for _, p := range pieces {
		length := p.clusters * self.cluster_size
		_, err := self.reader.ReadAt(raw[raw_offset:raw_offset+length],
			p.lcn*self.cluster_size)
		if err != nil {
			return nil, ioErrorf(err, "reading compression unit %d", unit)
		}
		raw_offset += length
	}

	var data []byte
	switch allocated {
	case 0:
		data = make([]byte, unit_size)

	case self.compression_unit:
		data = raw

	default:
		data, err = LZNT1Decompress(raw, int(unit_size))
		if err != nil {
			return nil, errors.WithMessagef(err, "compression unit %d", unit)
		}
		for int64(len(data)) < unit_size {
			data = append(data, 0)
		}
	}

	self.cached_unit = unit
	self.cached_data = data
	return data, nil
}
