package parser

import (
	"bytes"
	"io"
	"sort"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
)

// Attribute is the logical view of an attribute. Large non-resident
// attributes are split into pieces stored in several MFT entries,
// each covering a VCN range. The pieces are kept in VCN order.
type Attribute struct {
	volume *Volume
	pieces []*NTFS_ATTRIBUTE
}

func (self *Attribute) first() *NTFS_ATTRIBUTE {
	return self.pieces[0]
}

func (self *Attribute) Pieces() []*NTFS_ATTRIBUTE {
	return self.pieces
}

func (self *Attribute) Type() uint32 {
	return self.first().Type()
}

func (self *Attribute) TypeName() string {
	return self.first().TypeName()
}

func (self *Attribute) Name() string {
	return self.first().Name()
}

func (self *Attribute) Identifier() uint16 {
	return self.first().Attribute_id()
}

func (self *Attribute) Flags() uint16 {
	return self.first().Flags()
}

func (self *Attribute) IsResident() bool {
	return self.first().IsResident()
}

func (self *Attribute) IsCompressed() bool {
	return !self.IsResident() && self.first().IsCompressed()
}

func (self *Attribute) IsSparse() bool {
	return self.first().IsSparse()
}

// The MFT entry holding the first piece.
func (self *Attribute) Record() int64 {
	return self.first().Record
}

func (self *Attribute) DataSize() int64 {
	return self.first().DataSize()
}

func (self *Attribute) ValidDataSize() int64 {
	first := self.first()
	if first.IsResident() {
		return int64(first.Content_size())
	}
	return int64(first.Initialized_size())
}

func (self *Attribute) AllocatedSize() int64 {
	first := self.first()
	if first.IsResident() {
		return int64(first.Content_size())
	}
	return int64(first.Allocated_size())
}

// The absolute runs of all pieces. The pieces must continue each
// other without gaps.
func (self *Attribute) DataRuns() ([]DataRun, error) {
	if self.IsResident() {
		return nil, nil
	}

	result := []DataRun{}
	next_vcn := int64(0)
	for _, piece := range self.pieces {
		if int64(piece.Runlist_vcn_start()) != next_vcn {
			return nil, malformedf("MFT entry %d attribute %s: piece starts at VCN %#x, expected %#x",
				piece.Record, piece.TypeName(), piece.Runlist_vcn_start(), next_vcn)
		}

		runs, err := piece.DataRuns()
		if err != nil {
			return nil, err
		}
		result = append(result, runs...)
		next_vcn = int64(piece.Runlist_vcn_end()) + 1
	}

	return result, nil
}

func (self *Attribute) Extents() ([]Extent, error) {
	runs, err := self.DataRuns()
	if err != nil {
		return nil, err
	}
	return runsToExtents(runs, self.volume.cluster_size, self.IsCompressed()), nil
}

// A reader over the attribute's data. Reads past DataSize() are
// clipped.
func (self *Attribute) Stream() (io.ReaderAt, error) {
	if self.IsResident() {
		return bytes.NewReader(self.first().ResidentData()), nil
	}

	if self.volume.disk == nil {
		return nil, ioErrorf(nil, "attribute %s of MFT entry %d is non-resident "+
			"but no cluster data is available", self.TypeName(), self.Record())
	}

	runs, err := self.DataRuns()
	if err != nil {
		return nil, err
	}

	stream := NewClusterStream(self.volume.disk, self.volume.cluster_size,
		runs, self.DataSize(), self.ValidDataSize())
	if self.IsCompressed() {
		unit := self.first().Compression_unit_size()
		if unit == 0 {
			unit = DEFAULT_COMPRESSION_UNIT
		}
		stream.SetCompressionUnit(unit)
	}
	return stream, nil
}

// Read the entire attribute data into memory.
func (self *Attribute) ReadAll() ([]byte, error) {
	if self.IsResident() {
		return self.first().ResidentData(), nil
	}

	size := self.DataSize()
	err := checkAllocation(size, self.volume.options.MaxAllocationSize,
		self.TypeName())
	if err != nil {
		return nil, err
	}

	stream, err := self.Stream()
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, size)
	n, err := stream.ReadAt(buffer, 0)
	if n < len(buffer) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, ioErrorf(err, "reading attribute %s of MFT entry %d",
			self.TypeName(), self.Record())
	}
	return buffer, nil
}

// Decode the attribute payload. Non-resident $DATA and
// $INDEX_ALLOCATION attributes are not read - open them as a stream
// instead.
func (self *Attribute) Decode() (AttributeValue, error) {
	attr_type := self.Type()

	switch attr_type {
	case ATTR_TYPE_DATA, ATTR_TYPE_INDEX_ALLOCATION:
		if !self.IsResident() {
			return &RawAttributeValue{Type: attr_type}, nil
		}
	}

	data, err := self.ReadAll()
	if err != nil {
		return nil, err
	}

	value, err := DecodeAttributeValue(attr_type, self.Name(), data)
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d", self.Record())
	}
	return value, nil
}

func (self *Attribute) Dict() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Type", self.TypeName()).
		Set("TypeId", self.Type()).
		Set("Id", self.Identifier()).
		Set("Name", self.Name()).
		Set("Resident", self.IsResident()).
		Set("Size", self.DataSize()).
		Set("Pieces", len(self.pieces))
}

// Group attribute pieces into logical attributes. Non-resident pieces
// starting past VCN 0 are attached to the attribute with the same
// type and name they continue. Attributes keep the order of their
// first piece: the base record first, then the extension records in
// attribute list order.
func groupAttributes(volume *Volume, pieces []*NTFS_ATTRIBUTE) []*Attribute {
	result := []*Attribute{}
	continuations := []*NTFS_ATTRIBUTE{}

	for _, piece := range pieces {
		if !piece.IsResident() && piece.Runlist_vcn_start() > 0 {
			continuations = append(continuations, piece)
			continue
		}
		result = append(result, &Attribute{
			volume: volume,
			pieces: []*NTFS_ATTRIBUTE{piece},
		})
	}

	sort.SliceStable(continuations, func(i, j int) bool {
		return continuations[i].Runlist_vcn_start() < continuations[j].Runlist_vcn_start()
	})

	for _, piece := range continuations {
		found := false
		for _, attr := range result {
			last := attr.pieces[len(attr.pieces)-1]
			if !last.IsResident() && last.Type() == piece.Type() &&
				last.Name() == piece.Name() &&
				last.Runlist_vcn_end()+1 == piece.Runlist_vcn_start() {
				attr.pieces = append(attr.pieces, piece)
				found = true
				break
			}
		}

		// An orphaned piece is still reported.
		if !found {
			result = append(result, &Attribute{
				volume: volume,
				pieces: []*NTFS_ATTRIBUTE{piece},
			})
		}
	}

	return result
}
