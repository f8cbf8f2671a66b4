package parser

import (
	"io"

	"github.com/pkg/errors"
)

// DataStream reads a $DATA attribute. It implements io.Reader,
// io.ReaderAt and io.Seeker. Streams hold a reference on their volume
// until released.
type DataStream struct {
	volume *Volume
	attr   *Attribute
	stream io.ReaderAt

	offset   int64
	released bool
}

func newDataStream(volume *Volume, attr *Attribute) (*DataStream, error) {
	stream, err := attr.Stream()
	if err != nil {
		return nil, err
	}

	return &DataStream{
		volume: volume,
		attr:   attr,
		stream: stream,
	}, nil
}

func (self *DataStream) Release() {
	if self.released {
		return
	}
	self.released = true
	self.volume.release()
}

// Empty for the default stream.
func (self *DataStream) Name() string {
	return self.attr.Name()
}

func (self *DataStream) Attribute() *Attribute {
	return self.attr
}

func (self *DataStream) Size() int64 {
	return self.attr.DataSize()
}

func (self *DataStream) ValidDataSize() int64 {
	return self.attr.ValidDataSize()
}

func (self *DataStream) ReadAt(buf []byte, offset int64) (int, error) {
	err := self.volume.checkOpen()
	if err != nil {
		return 0, err
	}

	STATS.Inc_DataStreamRead()
	return self.stream.ReadAt(buf, offset)
}

// Read from the current offset and advance it. Returns io.EOF at the
// end of the stream.
func (self *DataStream) Read(buf []byte) (int, error) {
	n, err := self.ReadAt(buf, self.offset)
	self.offset += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Read up to size bytes at the offset. A read at or past the end of
// the stream returns no data and no error.
func (self *DataStream) ReadBufferAtOffset(size int, offset int64) ([]byte, error) {
	if offset < 0 || size < 0 {
		return nil, errors.Wrapf(ErrOutOfRange,
			"invalid read of %d bytes at offset %d", size, offset)
	}

	remaining := self.Size() - offset
	if remaining <= 0 || size == 0 {
		return []byte{}, nil
	}

	to_read := int64(size)
	if to_read > remaining {
		to_read = remaining
	}

	err := checkAllocation(to_read, self.volume.options.MaxAllocationSize, "read buffer")
	if err != nil {
		return nil, err
	}

	buf := make([]byte, to_read)
	n, err := self.ReadAt(buf, offset)
	if errors.Is(err, ErrVolumeClosed) {
		return nil, err
	}

	if int64(n) < to_read {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, ioErrorf(err, "reading %d bytes at %d from stream %q",
			to_read, offset, self.Name())
	}
	return buf, nil
}

// Read up to size bytes from the current offset and advance it.
func (self *DataStream) ReadBuffer(size int) ([]byte, error) {
	buf, err := self.ReadBufferAtOffset(size, self.offset)
	if err != nil {
		return nil, err
	}
	self.offset += int64(len(buf))
	return buf, nil
}

// Seeking past the end is allowed, reads there return nothing.
func (self *DataStream) Seek(offset int64, whence int) (int64, error) {
	var new_offset int64

	switch whence {
	case io.SeekStart:
		new_offset = offset
	case io.SeekCurrent:
		new_offset = self.offset + offset
	case io.SeekEnd:
		new_offset = self.Size() + offset
	default:
		return self.offset, errors.Wrapf(ErrOutOfRange, "invalid whence %d", whence)
	}

	if new_offset < 0 {
		return self.offset, errors.Wrapf(ErrOutOfRange,
			"seek to negative offset %d", new_offset)
	}
	self.offset = new_offset
	return new_offset, nil
}

func (self *DataStream) Tell() int64 {
	return self.offset
}

func (self *DataStream) Extents() ([]Extent, error) {
	return self.attr.Extents()
}

func (self *DataStream) NumberOfExtents() (int, error) {
	extents, err := self.Extents()
	return len(extents), err
}

func (self *DataStream) ExtentByIndex(idx int) (Extent, error) {
	extents, err := self.Extents()
	if err != nil {
		return Extent{}, err
	}

	err = checkIndex(idx, len(extents), "extent")
	if err != nil {
		return Extent{}, err
	}
	return extents[idx], nil
}
