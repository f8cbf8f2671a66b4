package parser

import "io"

// A partition inside a larger image.
type OffsetReader struct {
	Offset int64
	Reader io.ReaderAt
}

func (self *OffsetReader) ReadAt(buf []byte, offset int64) (int, error) {
	return self.Reader.ReadAt(buf, offset+self.Offset)
}

func (self *OffsetReader) Size() int64 {
	sizer, ok := self.Reader.(Sizer)
	if !ok {
		return 0
	}

	size := sizer.Size() - self.Offset
	if size < 0 {
		return 0
	}
	return size
}
