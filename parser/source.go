package parser

import (
	"bytes"
	"io"
	"os"
)

// A backing store for a volume. Sources are random access, know
// their size and must be closed.
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

type bytesSource struct {
	*bytes.Reader
}

func (self bytesSource) Close() error {
	return nil
}

// Wrap a memory buffer as a Source.
func NewBytesSource(data []byte) Source {
	return bytesSource{bytes.NewReader(data)}
}

type readerSource struct {
	io.ReaderAt
	size int64
}

func (self readerSource) Size() int64 {
	return self.size
}

func (self readerSource) Close() error {
	closer, ok := self.ReaderAt.(io.Closer)
	if ok {
		return closer.Close()
	}
	return nil
}

// Wrap an already open reader as a Source. If size is 0 we try to
// work it out from the reader.
func NewReaderSource(reader io.ReaderAt, size int64) (Source, error) {
	if size == 0 {
		switch t := reader.(type) {
		case Sizer:
			size = t.Size()
		case *os.File:
			stat, err := t.Stat()
			if err != nil {
				return nil, ioErrorf(err, "stat")
			}
			size = stat.Size()
		}
	}

	return readerSource{ReaderAt: reader, size: size}, nil
}

type fileSource struct {
	fd   *os.File
	size int64
}

func (self *fileSource) ReadAt(buf []byte, offset int64) (int, error) {
	return self.fd.ReadAt(buf, offset)
}

func (self *fileSource) Size() int64 {
	return self.size
}

func (self *fileSource) Close() error {
	return self.fd.Close()
}

func openFileSource(path string) (Source, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, ioErrorf(err, "open %v", path)
	}

	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, ioErrorf(err, "stat %v", path)
	}

	return &fileSource{fd: fd, size: stat.Size()}, nil
}
