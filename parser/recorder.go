package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Recorder captures every read made through it into a directory, one
// file per read offset. When the file for an offset already exists the
// read is served from it instead. This allows a handful of sectors
// from a real volume to be replayed in tests.
type Recorder struct {
	path string

	// Delegate reader
	reader io.ReaderAt
}

func NewRecorder(path string, reader io.ReaderAt) *Recorder {
	return &Recorder{path: path, reader: reader}
}

func (self *Recorder) filename(offset int64, length int) string {
	return filepath.Join(self.path, fmt.Sprintf("%#08x-%d.bin", offset, length))
}

func (self *Recorder) ReadAt(buf []byte, offset int64) (int, error) {
	full_path := self.filename(offset, len(buf))

	fd, err := os.Open(full_path)
	if err == nil {
		defer fd.Close()

		n, err := fd.ReadAt(buf, 0)
		if err == io.EOF && n > 0 {
			err = nil
		}
		return n, err
	}

	// Not recorded yet: pass the read to the delegate and keep it
	// for next time.
	n, err := self.reader.ReadAt(buf, offset)
	if err == nil || err == io.EOF {
		out_fd, err := os.OpenFile(full_path,
			os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0660)
		if err == nil {
			_, _ = out_fd.Write(buf[:n])
			out_fd.Close()
		}
	}
	return n, err
}

func (self *Recorder) Size() int64 {
	sizer, ok := self.reader.(Sizer)
	if ok {
		return sizer.Size()
	}
	return 0
}
