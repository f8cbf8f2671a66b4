//go:build linux || darwin

package parser

import (
	"bytes"
	"os"

	"golang.org/x/sys/unix"
)

type mmapSource struct {
	*bytes.Reader
	data []byte
}

func (self *mmapSource) Close() error {
	if self.data == nil {
		return nil
	}
	data := self.data
	self.data = nil
	return unix.Munmap(data)
}

// OpenSource maps a regular file read only. Block devices and empty
// files can not be mapped so they are read with pread instead.
func OpenSource(path string) (Source, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, ioErrorf(err, "open %v", path)
	}
	defer fd.Close()

	stat, err := fd.Stat()
	if err != nil {
		return nil, ioErrorf(err, "stat %v", path)
	}

	size := stat.Size()
	if !stat.Mode().IsRegular() || size == 0 || size > int64(^uint(0)>>1) {
		return openFileSource(path)
	}

	data, err := unix.Mmap(int(fd.Fd()), 0, int(size),
		unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		DebugPrint("mmap of %v failed: %v\n", path, err)
		return openFileSource(path)
	}

	// MFT entries and clusters are visited out of order.
	_ = unix.Madvise(data, unix.MADV_RANDOM)

	return &mmapSource{Reader: bytes.NewReader(data), data: data}, nil
}
