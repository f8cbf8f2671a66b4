package parser

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Invalidate the disk cache
type Flusher interface {
	Flush()
}

// Readers which know their own size.
type Sizer interface {
	Size() int64
}

// BlockReader is the volume's view of its backing store. Unlike a
// plain io.ReaderAt it never accepts a partial read: a read must be
// completely inside the store and fully satisfied or it fails with
// ErrIO.
type BlockReader struct {
	reader io.ReaderAt
	size   int64
}

func NewBlockReader(reader io.ReaderAt, size int64) *BlockReader {
	return &BlockReader{reader: reader, size: size}
}

func (self *BlockReader) Size() int64 {
	return self.size
}

func (self *BlockReader) ReadAt(buf []byte, offset int64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if offset < 0 || offset+int64(len(buf)) > self.size {
		return 0, ioErrorf(nil, "read of %d bytes at %#x outside store of size %#x",
			len(buf), offset, self.size)
	}

	n, err := self.reader.ReadAt(buf, offset)
	if n == len(buf) {
		// Some readers return EOF together with the final bytes.
		return n, nil
	}

	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return n, ioErrorf(err, "short read of %d/%d bytes at %#x", n, len(buf), offset)
}

// Keep pages in a free list to avoid allocations.
type FreeList struct {
	pagesize int64
	freelist sync.Pool
}

func NewFreeList(pagesize int64) *FreeList {
	return &FreeList{
		pagesize: pagesize,
		freelist: sync.Pool{
			New: func() interface{} {
				return make([]byte, pagesize)
			},
		},
	}
}

func (self *FreeList) Get() []byte {
	return self.freelist.Get().([]byte)
}

func (self *FreeList) Put(in []byte) {
	if int64(len(in)) == self.pagesize {
		self.freelist.Put(in)
	}
}

// This reader is needed for reading raw windows devices, such as
// \\.\c: On windows, such devices may only be read using sector
// alignment in whole sector numbers. This reader implements page
// aligned reading and adds pages to an LRU cache to make accessing
// various field members faster.
//
// Reads which start inside the file but run past its end are padded
// with zeros, reads entirely outside the file return io.EOF.
type PagedReader struct {
	mu sync.Mutex

	reader   io.ReaderAt
	pagesize int64
	lru      *LRU
	freelist *FreeList
}

func NewPagedReader(reader io.ReaderAt, pagesize int64, cache_size int) (*PagedReader, error) {
	DebugPrint("Creating cache of size %v\n", cache_size)

	self := &PagedReader{
		reader:   reader,
		pagesize: pagesize,
		freelist: NewFreeList(pagesize),
	}

	cache, err := NewLRU(cache_size, func(key int, value interface{}) {
		// Put the page back on the free list
		self.freelist.Put(value.(*pagedEntry).data)
	}, "PagedReader")
	if err != nil {
		return nil, err
	}
	self.lru = cache

	return self, nil
}

// Fetch the page at the page aligned offset. Returns the number of
// valid bytes in the page.
func (self *PagedReader) getPage(page int64) ([]byte, int, error) {
	cached, pres := self.lru.Get(int(page))
	if pres {
		entry := cached.(*pagedEntry)
		return entry.data, entry.valid, nil
	}

	page_buf := self.freelist.Get()
	n, err := self.reader.ReadAt(page_buf, page)
	if err != nil && !errors.Is(err, io.EOF) {
		self.freelist.Put(page_buf)
		return nil, 0, err
	}

	for i := n; i < len(page_buf); i++ {
		page_buf[i] = 0
	}

	if n > 0 {
		self.lru.Add(int(page), &pagedEntry{data: page_buf, valid: n})
	}
	return page_buf, n, nil
}

type pagedEntry struct {
	data  []byte
	valid int
}

func (self *PagedReader) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, io.EOF
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	buf_idx := 0
	for buf_idx < len(buf) {
		page := offset - offset%self.pagesize
		page_offset := int(offset - page)

		// How much is left in this page to read?
		to_read := int(self.pagesize) - page_offset
		if to_read > len(buf)-buf_idx {
			to_read = len(buf) - buf_idx
		}

		page_buf, valid, err := self.getPage(page)
		if err != nil {
			return buf_idx, err
		}

		// This page is past the end of the file.
		if valid == 0 {
			if buf_idx == 0 {
				return 0, io.EOF
			}

			// Pad the rest of the buffer.
			for i := buf_idx; i < len(buf); i++ {
				buf[i] = 0
			}
			return len(buf), nil
		}

		copy(buf[buf_idx:buf_idx+to_read], page_buf[page_offset:page_offset+to_read])
		offset += int64(to_read)
		buf_idx += to_read
	}

	return buf_idx, nil
}

// The size of the underlying reader, 0 when it does not know.
func (self *PagedReader) Size() int64 {
	sizer, ok := self.reader.(Sizer)
	if !ok {
		return 0
	}
	return sizer.Size()
}

func (self *PagedReader) Flush() {
	self.lru.Purge()

	flusher, ok := self.reader.(Flusher)
	if ok {
		flusher.Flush()
	}
}

func (self *PagedReader) Stats() string {
	return self.lru.DebugString()
}
