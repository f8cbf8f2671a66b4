package parser

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"
)

const (
	INDEX_ROOT_HEADER_SIZE  = 16
	INDEX_NODE_HEADER_SIZE  = 16
	INDEX_ENTRY_HEADER_SIZE = 16
	INDX_HEADER_SIZE        = 24

	// Index trees are shallow: anything deeper is a loop.
	MAX_INDEX_DEPTH = 32
)

// $INDEX_ROOT
type INDEX_ROOT struct {
	b []byte
}

func NewINDEX_ROOT(data []byte) (*INDEX_ROOT, error) {
	if len(data) < INDEX_ROOT_HEADER_SIZE+INDEX_NODE_HEADER_SIZE {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"$INDEX_ROOT too short (%d bytes)", len(data))
	}
	return &INDEX_ROOT{b: data}, nil
}

func (self *INDEX_ROOT) AttributeType() uint32 {
	return ATTR_TYPE_INDEX_ROOT
}

// The type of the indexed attribute ($FILE_NAME for directories, 0
// for view indexes).
func (self *INDEX_ROOT) Type() uint32 {
	return getUint32(self.b, 0)
}

func (self *INDEX_ROOT) Collation_rule() uint32 {
	return getUint32(self.b, 4)
}

func (self *INDEX_ROOT) Index_entry_size() uint32 {
	return getUint32(self.b, 8)
}

func (self *INDEX_ROOT) Clusters_per_index() uint8 {
	return getUint8(self.b, 12)
}

func (self *INDEX_ROOT) Node() (*IndexNode, error) {
	return newIndexNode(self.b, INDEX_ROOT_HEADER_SIZE, -1)
}

// An index value. For $I30 the key is a $FILE_NAME and the entry
// points at the MFT entry. View indexes ($SII, $SDH, $O) store a data
// payload instead of the file reference.
type INDEX_ENTRY struct {
	b []byte
}

func (self *INDEX_ENTRY) FileReference() uint64 {
	return getUint64(self.b, 0)
}

func (self *INDEX_ENTRY) MftReference() uint64 {
	return FileReferenceIndex(self.FileReference())
}

func (self *INDEX_ENTRY) DataOffset() uint16 {
	return getUint16(self.b, 0)
}

func (self *INDEX_ENTRY) DataSize() uint16 {
	return getUint16(self.b, 2)
}

func (self *INDEX_ENTRY) SizeOfIndexEntry() uint16 {
	return getUint16(self.b, 8)
}

func (self *INDEX_ENTRY) KeySize() uint16 {
	return getUint16(self.b, 10)
}

func (self *INDEX_ENTRY) Flags() uint16 {
	return getUint16(self.b, 12)
}

func (self *INDEX_ENTRY) HasSubNode() bool {
	return self.Flags()&INDEX_ENTRY_FLAG_HAS_SUB_NODE != 0
}

func (self *INDEX_ENTRY) IsLast() bool {
	return self.Flags()&INDEX_ENTRY_FLAG_IS_LAST != 0
}

func (self *INDEX_ENTRY) Key() []byte {
	return self.b[INDEX_ENTRY_HEADER_SIZE : INDEX_ENTRY_HEADER_SIZE+int(self.KeySize())]
}

// The view index payload.
func (self *INDEX_ENTRY) Data() []byte {
	return getBytes(self.b, int(self.DataOffset()), int(self.DataSize()))
}

func (self *INDEX_ENTRY) SubNodeVCN() int64 {
	return int64(getUint64(self.b, len(self.b)-8))
}

// The $FILE_NAME key of a directory index entry.
func (self *INDEX_ENTRY) File() (*FILE_NAME, error) {
	return NewFILE_NAME(self.Key())
}

func (self *INDEX_ENTRY) DebugString() string {
	result := fmt.Sprintf("INDEX_ENTRY %v size %d key %d flags %#x",
		FormatFileReference(self.FileReference()), self.SizeOfIndexEntry(),
		self.KeySize(), self.Flags())
	if self.HasSubNode() {
		result += fmt.Sprintf(" sub node VCN %#x", self.SubNodeVCN())
	}
	return result
}

// A node of the index tree: either the node inside $INDEX_ROOT or an
// INDX block from $INDEX_ALLOCATION.
type IndexNode struct {
	b             []byte
	header_offset int

	// -1 for the root node.
	VCN int64

	Entries []*INDEX_ENTRY
}

func newIndexNode(b []byte, header_offset int, vcn int64) (*IndexNode, error) {
	STATS.Inc_IndexNode()

	self := &IndexNode{b: b, header_offset: header_offset, VCN: vcn}
	if header_offset+INDEX_NODE_HEADER_SIZE > len(b) {
		return nil, errors.Wrapf(ErrCorruptIndex, "index node %d header out of range", vcn)
	}

	start := header_offset + int(self.Offset_to_index_entry())
	end := header_offset + int(self.Offset_to_end_index_entry())
	if end > len(b) || start < header_offset+INDEX_NODE_HEADER_SIZE || start > end {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"index node %d: entries %#x-%#x outside node of size %#x",
			vcn, start, end, len(b))
	}

	for offset := start; offset < end; {
		if offset+INDEX_ENTRY_HEADER_SIZE > end {
			return nil, errors.Wrapf(ErrCorruptIndex,
				"index node %d: entry at %#x truncated", vcn, offset)
		}

		size := int(getUint16(b, offset+8))
		key_size := int(getUint16(b, offset+10))
		flags := getUint16(b, offset+12)

		min_size := INDEX_ENTRY_HEADER_SIZE + key_size
		if flags&INDEX_ENTRY_FLAG_HAS_SUB_NODE != 0 {
			min_size += 8
		}
		if size < min_size || offset+size > end {
			return nil, errors.Wrapf(ErrCorruptIndex,
				"index node %d: entry at %#x has invalid size %#x", vcn, offset, size)
		}

		entry := &INDEX_ENTRY{b: b[offset : offset+size]}
		self.Entries = append(self.Entries, entry)
		if entry.IsLast() {
			return self, nil
		}
		offset += size
	}

	return nil, errors.Wrapf(ErrCorruptIndex,
		"index node %d: no terminating entry", vcn)
}

func (self *IndexNode) Offset_to_index_entry() uint32 {
	return getUint32(self.b, self.header_offset)
}

func (self *IndexNode) Offset_to_end_index_entry() uint32 {
	return getUint32(self.b, self.header_offset+4)
}

func (self *IndexNode) SizeOfEntriesAlloc() uint32 {
	return getUint32(self.b, self.header_offset+8)
}

func (self *IndexNode) Flags() uint32 {
	return getUint32(self.b, self.header_offset+12)
}

// The bytes between the end of the live entries and the end of the
// node's allocation. May hold remnants of deleted entries.
func (self *IndexNode) Slack() []byte {
	start := self.header_offset + int(self.Offset_to_end_index_entry())
	end := self.header_offset + int(self.SizeOfEntriesAlloc())
	if end > len(self.b) {
		end = len(self.b)
	}
	if start >= end {
		return nil
	}
	return self.b[start:end]
}

// Index is the B-tree stored in $INDEX_ROOT and $INDEX_ALLOCATION.
type Index struct {
	root *INDEX_ROOT

	// The $INDEX_ALLOCATION stream. nil for small indexes.
	allocation      io.ReaderAt
	allocation_size int64

	// The $BITMAP of in use INDX blocks.
	bitmap *BITMAP

	index_entry_size int64
	vcn_size         int64

	compare func(key, needle []byte) int

	// Checked between nodes to support aborting long traversals.
	abort func() error
}

func NewIndex(root *INDEX_ROOT, allocation io.ReaderAt, allocation_size int64,
	bitmap *BITMAP, cluster_size int64, upcase *UpcaseTable) *Index {
	if upcase == nil {
		upcase = NewDefaultUpcaseTable()
	}

	index_entry_size := int64(root.Index_entry_size())

	// Index blocks smaller than a cluster are addressed in 512
	// byte units.
	vcn_size := cluster_size
	if index_entry_size < cluster_size {
		vcn_size = 512
	}

	return &Index{
		root:             root,
		allocation:       allocation,
		allocation_size:  allocation_size,
		bitmap:           bitmap,
		index_entry_size: index_entry_size,
		vcn_size:         vcn_size,
		compare:          collationFunc(root.Collation_rule(), upcase),
	}
}

func (self *Index) Root() *INDEX_ROOT {
	return self.root
}

func (self *Index) checkAbort() error {
	if self.abort != nil {
		return self.abort()
	}
	return nil
}

// Read and fix up the INDX block at the vcn.
func (self *Index) getNode(vcn int64) (*IndexNode, error) {
	if self.allocation == nil {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"sub node VCN %#x but index has no allocation", vcn)
	}

	if self.index_entry_size < INDX_HEADER_SIZE+INDEX_NODE_HEADER_SIZE ||
		self.index_entry_size > MAX_MFT_ENTRY_SIZE {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"invalid index entry size %#x", self.index_entry_size)
	}

	offset := vcn * self.vcn_size
	if vcn < 0 || offset+self.index_entry_size > self.allocation_size {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"sub node VCN %#x out of range", vcn)
	}

	buffer := make([]byte, self.index_entry_size)
	n, err := self.allocation.ReadAt(buffer, offset)
	if n < len(buffer) {
		return nil, ioErrorf(err, "reading index node VCN %#x", vcn)
	}

	if string(buffer[:4]) != "INDX" {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"index node VCN %#x has invalid signature %q", vcn, buffer[:4])
	}

	err = applyFixups(buffer, int(getUint16(buffer, 4)),
		int(getUint16(buffer, 6)), ErrCorruptIndex)
	if err != nil {
		return nil, errors.WithMessagef(err, "index node VCN %#x", vcn)
	}

	stored_vcn := int64(getUint64(buffer, 16))
	if stored_vcn != vcn {
		return nil, errors.Wrapf(ErrCorruptIndex,
			"index node at VCN %#x claims VCN %#x", vcn, stored_vcn)
	}

	return newIndexNode(buffer, INDX_HEADER_SIZE, vcn)
}

// Is the INDX block at the vcn in use?
func (self *Index) isAllocated(vcn int64) bool {
	if self.bitmap == nil {
		return true
	}
	return self.bitmap.IsSet(vcn * self.vcn_size / self.index_entry_size)
}

// Find the entry with the key. For $I30 indexes the key is the
// UTF-16 name.
func (self *Index) LookupKey(needle []byte) (*INDEX_ENTRY, error) {
	node, err := self.root.Node()
	if err != nil {
		return nil, err
	}

	for depth := 0; depth < MAX_INDEX_DEPTH; depth++ {
		err := self.checkAbort()
		if err != nil {
			return nil, err
		}

		// The last entry carries no key.
		keyed := len(node.Entries) - 1
		idx := sort.Search(keyed, func(i int) bool {
			return self.compare(node.Entries[i].Key(), needle) >= 0
		})

		if idx < keyed && self.compare(node.Entries[idx].Key(), needle) == 0 {
			return node.Entries[idx], nil
		}

		entry := node.Entries[idx]
		if !entry.HasSubNode() {
			return nil, notFoundf("key not found in index")
		}

		vcn := entry.SubNodeVCN()
		if !self.isAllocated(vcn) {
			return nil, notFoundf("key not found in index")
		}

		node, err = self.getNode(vcn)
		if err != nil {
			return nil, err
		}
	}

	return nil, errors.Wrapf(ErrCorruptIndex, "index deeper than %d levels", MAX_INDEX_DEPTH)
}

func (self *Index) Lookup(name string) (*INDEX_ENTRY, error) {
	entry, err := self.LookupKey(StringToUTF16(name))
	if err != nil {
		return nil, errors.WithMessagef(err, "looking up %q", name)
	}
	return entry, nil
}

// Walk the index in collation order. Each call starts a fresh
// traversal.
func (self *Index) Walk() *IndexIterator {
	return &IndexIterator{index: self}
}

// All the nodes of the index: the root and every in use INDX block.
func (self *Index) Nodes() ([]*IndexNode, error) {
	root, err := self.root.Node()
	if err != nil {
		return nil, err
	}
	result := []*IndexNode{root}

	if self.allocation == nil {
		return result, nil
	}

	for offset := int64(0); offset+self.index_entry_size <= self.allocation_size; offset += self.index_entry_size {
		vcn := offset / self.vcn_size
		if !self.isAllocated(vcn) {
			continue
		}

		node, err := self.getNode(vcn)
		if err != nil {
			return nil, err
		}
		result = append(result, node)
	}
	return result, nil
}

type indexFrame struct {
	node      *IndexNode
	pos       int
	descended bool
}

// A lazy in-order traversal of an index.
type IndexIterator struct {
	index   *Index
	stack   []*indexFrame
	visited map[int64]bool
	started bool
}

// Returns the next entry, or io.EOF when the traversal is done.
func (self *IndexIterator) Next() (*INDEX_ENTRY, error) {
	if !self.started {
		self.started = true
		root, err := self.index.root.Node()
		if err != nil {
			return nil, err
		}
		self.stack = []*indexFrame{{node: root}}
		self.visited = make(map[int64]bool)
	}

	for len(self.stack) > 0 {
		top := self.stack[len(self.stack)-1]
		if top.pos >= len(top.node.Entries) {
			self.stack = self.stack[:len(self.stack)-1]
			continue
		}

		entry := top.node.Entries[top.pos]

		// Visit the sub node before the entry itself.
		if entry.HasSubNode() && !top.descended {
			top.descended = true

			vcn := entry.SubNodeVCN()
			if !self.index.isAllocated(vcn) {
				continue
			}

			if self.visited[vcn] || len(self.stack) >= MAX_INDEX_DEPTH {
				return nil, errors.Wrapf(ErrCorruptIndex,
					"index loop at VCN %#x", vcn)
			}
			self.visited[vcn] = true

			err := self.index.checkAbort()
			if err != nil {
				return nil, err
			}

			node, err := self.index.getNode(vcn)
			if err != nil {
				return nil, err
			}
			self.stack = append(self.stack, &indexFrame{node: node})
			continue
		}

		top.pos++
		top.descended = false
		if entry.IsLast() {
			continue
		}
		return entry, nil
	}

	return nil, io.EOF
}

// Collect all remaining entries.
func (self *IndexIterator) All() ([]*INDEX_ENTRY, error) {
	result := []*INDEX_ENTRY{}
	for {
		entry, err := self.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
}
