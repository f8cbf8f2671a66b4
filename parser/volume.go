package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
)

// Volume is an open NTFS volume. File entries and data streams
// obtained from it hold a reference which must be released before
// the volume can be closed.
type Volume struct {
	mu sync.Mutex

	source Source

	// Only close the source if we opened it.
	owns_source bool

	// The reader over the clusters of the volume. nil for a
	// standalone $MFT file.
	disk io.ReaderAt

	Boot *NTFS_BOOT_SECTOR

	options Options

	cluster_size      int64
	record_size       int64
	index_record_size int64

	// The $MFT $DATA stream.
	mft_stream io.ReaderAt
	mft_size   int64

	// Map MFT index to *MFT_ENTRY
	mft_entry_lru *LRU

	summary_cache *MFTEntryCache

	upcase *UpcaseTable
	secure *securityIndex

	refs    int
	closed  bool
	aborted int32
}

// Open a volume image or device by path.
func OpenVolumeFile(path string, options Options) (*Volume, error) {
	source, err := OpenSource(path)
	if err != nil {
		return nil, err
	}

	volume, err := openVolume(source, true, options)
	if err != nil {
		source.Close()
		return nil, errors.WithMessagef(err, "opening %v", path)
	}
	return volume, nil
}

// Open a volume over an already open reader. The reader is not
// closed when the volume is closed. If size is 0 it is taken from the
// reader.
func OpenVolume(reader io.ReaderAt, size int64, options Options) (*Volume, error) {
	source, err := NewReaderSource(reader, size)
	if err != nil {
		return nil, err
	}
	return openVolume(source, false, options)
}

// Open a volume image held in memory.
func OpenVolumeBytes(data []byte, options Options) (*Volume, error) {
	return openVolume(NewBytesSource(data), true, options)
}

func newVolume(source Source, owns_source bool, options Options) (*Volume, error) {
	STATS.Inc_Volume()

	options = options.normalize()
	mft_cache, err := NewLRU(options.MFTCacheSize, nil, "MFT_ENTRY")
	if err != nil {
		return nil, err
	}

	self := &Volume{
		source:        source,
		owns_source:   owns_source,
		options:       options,
		mft_entry_lru: mft_cache,
	}
	self.summary_cache = NewMFTEntryCache(self)
	return self, nil
}

func openVolume(source Source, owns_source bool, options Options) (*Volume, error) {
	self, err := newVolume(source, owns_source, options)
	if err != nil {
		return nil, err
	}

	// Raw devices are slow to read in small pieces.
	var reader io.ReaderAt = source
	_, is_file := source.(*fileSource)
	if is_file {
		paged, err := NewPagedReader(source, 0x1000, 1000)
		if err == nil {
			reader = paged
		}
	}

	// NTFS Parsing starts with the boot record.
	self.Boot, err = NewNTFS_BOOT_SECTOR(reader)
	if err != nil {
		return nil, err
	}

	err = self.Boot.IsValid()
	if err != nil {
		return nil, err
	}

	// Devices do not report a size so take it from the boot sector.
	// The backup boot sector follows the last sector of the volume.
	size := source.Size()
	if size <= 0 {
		size = self.Boot.VolumeSize() + int64(self.Boot.Sector_size())
	}
	disk := NewBlockReader(reader, size)

	self.disk = disk
	self.cluster_size = self.Boot.ClusterSize()
	self.record_size = self.Boot.RecordSize()
	self.index_record_size = self.Boot.IndexRecordSize()

	err = self.bootstrapMFT()
	if err != nil {
		return nil, err
	}

	return self, nil
}

// The $MFT describes itself: record 0 is read from the cluster given
// in the boot sector, then its $DATA attribute maps the rest of the
// table. When the $MFT has an attribute list the first piece of $DATA
// is used to reach the extension records holding the other pieces.
func (self *Volume) bootstrapMFT() error {
	offset := self.Boot.MFTClusterNumber() * self.cluster_size
	buffer := make([]byte, self.record_size)
	_, err := self.disk.ReadAt(buffer, offset)
	if err != nil {
		return errors.WithMessage(err, "reading $MFT record")
	}

	record, err := NewMFT_ENTRY(buffer, MFT_ENTRY_MFT)
	if err != nil {
		return err
	}

	if !record.HasSignature() {
		return errors.Wrapf(ErrCorruptRecord,
			"$MFT record at %#x has signature %q", offset, record.Magic())
	}

	var first *NTFS_ATTRIBUTE
	for _, attr := range record.Attributes() {
		if attr.Type() == ATTR_TYPE_DATA && attr.Name() == "" &&
			!attr.IsResident() && attr.Runlist_vcn_start() == 0 {
			first = attr
			break
		}
	}

	if first == nil {
		return errors.Wrapf(ErrCorruptRecord, "$DATA attribute not found for $MFT")
	}

	err = self.setMFTStream(&Attribute{
		volume: self,
		pieces: []*NTFS_ATTRIBUTE{first},
	})
	if err != nil {
		return err
	}

	// Now resolve record 0 through the stream so its attribute list
	// is expanded.
	entry, err := self.fileEntryByIndex(MFT_ENTRY_MFT)
	if err != nil {
		return errors.WithMessage(err, "bootstrapping $MFT")
	}

	data := entry.findAttribute(ATTR_TYPE_DATA, "")
	if data == nil {
		return errors.Wrapf(ErrCorruptRecord, "$DATA attribute not found for $MFT")
	}

	err = self.setMFTStream(data)
	if err != nil {
		return err
	}

	// Entries read through the partial stream are still correct but
	// start clean anyway.
	self.mft_entry_lru.Purge()
	return nil
}

func (self *Volume) setMFTStream(attr *Attribute) error {
	stream, err := attr.Stream()
	if err != nil {
		return errors.WithMessage(err, "$MFT")
	}
	self.mft_stream = stream
	self.mft_size = attr.DataSize()
	return nil
}

func (self *Volume) Options() Options {
	return self.options
}

func (self *Volume) BytesPerSector() int64 {
	if self.Boot == nil {
		return 0
	}
	return int64(self.Boot.Sector_size())
}

func (self *Volume) ClusterSize() int64 {
	return self.cluster_size
}

func (self *Volume) MFTEntrySize() int64 {
	return self.record_size
}

func (self *Volume) IndexEntrySize() int64 {
	return self.index_record_size
}

func (self *Volume) SerialNumber() uint64 {
	if self.Boot == nil {
		return 0
	}
	return self.Boot.Serial()
}

func (self *Volume) MFTClusterNumber() int64 {
	if self.Boot == nil {
		return 0
	}
	return self.Boot.MFTClusterNumber()
}

func (self *Volume) MirrorMFTClusterNumber() int64 {
	if self.Boot == nil {
		return 0
	}
	return self.Boot.MirrorMFTClusterNumber()
}

func (self *Volume) NumberOfFileEntries() int64 {
	if self.record_size == 0 {
		return 0
	}
	return self.mft_size / self.record_size
}

func (self *Volume) acquire() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.closed {
		return ErrVolumeClosed
	}
	self.refs++
	return nil
}

func (self *Volume) release() {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.refs > 0 {
		self.refs--
	}
}

// The number of file entries and data streams not yet released.
func (self *Volume) OpenReferences() int {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.refs
}

func (self *Volume) checkOpen() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.closed {
		return ErrVolumeClosed
	}
	return nil
}

func (self *Volume) checkAbort() error {
	if atomic.LoadInt32(&self.aborted) != 0 {
		return ErrAborted
	}
	return self.checkOpen()
}

// Ask running enumerations to stop. They return ErrAborted at their
// next step. May be called from any goroutine. The abort stays in
// effect: later lookups and enumerations on the volume fail with
// ErrAborted until ResetAbort() is called.
func (self *Volume) SignalAbort() {
	atomic.StoreInt32(&self.aborted, 1)
}

// Allow operations on an aborted volume again.
func (self *Volume) ResetAbort() {
	atomic.StoreInt32(&self.aborted, 0)
}

// Close the volume. Closing twice is not an error. While file entries
// or streams are still held ErrVolumeInUse is returned and the volume
// stays open.
func (self *Volume) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.closed {
		return nil
	}

	if self.refs > 0 {
		return errors.Wrapf(ErrVolumeInUse, "%d references outstanding", self.refs)
	}
	return self.closeLocked()
}

// Close the volume regardless of outstanding references. Their
// further use fails with ErrVolumeClosed.
func (self *Volume) ForceClose() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.closed {
		return nil
	}
	return self.closeLocked()
}

func (self *Volume) closeLocked() error {
	if debug {
		fmt.Println(STATS.DebugString())
		fmt.Println(self.mft_entry_lru.DebugString())
	}

	self.closed = true
	self.refs = 0
	self.purge()

	if self.owns_source {
		err := self.source.Close()
		if err != nil {
			return ioErrorf(err, "closing volume")
		}
	}
	return nil
}

// Drop all cached data so it is read again from the source.
func (self *Volume) Purge() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.purge()
}

func (self *Volume) purge() {
	self.mft_entry_lru.Purge()
	self.summary_cache.Purge()

	// Try to flush our reader if possible
	block_reader, ok := self.disk.(*BlockReader)
	if ok {
		flusher, ok := block_reader.reader.(Flusher)
		if ok {
			flusher.Flush()
		}
	}
}

// Read the MFT entry at the index, without expanding attribute lists.
func (self *Volume) getMFTEntry(index int64) (*MFT_ENTRY, error) {
	if index < 0 {
		return nil, errors.Wrapf(ErrOutOfRange, "MFT entry index %d is negative", index)
	}

	if index >= self.NumberOfFileEntries() {
		return nil, notFoundf("MFT entry %d out of bounds (%d available)",
			index, self.NumberOfFileEntries())
	}

	cached_any, pres := self.mft_entry_lru.Get(int(index))
	if pres {
		return cached_any.(*MFT_ENTRY), nil
	}

	buffer := make([]byte, self.record_size)
	n, err := self.mft_stream.ReadAt(buffer, index*self.record_size)
	if n < len(buffer) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, ioErrorf(err, "reading MFT entry %d", index)
	}

	mft_entry, err := NewMFT_ENTRY(buffer, index)
	if err != nil {
		return nil, err
	}

	self.mft_entry_lru.Add(int(index), mft_entry)
	return mft_entry, nil
}

// The decoded MFT entry at the index, without expanding attribute
// lists.
func (self *Volume) MFTEntryByIndex(index int64) (*MFT_ENTRY, error) {
	err := self.checkOpen()
	if err != nil {
		return nil, err
	}
	return self.getMFTEntry(index)
}

func (self *Volume) fileEntryByIndex(index int64) (*FileEntry, error) {
	err := self.checkOpen()
	if err != nil {
		return nil, err
	}

	mft_entry, err := self.getMFTEntry(index)
	if err != nil {
		return nil, err
	}
	return newFileEntry(self, mft_entry)
}

func (self *Volume) acquired(entry *FileEntry, err error) (*FileEntry, error) {
	if err != nil {
		return nil, err
	}

	err = self.acquire()
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Access any MFT entry directly. This includes deleted entries and
// entries not reachable from the directory tree. The file entry must
// be released.
func (self *Volume) FileEntryByIndex(index int64) (*FileEntry, error) {
	return self.acquired(self.fileEntryByIndex(index))
}

func (self *Volume) fileEntryByReference(ref uint64) (*FileEntry, error) {
	entry, err := self.fileEntryByIndex(int64(FileReferenceIndex(ref)))
	if err != nil {
		return nil, err
	}

	// A zero sequence number matches any entry.
	seq := FileReferenceSequence(ref)
	if seq != 0 && seq != entry.mft_entry.Sequence_value() {
		return nil, notFoundf("stale file reference %v: entry has sequence %d",
			FormatFileReference(ref), entry.mft_entry.Sequence_value())
	}
	return entry, nil
}

// Open the entry the file reference points at. Fails with ErrNotFound
// when the entry was reused since the reference was taken.
func (self *Volume) FileEntryByReference(ref uint64) (*FileEntry, error) {
	return self.acquired(self.fileEntryByReference(ref))
}

func (self *Volume) RootDirectory() (*FileEntry, error) {
	return self.FileEntryByIndex(MFT_ENTRY_ROOT)
}

func splitPath(path string) []string {
	result := []string{}
	for _, component := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '\\' || r == '/'
	}) {
		if component == "." {
			continue
		}
		result = append(result, component)
	}
	return result
}

func (self *Volume) fileEntryByPath(path string) (*FileEntry, error) {
	entry, err := self.fileEntryByIndex(MFT_ENTRY_ROOT)
	if err != nil {
		return nil, err
	}

	for _, component := range splitPath(path) {
		err := self.checkAbort()
		if err != nil {
			return nil, err
		}

		if component == ".." {
			parent, err := entry.ParentFileReference()
			if err != nil {
				return nil, err
			}
			entry, err = self.fileEntryByReference(parent)
			if err != nil {
				return nil, err
			}
			continue
		}

		entry, err = entry.subFileEntryByName(component)
		if err != nil {
			return nil, errors.WithMessagef(err, "resolving %q", path)
		}
	}

	return entry, nil
}

// Open a file by path. Components are separated by \ or / and are
// matched case insensitively.
func (self *Volume) FileEntryByPath(path string) (*FileEntry, error) {
	return self.acquired(self.fileEntryByPath(path))
}

func (self *Volume) volumeAttribute(attr_type uint32) (AttributeValue, error) {
	entry, err := self.fileEntryByIndex(MFT_ENTRY_VOLUME)
	if err != nil {
		return nil, err
	}

	attr := entry.findAttribute(attr_type, "")
	if attr == nil {
		return nil, notFoundf("$Volume has no %v attribute", AttributeTypeName(attr_type))
	}
	return attr.Decode()
}

// The volume label. Empty when the volume has none.
func (self *Volume) Name() (string, error) {
	value, err := self.volumeAttribute(ATTR_TYPE_VOLUME_NAME)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.(*VOLUME_NAME).Name, nil
}

func (self *Volume) volumeInformation() (*VOLUME_INFORMATION, error) {
	value, err := self.volumeAttribute(ATTR_TYPE_VOLUME_INFORMATION)
	if err != nil {
		return nil, err
	}
	return value.(*VOLUME_INFORMATION), nil
}

// The NTFS version, e.g. 3.1
func (self *Volume) Version() (major uint8, minor uint8, err error) {
	info, err := self.volumeInformation()
	if err != nil {
		return 0, 0, err
	}
	return info.Major(), info.Minor(), nil
}

func (self *Volume) Flags() (uint16, error) {
	info, err := self.volumeInformation()
	if err != nil {
		return 0, err
	}
	return info.Flags(), nil
}

// The $UpCase table is loaded on first use. Volumes where it can not
// be read collate with the Unicode upper case mapping.
func (self *Volume) upcaseTable() *UpcaseTable {
	if self.upcase != nil {
		return self.upcase
	}

	self.upcase = NewDefaultUpcaseTable()

	entry, err := self.fileEntryByIndex(MFT_ENTRY_UPCASE)
	if err != nil {
		DebugPrint("Unable to open $UpCase: %v\n", err)
		return self.upcase
	}

	attr := entry.findAttribute(ATTR_TYPE_DATA, "")
	if attr == nil {
		return self.upcase
	}

	data, err := attr.ReadAll()
	if err != nil {
		DebugPrint("Unable to read $UpCase: %v\n", err)
		return self.upcase
	}

	self.upcase = NewUpcaseTable(data)
	return self.upcase
}

// Build the index named by the $INDEX_ROOT attribute of the entry.
func (self *Volume) openIndex(entry *FileEntry, root_attr *Attribute) (*Index, error) {
	name := root_attr.Name()

	root_data, err := root_attr.ReadAll()
	if err != nil {
		return nil, err
	}

	root, err := NewINDEX_ROOT(root_data)
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d index %v",
			entry.Index(), name)
	}

	var allocation io.ReaderAt
	allocation_size := int64(0)

	alloc_attr := entry.findAttribute(ATTR_TYPE_INDEX_ALLOCATION, name)
	if alloc_attr != nil {
		allocation, err = alloc_attr.Stream()
		if err != nil {
			return nil, err
		}
		allocation_size = alloc_attr.DataSize()
	}

	var bitmap *BITMAP
	bitmap_attr := entry.findAttribute(ATTR_TYPE_BITMAP, name)
	if bitmap_attr != nil {
		data, err := bitmap_attr.ReadAll()
		if err != nil {
			return nil, err
		}
		bitmap = &BITMAP{Data: data}
	}

	index := NewIndex(root, allocation, allocation_size, bitmap,
		self.cluster_size, self.upcaseTable())
	index.abort = self.checkAbort
	return index, nil
}

// The summary of the MFT entry used for path resolution.
func (self *Volume) GetMFTSummary(id uint64, seq uint16) (*MFTEntrySummary, error) {
	return self.summary_cache.GetSummary(id, seq)
}

func (self *Volume) SummaryCache() *MFTEntryCache {
	return self.summary_cache
}

// Depth first walk of the directory tree below the root. The callback
// receives the full path of each entry. Entries are released once the
// callback returns.
func (self *Volume) WalkContext(ctx context.Context,
	cb func(path string, entry *FileEntry) error) error {
	root, err := self.RootDirectory()
	if err != nil {
		return err
	}
	defer root.Release()

	visited := map[int64]bool{root.Index(): true}
	return self.walk(ctx, root, "", visited, cb)
}

func (self *Volume) walk(ctx context.Context, dir *FileEntry, prefix string,
	visited map[int64]bool,
	cb func(path string, entry *FileEntry) error) error {
	it := dir.SubFileEntries()
	for it.Next() {
		child := it.Value()
		err := self.walkChild(ctx, child, prefix, visited, cb)
		child.Release()
		if err != nil {
			return err
		}
	}
	return it.Err()
}

func (self *Volume) walkChild(ctx context.Context, child *FileEntry, prefix string,
	visited map[int64]bool,
	cb func(path string, entry *FileEntry) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path := prefix + "\\" + child.Name()
	err := cb(path, child)
	if err != nil {
		return err
	}

	if !child.HasDirectoryEntriesIndex() || visited[child.Index()] {
		return nil
	}
	visited[child.Index()] = true

	return self.walk(ctx, child, path, visited, cb)
}

func (self *Volume) Dict() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("BytesPerSector", self.BytesPerSector()).
		Set("ClusterSize", self.ClusterSize()).
		Set("MFTEntrySize", self.MFTEntrySize()).
		Set("IndexEntrySize", self.IndexEntrySize()).
		Set("SerialNumber", fmt.Sprintf("%#x", self.SerialNumber())).
		Set("MFTCluster", self.MFTClusterNumber()).
		Set("MirrorMFTCluster", self.MirrorMFTClusterNumber()).
		Set("NumberOfFileEntries", self.NumberOfFileEntries())

	name, err := self.Name()
	if err == nil {
		result.Set("Name", name)
	}

	major, minor, err := self.Version()
	if err == nil {
		result.Set("Version", fmt.Sprintf("%d.%d", major, minor))
	}
	return result
}

func (self *Volume) Stats() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("MFTEntryCache", self.mft_entry_lru.Stats()).
		Set("SummaryCache", self.summary_cache.Stats()).
		Set("Counters", STATS.Dict())
}
