package parser

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
)

// A file entry is an MFT entry with all its attributes: the ones
// stored in the base record plus the ones stored in extension records
// listed by the $ATTRIBUTE_LIST.
type FileEntry struct {
	volume    *Volume
	mft_entry *MFT_ENTRY

	attributes []*Attribute

	// The $I30 entry we were reached through, if any.
	directory_entry *FILE_NAME

	// Set when the attribute list could not be fully resolved in
	// best effort mode.
	is_corrupted bool

	index    *Index
	released bool
}

func newFileEntry(volume *Volume, mft_entry *MFT_ENTRY) (*FileEntry, error) {
	STATS.Inc_FileEntry()

	self := &FileEntry{
		volume:    volume,
		mft_entry: mft_entry,
	}

	pieces := mft_entry.Attributes()
	extensions, err := self.resolveAttributeList(pieces)
	if err != nil {
		if !volume.options.BestEffort {
			return nil, err
		}
		DebugPrint("MFT entry %d: %v\n", mft_entry.Index, err)
		self.is_corrupted = true
	}

	all := make([]*NTFS_ATTRIBUTE, 0, len(pieces)+len(extensions))
	all = append(all, pieces...)
	all = append(all, extensions...)
	self.attributes = groupAttributes(volume, all)

	return self, nil
}

// Load the attributes that live in extension records. Returns the
// pieces found so far along with any error.
func (self *FileEntry) resolveAttributeList(
	pieces []*NTFS_ATTRIBUTE) ([]*NTFS_ATTRIBUTE, error) {
	var list_attr *NTFS_ATTRIBUTE
	for _, piece := range pieces {
		if piece.Type() == ATTR_TYPE_ATTRIBUTE_LIST {
			list_attr = piece
			break
		}
	}

	if list_attr == nil {
		return nil, nil
	}

	own := self.mft_entry.Index
	data, err := (&Attribute{
		volume: self.volume,
		pieces: []*NTFS_ATTRIBUTE{list_attr},
	}).ReadAll()
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d: $ATTRIBUTE_LIST", own)
	}

	list, err := NewATTRIBUTE_LIST(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d", own)
	}

	result := []*NTFS_ATTRIBUTE{}
	seen := make(map[string]bool)

	for _, entry := range list.Entries {
		ref := int64(entry.MftReference())
		if ref == own {
			continue
		}

		key := fmt.Sprintf("%d-%d", ref, entry.Attribute_id())
		if seen[key] {
			continue
		}
		seen[key] = true

		extension, err := self.volume.getMFTEntry(ref)
		if err != nil {
			return result, errors.WithMessagef(err,
				"MFT entry %d: attribute list entry %v", own, entry.DebugString())
		}

		base := int64(FileReferenceIndex(extension.Base_record_reference()))
		if base != own {
			return result, errors.Wrapf(ErrCorruptRecord,
				"MFT entry %d: extension record %d belongs to entry %d",
				own, ref, base)
		}

		attr, err := extension.GetDirectAttribute(entry.Type(), entry.Attribute_id())
		if err != nil {
			return result, errors.Wrapf(ErrCorruptRecord,
				"MFT entry %d: %v", own, err)
		}
		result = append(result, attr)
	}

	return result, nil
}

// Drop the volume reference held by the entry. Safe to call more
// than once.
func (self *FileEntry) Release() {
	if self.released {
		return
	}
	self.released = true
	self.volume.release()
}

func (self *FileEntry) MFTEntry() *MFT_ENTRY {
	return self.mft_entry
}

func (self *FileEntry) Index() int64 {
	return self.mft_entry.Index
}

func (self *FileEntry) FileReference() uint64 {
	return self.mft_entry.FileReference()
}

func (self *FileEntry) BaseRecordFileReference() uint64 {
	return self.mft_entry.Base_record_reference()
}

func (self *FileEntry) JournalSequenceNumber() uint64 {
	return self.mft_entry.Logfile_sequence_number()
}

func (self *FileEntry) IsAllocated() bool {
	return self.mft_entry.IsAllocated()
}

func (self *FileEntry) IsEmpty() bool {
	return self.mft_entry.IsEmpty()
}

func (self *FileEntry) IsCorrupted() bool {
	return self.is_corrupted || self.mft_entry.IsCorrupted()
}

func (self *FileEntry) IsDirectory() bool {
	return self.mft_entry.IsDirectory() || self.HasDirectoryEntriesIndex()
}

func (self *FileEntry) HasDirectoryEntriesIndex() bool {
	return self.findAttribute(ATTR_TYPE_INDEX_ROOT, "$I30") != nil
}

func (self *FileEntry) HasDefaultDataStream() bool {
	return self.findAttribute(ATTR_TYPE_DATA, "") != nil
}

func (self *FileEntry) findAttribute(attr_type uint32, name string) *Attribute {
	for _, attr := range self.attributes {
		if attr.Type() == attr_type && attr.Name() == name {
			return attr
		}
	}
	return nil
}

func (self *FileEntry) Attributes() *Sequence[*Attribute] {
	return NewSequence(len(self.attributes), func(idx int) (*Attribute, error) {
		return self.attributes[idx], nil
	})
}

func (self *FileEntry) AttributeByIndex(idx int) (*Attribute, error) {
	return self.Attributes().Get(idx)
}

// All the $FILE_NAME attributes that decode.
func (self *FileEntry) FileNames() []*FILE_NAME {
	result := []*FILE_NAME{}
	for _, attr := range self.attributes {
		if attr.Type() != ATTR_TYPE_FILE_NAME {
			continue
		}
		file_name, err := NewFILE_NAME(attr.first().ResidentData())
		if err != nil {
			DebugPrint("MFT entry %d: %v\n", self.Index(), err)
			continue
		}
		result = append(result, file_name)
	}
	return result
}

// Prefer long names over the DOS short name.
func (self *FileEntry) primaryFileName() *FILE_NAME {
	var short_name *FILE_NAME
	for _, file_name := range self.FileNames() {
		if !file_name.IsShortName() {
			return file_name
		}
		if short_name == nil {
			short_name = file_name
		}
	}
	return short_name
}

func (self *FileEntry) StandardInformation() (*STANDARD_INFORMATION, error) {
	attr := self.findAttribute(ATTR_TYPE_STANDARD_INFORMATION, "")
	if attr == nil {
		return nil, notFoundf("MFT entry %d has no $STANDARD_INFORMATION", self.Index())
	}
	return NewSTANDARD_INFORMATION(attr.first().ResidentData())
}

// The name the entry was reached through, or its primary name. An
// entry without $FILE_NAME has an empty name.
func (self *FileEntry) Name() string {
	if self.directory_entry != nil {
		return self.directory_entry.Name()
	}

	file_name := self.primaryFileName()
	if file_name == nil {
		return ""
	}
	return file_name.Name()
}

func (self *FileEntry) fileNameByAttributeIndex(idx int) (*FILE_NAME, error) {
	attr, err := self.AttributeByIndex(idx)
	if err != nil {
		return nil, err
	}

	if attr.Type() != ATTR_TYPE_FILE_NAME {
		return nil, notFoundf("MFT entry %d attribute %d is %v not $FILE_NAME",
			self.Index(), idx, attr.TypeName())
	}
	return NewFILE_NAME(attr.first().ResidentData())
}

func (self *FileEntry) NameByAttributeIndex(idx int) (string, error) {
	file_name, err := self.fileNameByAttributeIndex(idx)
	if err != nil {
		return "", err
	}
	return file_name.Name(), nil
}

func (self *FileEntry) ParentFileReferenceByAttributeIndex(idx int) (uint64, error) {
	file_name, err := self.fileNameByAttributeIndex(idx)
	if err != nil {
		return 0, err
	}
	return file_name.ParentReference(), nil
}

func (self *FileEntry) ParentFileReference() (uint64, error) {
	file_name := self.directory_entry
	if file_name == nil {
		file_name = self.primaryFileName()
	}
	if file_name == nil {
		return 0, notFoundf("MFT entry %d has no $FILE_NAME", self.Index())
	}
	return file_name.ParentReference(), nil
}

// Size of the default data stream.
func (self *FileEntry) Size() int64 {
	attr := self.findAttribute(ATTR_TYPE_DATA, "")
	if attr == nil {
		return 0
	}
	return attr.DataSize()
}

func (self *FileEntry) FileAttributeFlags() uint32 {
	si, err := self.StandardInformation()
	if err == nil {
		return si.Flags()
	}

	file_name := self.primaryFileName()
	if file_name != nil {
		return file_name.Flags()
	}
	return 0
}

// Timestamps come from $STANDARD_INFORMATION, falling back to the
// $FILE_NAME copy.
func (self *FileEntry) timestamp(
	from_si func(si *STANDARD_INFORMATION) WinFileTime,
	from_fn func(fn *FILE_NAME) WinFileTime) (WinFileTime, error) {
	si, err := self.StandardInformation()
	if err == nil {
		return from_si(si), nil
	}

	file_name := self.primaryFileName()
	if file_name != nil {
		return from_fn(file_name), nil
	}
	return WinFileTime{}, notFoundf("MFT entry %d has no timestamps", self.Index())
}

func (self *FileEntry) CreationTimeRaw() (uint64, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).Create_time, (*FILE_NAME).Created)
	return ts.Raw, err
}

func (self *FileEntry) CreationTime() (time.Time, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).Create_time, (*FILE_NAME).Created)
	return ts.Time, err
}

func (self *FileEntry) ModificationTimeRaw() (uint64, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).File_altered_time, (*FILE_NAME).File_modified)
	return ts.Raw, err
}

func (self *FileEntry) ModificationTime() (time.Time, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).File_altered_time, (*FILE_NAME).File_modified)
	return ts.Time, err
}

func (self *FileEntry) AccessTimeRaw() (uint64, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).File_accessed_time, (*FILE_NAME).File_accessed)
	return ts.Raw, err
}

func (self *FileEntry) AccessTime() (time.Time, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).File_accessed_time, (*FILE_NAME).File_accessed)
	return ts.Time, err
}

func (self *FileEntry) EntryModificationTimeRaw() (uint64, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).Mft_altered_time, (*FILE_NAME).Mft_modified)
	return ts.Raw, err
}

func (self *FileEntry) EntryModificationTime() (time.Time, error) {
	ts, err := self.timestamp(
		(*STANDARD_INFORMATION).Mft_altered_time, (*FILE_NAME).Mft_modified)
	return ts.Time, err
}

// The decoded $REPARSE_POINT, nil when the entry has none.
func (self *FileEntry) ReparsePoint() (*REPARSE_POINT, error) {
	attr := self.findAttribute(ATTR_TYPE_REPARSE_POINT, "")
	if attr == nil {
		return nil, nil
	}

	data, err := attr.ReadAll()
	if err != nil {
		return nil, err
	}
	return NewREPARSE_POINT(data)
}

func (self *FileEntry) IsSymbolicLink() bool {
	reparse, err := self.ReparsePoint()
	if err != nil || reparse == nil {
		return false
	}
	return reparse.IsSymbolicLink() || reparse.IsMountPoint()
}

// The substitute name of a symbolic link or mount point. Empty for
// other entries.
func (self *FileEntry) SymbolicLinkTarget() (string, error) {
	reparse, err := self.ReparsePoint()
	if err != nil || reparse == nil {
		return "", err
	}

	if !reparse.IsSymbolicLink() && !reparse.IsMountPoint() {
		return "", nil
	}
	return reparse.SubstituteName(), nil
}

// The raw security descriptor. Newer volumes keep descriptors in
// $Secure so we fall back to looking up the security id there. nil
// when the entry has none.
func (self *FileEntry) SecurityDescriptorData() ([]byte, error) {
	attr := self.findAttribute(ATTR_TYPE_SECURITY_DESCRIPTOR, "")
	if attr != nil {
		return attr.ReadAll()
	}

	si, err := self.StandardInformation()
	if err != nil || !si.HasExtendedFields() || si.Security_id() == 0 {
		return nil, nil
	}

	data, err := self.volume.SecurityDescriptorByID(si.Security_id())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// The extents of the default data stream.
func (self *FileEntry) Extents() ([]Extent, error) {
	attr := self.findAttribute(ATTR_TYPE_DATA, "")
	if attr == nil {
		return nil, nil
	}
	return attr.Extents()
}

func (self *FileEntry) NumberOfExtents() (int, error) {
	extents, err := self.Extents()
	return len(extents), err
}

func (self *FileEntry) ExtentByIndex(idx int) (Extent, error) {
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

func (self *FileEntry) openStream(attr *Attribute) (*DataStream, error) {
	err := self.volume.acquire()
	if err != nil {
		return nil, err
	}

	stream, err := newDataStream(self.volume, attr)
	if err != nil {
		self.volume.release()
		return nil, err
	}
	return stream, nil
}

// The unnamed $DATA stream. Directories usually have none.
func (self *FileEntry) DefaultDataStream() (*DataStream, error) {
	attr := self.findAttribute(ATTR_TYPE_DATA, "")
	if attr == nil {
		return nil, notFoundf("MFT entry %d has no default data stream", self.Index())
	}
	return self.openStream(attr)
}

func (self *FileEntry) alternateDataAttributes() []*Attribute {
	result := []*Attribute{}
	for _, attr := range self.attributes {
		if attr.Type() == ATTR_TYPE_DATA && attr.Name() != "" {
			result = append(result, attr)
		}
	}
	return result
}

// The named $DATA streams. Each DataStream returned must be released.
func (self *FileEntry) AlternateDataStreams() *Sequence[*DataStream] {
	attrs := self.alternateDataAttributes()
	return NewSequence(len(attrs), func(idx int) (*DataStream, error) {
		return self.openStream(attrs[idx])
	})
}

func (self *FileEntry) NumberOfAlternateDataStreams() int {
	return len(self.alternateDataAttributes())
}

// Stream names compare case insensitively like on Windows.
func (self *FileEntry) AlternateDataStreamByName(name string) (*DataStream, error) {
	for _, attr := range self.alternateDataAttributes() {
		if attr.Name() == name {
			return self.openStream(attr)
		}
	}

	for _, attr := range self.alternateDataAttributes() {
		if strings.EqualFold(attr.Name(), name) {
			return self.openStream(attr)
		}
	}
	return nil, notFoundf("MFT entry %d has no stream named %q", self.Index(), name)
}

func (self *FileEntry) HasAlternateDataStreamByName(name string) bool {
	for _, attr := range self.alternateDataAttributes() {
		if strings.EqualFold(attr.Name(), name) {
			return true
		}
	}
	return false
}

// The $I30 index of a directory.
func (self *FileEntry) DirectoryIndex() (*Index, error) {
	if self.index != nil {
		return self.index, nil
	}

	root_attr := self.findAttribute(ATTR_TYPE_INDEX_ROOT, "$I30")
	if root_attr == nil {
		return nil, notFoundf("MFT entry %d is not a directory", self.Index())
	}

	index, err := self.volume.openIndex(self, root_attr)
	if err != nil {
		return nil, err
	}
	self.index = index
	return index, nil
}

func (self *FileEntry) childFromIndexEntry(entry *INDEX_ENTRY) (*FileEntry, error) {
	file_name, err := entry.File()
	if err != nil {
		return nil, err
	}

	child, err := self.volume.fileEntryByReference(entry.FileReference())
	if err != nil {
		return nil, err
	}
	child.directory_entry = file_name
	return child, nil
}

// Walk the directory index yielding a file entry per child. DOS
// short name entries are skipped unless Options.IncludeShortNames is
// set. With Options.BestEffort, children which fail to load are
// skipped. Every file entry returned must be released.
func (self *FileEntry) SubFileEntries() *Iterator[*FileEntry] {
	index, err := self.DirectoryIndex()
	if errors.Is(err, ErrNotFound) {
		return NewIterator(func() (*FileEntry, error) {
			return nil, io.EOF
		})
	}

	if err != nil {
		return NewIterator(func() (*FileEntry, error) {
			return nil, err
		})
	}

	walker := index.Walk()
	own := uint64(self.Index())

	return NewIterator(func() (*FileEntry, error) {
		for {
			err := self.volume.checkAbort()
			if err != nil {
				return nil, err
			}

			entry, err := walker.Next()
			if err != nil {
				return nil, err
			}

			// The "." entry of the root directory.
			if entry.MftReference() == own {
				continue
			}

			file_name, err := entry.File()
			if err == nil && file_name.IsShortName() &&
				!self.volume.options.IncludeShortNames {
				continue
			}

			child, err := self.childFromIndexEntry(entry)
			if err != nil {
				if self.volume.options.BestEffort && !errors.Is(err, ErrAborted) {
					DebugPrint("Skipping child of MFT entry %d: %v\n", self.Index(), err)
					continue
				}
				return nil, err
			}

			err = self.volume.acquire()
			if err != nil {
				return nil, err
			}
			return child, nil
		}
	})
}

func (self *FileEntry) NumberOfSubFileEntries() (int, error) {
	count := 0
	it := self.SubFileEntries()
	for it.Next() {
		it.Value().Release()
		count++
	}
	return count, it.Err()
}

func (self *FileEntry) SubFileEntryByIndex(idx int) (*FileEntry, error) {
	if idx < 0 {
		return nil, checkIndex(idx, 0, "sub file entry")
	}

	it := self.SubFileEntries()
	count := 0
	for it.Next() {
		child := it.Value()
		if count == idx {
			return child, nil
		}
		child.Release()
		count++
	}

	if it.Err() != nil {
		return nil, it.Err()
	}
	return nil, checkIndex(idx, count, "sub file entry")
}

func (self *FileEntry) subFileEntryByName(name string) (*FileEntry, error) {
	index, err := self.DirectoryIndex()
	if err != nil {
		return nil, err
	}

	entry, err := index.Lookup(name)
	if err != nil {
		return nil, errors.WithMessagef(err, "MFT entry %d", self.Index())
	}

	return self.childFromIndexEntry(entry)
}

// Look the name up in the directory index. Names collate case
// insensitively.
func (self *FileEntry) SubFileEntryByName(name string) (*FileEntry, error) {
	child, err := self.subFileEntryByName(name)
	if err != nil {
		return nil, err
	}

	err = self.volume.acquire()
	if err != nil {
		return nil, err
	}
	return child, nil
}

func (self *FileEntry) Dict() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("Index", self.Index()).
		Set("FileReference", FormatFileReference(self.FileReference())).
		Set("Name", self.Name()).
		Set("Size", self.Size()).
		Set("IsAllocated", self.IsAllocated()).
		Set("IsDirectory", self.IsDirectory()).
		Set("Flags", FileAttributeNames(self.FileAttributeFlags()))

	attrs := []*ordereddict.Dict{}
	for _, attr := range self.attributes {
		attrs = append(attrs, attr.Dict())
	}
	return result.Set("Attributes", attrs)
}

func (self *FileEntry) DebugString() string {
	result := fmt.Sprintf("FileEntry %v %q\n",
		FormatFileReference(self.FileReference()), self.Name())
	for idx, attr := range self.attributes {
		result += fmt.Sprintf("  %d: %v %q id %d size %d (%d pieces)\n",
			idx, attr.TypeName(), attr.Name(), attr.Identifier(),
			attr.DataSize(), len(attr.pieces))
	}
	return result
}
