package parser

import (
	"time"
)

// This file defines a model for a file entry.

type TimeStamps struct {
	CreateTime       time.Time
	FileModifiedTime time.Time
	MFTModifiedTime  time.Time
	AccessedTime     time.Time
}

type FilenameInfo struct {
	Times                TimeStamps
	Type                 string
	Name                 string
	ParentEntryId        uint64
	ParentSequenceNumber uint16
}

type AttributeInfo struct {
	Type       string
	TypeId     uint64
	Id         uint64
	Inode      string
	Size       int64
	Name       string
	Resident   bool
	Compressed bool
	Sparse     bool
}

// Describe a single file entry.
type NTFSFileInformation struct {
	FullPath       string
	MFTID          int64
	SequenceNumber uint16
	Size           int64
	Allocated      bool
	IsDir          bool
	Corrupted      bool
	SI_Times       *TimeStamps

	// If multiple filenames are given, we list them here.
	Filenames []*FilenameInfo

	Attributes []*AttributeInfo

	// Other paths the entry is reachable by.
	Hardlinks []string `json:",omitempty"`

	SymlinkTarget string `json:",omitempty"`
}

func ModelMFTEntry(entry *FileEntry) (*NTFSFileInformation, error) {
	full_path, _ := entry.FullPath()
	mft_id := entry.Index()

	result := &NTFSFileInformation{
		FullPath:       full_path,
		MFTID:          mft_id,
		SequenceNumber: FileReferenceSequence(entry.FileReference()),
		Size:           entry.Size(),
		Allocated:      entry.IsAllocated(),
		IsDir:          entry.IsDirectory(),
		Corrupted:      entry.IsCorrupted(),
	}

	si, err := entry.StandardInformation()
	if err == nil {
		result.SI_Times = &TimeStamps{
			CreateTime:       si.Create_time().Time,
			FileModifiedTime: si.File_altered_time().Time,
			MFTModifiedTime:  si.Mft_altered_time().Time,
			AccessedTime:     si.File_accessed_time().Time,
		}
	}

	for _, filename := range entry.FileNames() {
		result.Filenames = append(result.Filenames, &FilenameInfo{
			Times: TimeStamps{
				CreateTime:       filename.Created().Time,
				FileModifiedTime: filename.File_modified().Time,
				MFTModifiedTime:  filename.Mft_modified().Time,
				AccessedTime:     filename.File_accessed().Time,
			},
			Type:                 filename.NameType(),
			Name:                 filename.Name(),
			ParentEntryId:        filename.MftReference(),
			ParentSequenceNumber: filename.Seq_num(),
		})
	}

	inodes := &InodeFormatter{}
	for _, attr := range entry.attributes {
		result.Attributes = append(result.Attributes, &AttributeInfo{
			Type:       attr.TypeName(),
			TypeId:     uint64(attr.Type()),
			Inode:      inodes.Inode(mft_id, attr),
			Size:       attr.DataSize(),
			Id:         uint64(attr.Identifier()),
			Name:       attr.Name(),
			Resident:   attr.IsResident(),
			Compressed: attr.IsCompressed(),
			Sparse:     attr.IsSparse(),
		})
	}

	links := entry.Links()
	if len(links) > 1 {
		result.Hardlinks = links
	}

	if entry.IsSymbolicLink() {
		result.SymlinkTarget, _ = entry.SymbolicLinkTarget()
	}

	return result, nil
}
