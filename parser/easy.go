// Implement some easy APIs.
package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type FileInfo struct {
	MFTId         string    `json:"MFTId,omitempty"`
	Mtime         time.Time `json:"Mtime,omitempty"`
	Atime         time.Time `json:"Atime,omitempty"`
	Ctime         time.Time `json:"Ctime,omitempty"`
	Btime         time.Time `json:"Btime,omitempty"` // Birth time.
	FNBtime       time.Time `json:"FNBtime,omitempty"`
	FNMtime       time.Time `json:"FNMtime,omitempty"`
	Name          string    `json:"Name,omitempty"`
	NameType      string    `json:"NameType,omitempty"`
	ExtraNames    []string  `json:"ExtraNames,omitempty"`
	IsDir         bool      `json:"IsDir,omitempty"`
	Size          int64
	AllocatedSize int64

	// Is it in I30 slack?
	IsSlack     bool  `json:"IsSlack,omitempty"`
	SlackOffset int64 `json:"SlackOffset,omitempty"`
}

// Parse an inode string like 5-144-1 into the MFT index, attribute
// type and attribute id. The type defaults to $DATA.
func ParseMFTId(mft_id string) (mft_idx int64, attr int64, id int64, err error) {
	components := []int64{}
	for _, component_str := range strings.Split(mft_id, "-") {
		x, err := strconv.ParseInt(component_str, 10, 64)
		if err != nil {
			return 0, 0, 0, errors.Wrapf(ErrNotFound,
				"Incorrect format for MFTId %q: e.g. 5-144-1", mft_id)
		}

		components = append(components, x)
	}

	switch len(components) {
	case 1:
		return components[0], ATTR_TYPE_DATA, 0, nil
	case 2:
		return components[0], components[1], 0, nil
	case 3:
		return components[0], components[1], components[2], nil
	default:
		return 0, 0, 0, errors.Wrapf(ErrNotFound,
			"Incorrect format for MFTId %q: e.g. 5-144-1", mft_id)
	}
}

// Open a data stream by path. An alternate data stream is selected
// with a path like "dir\file.txt:stream". The stream must be
// released.
func GetDataForPath(volume *Volume, path string) (*DataStream, error) {
	// Check for ADS in the path.
	parts := strings.Split(path, ":")
	switch len(parts) {
	case 2:
	case 1:
		parts = append(parts, "")
	default:
		return nil, errors.Wrapf(ErrNotFound,
			"Path %q may not contain more than one ':'", path)
	}

	entry, err := volume.fileEntryByPath(parts[0])
	if err != nil {
		return nil, err
	}

	if parts[1] == "" {
		return entry.DefaultDataStream()
	}
	return entry.AlternateDataStreamByName(parts[1])
}

// Open the entry named by an inode string (5-144-1) or a path.
func GetFileEntry(volume *Volume, path_or_id string) (*FileEntry, error) {
	mft_idx, _, _, err := ParseMFTId(path_or_id)
	if err == nil {
		return volume.FileEntryByIndex(mft_idx)
	}
	return volume.FileEntryByPath(path_or_id)
}

// Open the attribute with this type and id as a stream. This is how
// an inode like 16-128-3 is read.
func OpenStream(entry *FileEntry, attr_type uint32, attr_id uint16) (*DataStream, error) {
	for _, attr := range entry.attributes {
		if attr.Type() == attr_type && attr.Identifier() == attr_id {
			return entry.openStream(attr)
		}
	}
	return nil, notFoundf("MFT entry %d has no attribute %d-%d",
		entry.Index(), attr_type, attr_id)
}

// Describe the entry: one FileInfo for the directory index and one
// for each data stream. Entries also known by other names (hard
// links) get a FileInfo per name.
func Stat(entry *FileEntry) []*FileInfo {
	si, err := entry.StandardInformation()
	if err != nil {
		return nil
	}

	var other_file_names []*FILE_NAME
	var win32_name *FILE_NAME
	var fn_birth_time, fn_mtime time.Time

	for _, file_name := range entry.FileNames() {
		// The birth of an MFT entry is determined by the
		// $FILE_NAME times since they can not be modified using
		// normal APIs.
		fn_birth_time = file_name.Created().Time
		fn_mtime = file_name.File_modified().Time

		switch file_name.Name_type() {
		case FILE_NAME_NAMESPACE_POSIX, FILE_NAME_NAMESPACE_WIN32,
			FILE_NAME_NAMESPACE_DOS_WIN32:
			if win32_name == nil {
				win32_name = file_name
				continue
			}
		}
		other_file_names = append(other_file_names, file_name)
	}

	if win32_name == nil {
		return nil
	}

	result := []*FileInfo{}
	inodes := &InodeFormatter{}

	add_extra_names := func(info *FileInfo, ads string) {
		for _, name := range other_file_names {
			extra_name := name.Name()
			info.ExtraNames = append(info.ExtraNames, extra_name+ads)

			// Hard links get their own row, short names do not.
			if !name.IsShortName() {
				info_copy := *info
				info_copy.Name = extra_name + ads
				info_copy.ExtraNames = []string{win32_name.Name() + ads}
				result = append(result, &info_copy)
			}
		}
	}

	new_info := func(attr *Attribute, ads string) *FileInfo {
		return &FileInfo{
			MFTId:    inodes.Inode(entry.Index(), attr),
			Mtime:    si.File_altered_time().Time,
			Atime:    si.File_accessed_time().Time,
			Ctime:    si.Mft_altered_time().Time,
			Btime:    si.Create_time().Time,
			FNBtime:  fn_birth_time,
			FNMtime:  fn_mtime,
			Name:     win32_name.Name() + ads,
			NameType: win32_name.NameType(),
			IsDir:    entry.IsDirectory(),
		}
	}

	for _, attr := range entry.attributes {
		switch attr.Type() {
		case ATTR_TYPE_INDEX_ROOT:
			if attr.Name() != "$I30" {
				continue
			}
			info := new_info(attr, "")
			add_extra_names(info, "")
			result = append(result, info)

		case ATTR_TYPE_DATA:
			ads := ""
			if attr.Name() != "" {
				ads = ":" + attr.Name()
			}

			info := new_info(attr, ads)
			info.Size = attr.DataSize()
			info.AllocatedSize = attr.AllocatedSize()
			add_extra_names(info, ads)
			result = append(result, info)
		}
	}

	return result
}

// List the directory. The index stores an entry per name so the
// same MFT entry usually shows up twice (long and short name). Each
// MFT entry is listed once.
func ListDir(dir *FileEntry) ([]*FileInfo, error) {
	seen := make(map[int64]bool)
	result := []*FileInfo{}

	it := dir.SubFileEntries()
	for it.Next() {
		child := it.Value()
		if !seen[child.Index()] {
			seen[child.Index()] = true
			result = append(result, Stat(child)...)
		}
		child.Release()
	}

	return result, it.Err()
}
