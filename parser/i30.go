package parser

import (
	"fmt"
)

const (
	earliest_valid_time = 1000000000 // Sun Sep  9 11:46:40 2001
	latest_valid_time   = 2000000000 // Wed May 18 13:33:20 2033
)

// List the directory's $I30 index entries, including deleted entries
// still present in the slack space of the index nodes.
func ExtractI30List(entry *FileEntry) ([]*FileInfo, error) {
	index, err := entry.DirectoryIndex()
	if err != nil {
		return nil, err
	}

	nodes, err := index.Nodes()
	if err != nil {
		return nil, err
	}

	result := []*FileInfo{}
	for _, node := range nodes {
		for _, index_entry := range node.Entries {
			if index_entry.IsLast() || index_entry.KeySize() == 0 {
				continue
			}

			filename, err := index_entry.File()
			if err != nil {
				continue
			}
			result = append(result, fileInfoFromFileName(
				index_entry.MftReference(), filename))
		}

		result = append(result, node.ScanSlack()...)
	}

	return result, nil
}

func fileInfoFromFileName(mft_id uint64, filename *FILE_NAME) *FileInfo {
	return &FileInfo{
		MFTId:         fmt.Sprintf("%d", mft_id),
		Mtime:         filename.File_modified().Time,
		Atime:         filename.File_accessed().Time,
		Ctime:         filename.Mft_modified().Time,
		Btime:         filename.Created().Time,
		Name:          filename.Name(),
		NameType:      filename.NameType(),
		IsDir:         filename.Flags()&FILE_ATTRIBUTE_DIRECTORY_INDEX != 0,
		Size:          int64(filename.FilenameSize()),
		AllocatedSize: int64(filename.Allocated_size()),
	}
}

// Timestamps of carved $FILE_NAME records must be plausible.
func isValidFileName(filename *FILE_NAME) bool {
	for _, ts := range []WinFileTime{
		filename.File_modified(), filename.File_accessed(),
		filename.Mft_modified(), filename.Created()} {
		x := ts.Unix()
		if x < earliest_valid_time || x > latest_valid_time {
			return false
		}
	}
	return true
}

// Carve index entries from the space after the last live entry. The
// $FILE_NAME key starts after the 16 byte entry header.
func (self *IndexNode) ScanSlack() []*FileInfo {
	result := []*FileInfo{}

	slack := self.Slack()
	slack_start := self.header_offset + int(self.Offset_to_end_index_entry())

	for off := 0; off+INDEX_ENTRY_HEADER_SIZE+FILE_NAME_HEADER_SIZE <= len(slack); off++ {
		filename, err := NewFILE_NAME(slack[off+INDEX_ENTRY_HEADER_SIZE:])
		if err != nil || filename._length_of_name() == 0 ||
			!isValidFileName(filename) {
			continue
		}

		info := fileInfoFromFileName(
			FileReferenceIndex(getUint64(slack, off)), filename)
		info.IsSlack = true
		info.SlackOffset = int64(slack_start + off)
		result = append(result, info)
	}

	return result
}
