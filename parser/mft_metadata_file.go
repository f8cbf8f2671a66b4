package parser

import (
	"io"

	"github.com/pkg/errors"
)

// The cluster size assumed for index nodes when no boot sector is
// available.
const DEFAULT_CLUSTER_SIZE = 4096

// MFTMetadataFile reads a $MFT extracted from a volume. Only data
// held in the MFT entries themselves (resident attributes and run
// lists) is available, reading non-resident data fails with ErrIO.
type MFTMetadataFile struct {
	volume *Volume
}

func OpenMFTMetadataFile(path string, options Options) (*MFTMetadataFile, error) {
	source, err := OpenSource(path)
	if err != nil {
		return nil, err
	}

	result, err := openMFTMetadata(source, true, options)
	if err != nil {
		source.Close()
		return nil, errors.WithMessagef(err, "opening %v", path)
	}
	return result, nil
}

func OpenMFTMetadata(reader io.ReaderAt, size int64, options Options) (*MFTMetadataFile, error) {
	source, err := NewReaderSource(reader, size)
	if err != nil {
		return nil, err
	}
	return openMFTMetadata(source, false, options)
}

func OpenMFTMetadataBytes(data []byte, options Options) (*MFTMetadataFile, error) {
	return openMFTMetadata(NewBytesSource(data), true, options)
}

func openMFTMetadata(source Source, owns_source bool, options Options) (*MFTMetadataFile, error) {
	volume, err := newVolume(source, owns_source, options)
	if err != nil {
		return nil, err
	}

	size := source.Size()
	reader := NewBlockReader(source, size)

	header := make([]byte, MFT_ENTRY_HEADER_SIZE)
	_, err = reader.ReadAt(header, 0)
	if err != nil {
		return nil, err
	}

	if string(header[:4]) != "FILE" {
		return nil, errors.Wrapf(ErrSignatureMismatch,
			"$MFT starts with %q", header[:4])
	}

	// The allocated size of the first entry.
	record_size := int64(getUint32(header, 28))
	if !isPowerOfTwo(record_size) || record_size < 256 ||
		record_size > MAX_MFT_ENTRY_SIZE {
		return nil, errors.Wrapf(ErrSignatureMismatch,
			"invalid MFT entry size %#x", record_size)
	}

	if size%record_size != 0 {
		return nil, errors.Wrapf(ErrSignatureMismatch,
			"$MFT size %#x is not a multiple of the entry size %#x",
			size, record_size)
	}

	volume.cluster_size = DEFAULT_CLUSTER_SIZE
	volume.record_size = record_size
	volume.mft_stream = reader
	volume.mft_size = size

	return &MFTMetadataFile{volume: volume}, nil
}

func (self *MFTMetadataFile) MFTEntrySize() int64 {
	return self.volume.MFTEntrySize()
}

func (self *MFTMetadataFile) NumberOfFileEntries() int64 {
	return self.volume.NumberOfFileEntries()
}

func (self *MFTMetadataFile) FileEntryByIndex(index int64) (*FileEntry, error) {
	return self.volume.FileEntryByIndex(index)
}

func (self *MFTMetadataFile) MFTEntryByIndex(index int64) (*MFT_ENTRY, error) {
	return self.volume.MFTEntryByIndex(index)
}

// The volume label stored in the $Volume entry.
func (self *MFTMetadataFile) VolumeName() (string, error) {
	return self.volume.Name()
}

func (self *MFTMetadataFile) VolumeVersion() (uint8, uint8, error) {
	return self.volume.Version()
}

// Full paths are resolved through the parent references.
func (self *MFTMetadataFile) GetFullPath(index int64) (string, error) {
	return GetFullPath(self.volume, uint64(index))
}

func (self *MFTMetadataFile) SignalAbort() {
	self.volume.SignalAbort()
}

func (self *MFTMetadataFile) Close() error {
	return self.volume.Close()
}

func (self *MFTMetadataFile) ForceClose() error {
	return self.volume.ForceClose()
}
