package parser

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const (
	NTFS_OEM_ID           = "NTFS    "
	BOOT_SECTOR_SIZE      = 512
	BOOT_SECTOR_SIGNATURE = 0xAA55
)

// The volume header (boot sector). Fields are read straight out of the
// first 512 bytes of the volume.
type NTFS_BOOT_SECTOR struct {
	b []byte
}

func NewNTFS_BOOT_SECTOR(reader io.ReaderAt) (*NTFS_BOOT_SECTOR, error) {
	b := make([]byte, BOOT_SECTOR_SIZE)
	n, err := reader.ReadAt(b, 0)
	if n < BOOT_SECTOR_SIZE {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, ioErrorf(err, "reading boot sector")
	}

	return &NTFS_BOOT_SECTOR{b: b}, nil
}

func (self *NTFS_BOOT_SECTOR) Oemname() string {
	return string(self.b[3:11])
}

func (self *NTFS_BOOT_SECTOR) Sector_size() uint16 {
	return getUint16(self.b, 0x0B)
}

func (self *NTFS_BOOT_SECTOR) _cluster_size() uint8 {
	return getUint8(self.b, 0x0D)
}

func (self *NTFS_BOOT_SECTOR) _volume_size() uint64 {
	return getUint64(self.b, 0x28)
}

func (self *NTFS_BOOT_SECTOR) _mft_cluster() uint64 {
	return getUint64(self.b, 0x30)
}

func (self *NTFS_BOOT_SECTOR) _mirror_mft_cluster() uint64 {
	return getUint64(self.b, 0x38)
}

func (self *NTFS_BOOT_SECTOR) _mft_record_size() int8 {
	return int8(getUint8(self.b, 0x40))
}

func (self *NTFS_BOOT_SECTOR) _index_record_size() int8 {
	return int8(getUint8(self.b, 0x44))
}

func (self *NTFS_BOOT_SECTOR) Serial() uint64 {
	return getUint64(self.b, 0x48)
}

func (self *NTFS_BOOT_SECTOR) Magic() uint16 {
	return getUint16(self.b, 0x1FE)
}

// Sectors per cluster above 128 are stored as a negative power of
// two (used for clusters larger than 64kb).
func (self *NTFS_BOOT_SECTOR) SectorsPerCluster() int64 {
	value := self._cluster_size()
	if value > 128 {
		shift := 256 - int(value)
		if shift > 31 {
			return 0
		}
		return 1 << uint(shift)
	}
	return int64(value)
}

func (self *NTFS_BOOT_SECTOR) ClusterSize() int64 {
	return self.SectorsPerCluster() * int64(self.Sector_size())
}

func (self *NTFS_BOOT_SECTOR) BlockCount() int64 {
	cluster_size := self.ClusterSize()
	if cluster_size == 0 {
		return 0
	}
	return int64(self._volume_size()) * int64(self.Sector_size()) / cluster_size
}

func (self *NTFS_BOOT_SECTOR) VolumeSize() int64 {
	return int64(self._volume_size()) * int64(self.Sector_size())
}

func (self *NTFS_BOOT_SECTOR) MFTClusterNumber() int64 {
	return int64(self._mft_cluster())
}

func (self *NTFS_BOOT_SECTOR) MirrorMFTClusterNumber() int64 {
	return int64(self._mirror_mft_cluster())
}

// Positive values count clusters, negative values are a power of two
// in bytes.
func (self *NTFS_BOOT_SECTOR) decodeRecordSize(value int8) int64 {
	if value > 0 {
		return int64(value) * self.ClusterSize()
	}
	if value < -31 {
		return 0
	}
	return 1 << uint(-value)
}

func (self *NTFS_BOOT_SECTOR) RecordSize() int64 {
	return self.decodeRecordSize(self._mft_record_size())
}

func (self *NTFS_BOOT_SECTOR) IndexRecordSize() int64 {
	return self.decodeRecordSize(self._index_record_size())
}

func isPowerOfTwo(value int64) bool {
	return value > 0 && value&(value-1) == 0
}

func (self *NTFS_BOOT_SECTOR) IsValid() error {
	if self.Oemname() != NTFS_OEM_ID {
		return errors.Wrapf(ErrSignatureMismatch,
			"invalid OEM identifier %q", self.Oemname())
	}

	if self.Magic() != BOOT_SECTOR_SIGNATURE {
		return errors.Wrapf(ErrSignatureMismatch,
			"invalid boot sector signature %#x", self.Magic())
	}

	sector_size := int64(self.Sector_size())
	if !isPowerOfTwo(sector_size) || sector_size < 256 || sector_size > 4096 {
		return errors.Wrapf(ErrSignatureMismatch,
			"invalid bytes per sector %d", sector_size)
	}

	cluster_size := self.ClusterSize()
	if !isPowerOfTwo(cluster_size) || cluster_size > MAX_CLUSTER_SIZE {
		return errors.Wrapf(ErrSignatureMismatch,
			"invalid cluster size %#x", cluster_size)
	}

	record_size := self.RecordSize()
	if !isPowerOfTwo(record_size) || record_size < 256 ||
		record_size > MAX_MFT_ENTRY_SIZE {
		return errors.Wrapf(ErrSignatureMismatch,
			"invalid MFT entry size %#x", record_size)
	}

	index_size := self.IndexRecordSize()
	if !isPowerOfTwo(index_size) || index_size < 256 ||
		index_size > MAX_MFT_ENTRY_SIZE {
		return errors.Wrapf(ErrSignatureMismatch,
			"invalid index entry size %#x", index_size)
	}

	if self.BlockCount() == 0 {
		return errors.Wrap(ErrSignatureMismatch, "volume size is 0")
	}

	return nil
}

func (self *NTFS_BOOT_SECTOR) DebugString() string {
	result := "struct NTFS_BOOT_SECTOR:\n"
	result += fmt.Sprintf("  Oemname: %q\n", self.Oemname())
	result += fmt.Sprintf("  Sector_size: %#0x\n", self.Sector_size())
	result += fmt.Sprintf("  ClusterSize: %#0x\n", self.ClusterSize())
	result += fmt.Sprintf("  VolumeSize: %#0x\n", self.VolumeSize())
	result += fmt.Sprintf("  MFTCluster: %#0x\n", self._mft_cluster())
	result += fmt.Sprintf("  MirrorMFTCluster: %#0x\n", self._mirror_mft_cluster())
	result += fmt.Sprintf("  RecordSize: %#0x\n", self.RecordSize())
	result += fmt.Sprintf("  IndexRecordSize: %#0x\n", self.IndexRecordSize())
	result += fmt.Sprintf("  Serial: %#0x\n", self.Serial())
	result += fmt.Sprintf("  Magic: %#0x\n", self.Magic())
	return result
}

// Check the volume header signature without opening the volume.
func CheckVolumeSignature(reader io.ReaderAt) bool {
	oem := make([]byte, 8)
	n, _ := reader.ReadAt(oem, 3)
	return n == len(oem) && string(oem) == NTFS_OEM_ID
}
