package parser

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type VolumeTestSuite struct {
	suite.Suite

	volume *Volume
}

func (self *VolumeTestSuite) SetupTest() {
	volume, err := openTestVolume(GetDefaultOptions())
	assert.NoError(self.T(), err)
	self.volume = volume
}

func (self *VolumeTestSuite) TearDownTest() {
	self.volume.ForceClose()
}

func (self *VolumeTestSuite) TestGeometry() {
	t := self.T()
	volume := self.volume

	assert.Equal(t, int64(test_sector_size), volume.BytesPerSector())
	assert.Equal(t, int64(test_cluster_size), volume.ClusterSize())
	assert.Equal(t, int64(test_record_size), volume.MFTEntrySize())
	assert.Equal(t, int64(test_cluster_size), volume.IndexEntrySize())
	assert.Equal(t, uint64(test_serial), volume.SerialNumber())
	assert.Equal(t, int64(test_mft_cluster), volume.MFTClusterNumber())
	assert.Equal(t, int64(2), volume.MirrorMFTClusterNumber())
	assert.Equal(t, int64(test_mft_entries), volume.NumberOfFileEntries())
}

func (self *VolumeTestSuite) TestVolumeInformation() {
	t := self.T()

	name, err := self.volume.Name()
	assert.NoError(t, err)
	assert.Equal(t, "TESTVOL", name)

	major, minor, err := self.volume.Version()
	assert.NoError(t, err)
	assert.Equal(t, uint8(3), major)
	assert.Equal(t, uint8(1), minor)

	flags, err := self.volume.Flags()
	assert.NoError(t, err)
	assert.Equal(t, uint16(0), flags)

	dict := self.volume.Dict()
	version, _ := dict.Get("Version")
	assert.Equal(t, "3.1", version)
	serial, _ := dict.Get("SerialNumber")
	assert.Equal(t, "0x1234567890abcdef", serial)
}

func (self *VolumeTestSuite) TestFileEntryByIndexBounds() {
	t := self.T()

	_, err := self.volume.FileEntryByIndex(-1)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = self.volume.FileEntryByIndex(test_mft_entries)
	assert.True(t, errors.Is(err, ErrNotFound))

	entry, err := self.volume.FileEntryByIndex(test_mft_entries - 1)
	assert.NoError(t, err)
	assert.False(t, entry.IsAllocated())
	assert.True(t, entry.IsEmpty())
	entry.Release()

	assert.Equal(t, 0, self.volume.OpenReferences())
}

func (self *VolumeTestSuite) TestCorruptEntries() {
	t := self.T()

	_, err := self.volume.FileEntryByIndex(14)
	assert.True(t, errors.Is(err, ErrCorruptRecord))

	_, err = self.volume.MFTEntryByIndex(14)
	assert.True(t, errors.Is(err, ErrCorruptRecord))

	entry, err := self.volume.FileEntryByIndex(28)
	assert.NoError(t, err)
	assert.True(t, entry.IsCorrupted())
	assert.False(t, entry.IsAllocated())
	entry.Release()
}

func (self *VolumeTestSuite) TestFileEntryByReference() {
	t := self.T()

	entry, err := self.volume.FileEntryByReference(MakeFileReference(17, 3))
	assert.NoError(t, err)
	assert.Equal(t, "Beta.bin", entry.Name())
	entry.Release()

	// A zero sequence matches any entry.
	entry, err = self.volume.FileEntryByReference(MakeFileReference(17, 0))
	assert.NoError(t, err)
	entry.Release()

	// The entry was reused.
	_, err = self.volume.FileEntryByReference(MakeFileReference(17, 2))
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, 0, self.volume.OpenReferences())
}

func (self *VolumeTestSuite) TestFileEntryByPath() {
	t := self.T()

	for path, expected := range map[string]int64{
		"":                           MFT_ENTRY_ROOT,
		"\\":                         MFT_ENTRY_ROOT,
		"\\alpha.txt":                16,
		"ALPHA.TXT":                  16,
		"/dir1/zeta.txt":             20,
		"\\dir1\\..\\Beta.bin":       17,
		"\\.\\dir1\\.\\zeta.txt":     20,
		"\\$Extend\\$UsnJrnl":        21,
		"\\longna~1.tex":             23,
		"\\LongName.Text":            23,
		"\\dir1\\..\\dir1\\ZETA.txt": 20,
	} {
		entry, err := self.volume.FileEntryByPath(path)
		assert.NoError(t, err, path)
		if err == nil {
			assert.Equal(t, expected, entry.Index(), path)
			entry.Release()
		}
	}

	_, err := self.volume.FileEntryByPath("\\nothere.txt")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = self.volume.FileEntryByPath("\\alpha.txt\\x")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Deleted entries are only in the index slack.
	_, err = self.volume.FileEntryByPath("\\deleted.txt")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, 0, self.volume.OpenReferences())
}

func (self *VolumeTestSuite) TestWalk() {
	t := self.T()

	result := []string{}
	err := self.volume.WalkContext(context.Background(),
		func(path string, entry *FileEntry) error {
			result = append(result, fmt.Sprintf("%s %d %d",
				path, entry.Index(), entry.Size()))
			return nil
		})
	assert.NoError(t, err)
	assert.Equal(t, []string{
		"\\$Extend 11 0",
		"\\$Extend\\$UsnJrnl 21 0",
		"\\$MFT 0 32768",
		"\\$Secure 9 0",
		"\\$Volume 3 0",
		"\\alpha.txt 16 12",
		"\\Beta.bin 17 5000",
		"\\comp.bin 26 4096",
		"\\dir1 18 0",
		"\\dir1\\zeta.txt 20 4",
		"\\frag.bin 24 4096",
		"\\link 22 0",
		"\\longname.text 23 4",
		"\\sparse.dat 19 4096",
		"\\zeta.txt 20 4",
	}, result)

	assert.Equal(t, 0, self.volume.OpenReferences())
}

func (self *VolumeTestSuite) TestWalkCallbackError() {
	t := self.T()

	stop := errors.New("stop")
	count := 0
	err := self.volume.WalkContext(context.Background(),
		func(path string, entry *FileEntry) error {
			count++
			if count == 3 {
				return stop
			}
			return nil
		})
	assert.Equal(t, stop, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 0, self.volume.OpenReferences())
}

func (self *VolumeTestSuite) TestWalkCancel() {
	t := self.T()

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	err := self.volume.WalkContext(ctx,
		func(path string, entry *FileEntry) error {
			count++
			cancel()
			return nil
		})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, count)
}

func (self *VolumeTestSuite) TestSignalAbort() {
	t := self.T()

	root, err := self.volume.RootDirectory()
	assert.NoError(t, err)
	defer root.Release()

	it := root.SubFileEntries()
	assert.True(t, it.Next())
	it.Value().Release()

	self.volume.SignalAbort()
	assert.False(t, it.Next())
	assert.True(t, errors.Is(it.Err(), ErrAborted))

	_, err = self.volume.FileEntryByPath("\\dir1\\zeta.txt")
	assert.True(t, errors.Is(err, ErrAborted))

	err = self.volume.WalkContext(context.Background(),
		func(path string, entry *FileEntry) error {
			return nil
		})
	assert.True(t, errors.Is(err, ErrAborted))

	// Still aborted later on until reset.
	_, err = self.volume.FileEntryByPath("alpha.txt")
	assert.True(t, errors.Is(err, ErrAborted))

	self.volume.ResetAbort()
	entry, err := self.volume.FileEntryByPath("\\dir1\\zeta.txt")
	assert.NoError(t, err)
	assert.Equal(t, int64(20), entry.Index())
	entry.Release()
}

func (self *VolumeTestSuite) TestClose() {
	t := self.T()

	entry, err := self.volume.FileEntryByIndex(16)
	assert.NoError(t, err)

	stream, err := entry.DefaultDataStream()
	assert.NoError(t, err)
	assert.Equal(t, 2, self.volume.OpenReferences())

	err = self.volume.Close()
	assert.True(t, errors.Is(err, ErrVolumeInUse))

	// Still usable.
	data, err := stream.ReadBufferAtOffset(5, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte("Hello"), data)

	stream.Release()
	entry.Release()

	// Releasing twice does not underflow.
	entry.Release()
	assert.Equal(t, 0, self.volume.OpenReferences())

	assert.NoError(t, self.volume.Close())
	assert.NoError(t, self.volume.Close())

	_, err = self.volume.FileEntryByIndex(16)
	assert.True(t, errors.Is(err, ErrVolumeClosed))
}

func (self *VolumeTestSuite) TestForceClose() {
	t := self.T()

	entry, err := self.volume.FileEntryByIndex(17)
	assert.NoError(t, err)

	stream, err := entry.DefaultDataStream()
	assert.NoError(t, err)

	assert.NoError(t, self.volume.ForceClose())
	assert.Equal(t, 0, self.volume.OpenReferences())

	_, err = stream.ReadBufferAtOffset(10, 0)
	assert.True(t, errors.Is(err, ErrVolumeClosed))

	_, err = entry.DefaultDataStream()
	assert.True(t, errors.Is(err, ErrVolumeClosed))
}

func (self *VolumeTestSuite) TestPurge() {
	t := self.T()

	entry, err := self.volume.FileEntryByPath("\\dir1\\zeta.txt")
	assert.NoError(t, err)
	entry.Release()

	self.volume.Purge()

	stats := self.volume.Stats()
	cache_any, _ := stats.Get("MFTEntryCache")
	assert.NotNil(t, cache_any)

	entry, err = self.volume.FileEntryByPath("\\dir1\\zeta.txt")
	assert.NoError(t, err)
	assert.Equal(t, int64(20), entry.Index())
	entry.Release()
}

func TestVolume(t *testing.T) {
	suite.Run(t, &VolumeTestSuite{})
}

func TestOpenVolumeInvalid(t *testing.T) {
	image := BuildSyntheticImage()
	copy(image[3:], "EXFAT   ")

	_, err := OpenVolumeBytes(image, GetDefaultOptions())
	assert.True(t, errors.Is(err, ErrSignatureMismatch))

	_, err = OpenVolumeBytes(image[:100], GetDefaultOptions())
	assert.True(t, errors.Is(err, ErrIO))

	// The $MFT record is gone.
	image = BuildSyntheticImage()
	copy(image[test_mft_cluster*test_cluster_size:], "XXXX")
	_, err = OpenVolumeBytes(image, GetDefaultOptions())
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestOpenVolumeReader(t *testing.T) {
	reader := bytes.NewReader(BuildSyntheticImage())

	// The size comes from the reader.
	volume, err := OpenVolume(reader, 0, Options{})
	assert.NoError(t, err)
	assert.Equal(t, int64(test_mft_entries), volume.NumberOfFileEntries())
	assert.NoError(t, volume.Close())

	// Zero options are filled with the defaults.
	assert.Equal(t, GetDefaultOptions().MaxLinks, volume.Options().MaxLinks)
}

func TestOpenVolumeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.img")
	assert.NoError(t, os.WriteFile(path, BuildSyntheticImage(), 0600))

	volume, err := OpenVolumeFile(path, GetDefaultOptions())
	assert.NoError(t, err)
	defer volume.Close()

	entry, err := volume.FileEntryByPath("\\Beta.bin")
	assert.NoError(t, err)
	defer entry.Release()

	stream, err := entry.DefaultDataStream()
	assert.NoError(t, err)
	defer stream.Release()

	data, err := stream.ReadBufferAtOffset(test_beta_size, 0)
	assert.NoError(t, err)
	assert.Equal(t, test_beta_size, len(data))
	assert.Equal(t, byte(4999%251), data[4999])

	_, err = OpenVolumeFile(filepath.Join(dir, "missing.img"), GetDefaultOptions())
	assert.Error(t, err)
}

func TestOpenVolumeSplitMFT(t *testing.T) {
	volume, err := OpenVolumeBytes(BuildSplitMFTImage(), GetDefaultOptions())
	assert.NoError(t, err)
	defer volume.ForceClose()

	assert.Equal(t, int64(test_mft_entries), volume.NumberOfFileEntries())

	// Entries past the first piece come from the extension record.
	entry, err := volume.FileEntryByIndex(27)
	assert.NoError(t, err)
	assert.Equal(t, "deleted.txt", entry.Name())
	assert.False(t, entry.IsAllocated())
	entry.Release()

	mft, err := volume.FileEntryByIndex(MFT_ENTRY_MFT)
	assert.NoError(t, err)
	defer mft.Release()

	extents, err := mft.Extents()
	assert.NoError(t, err)
	assert.Equal(t, []Extent{
		{Offset: test_mft_cluster * test_cluster_size, Size: 16 * test_cluster_size},
		{Offset: 70 * test_cluster_size, Size: 16 * test_cluster_size},
	}, extents)

	stream, err := GetDataForPath(volume, "dir1\\zeta.txt")
	assert.NoError(t, err)
	data, err := stream.ReadBufferAtOffset(len(test_zeta_data), 0)
	assert.NoError(t, err)
	assert.Equal(t, test_zeta_data, data)
	stream.Release()
}

// Opening the same image twice gives the same answers.
func TestOpenVolumeTwice(t *testing.T) {
	image := BuildSyntheticImage()

	describe := func() []string {
		volume, err := OpenVolumeBytes(image, GetDefaultOptions())
		assert.NoError(t, err)
		defer volume.ForceClose()

		result := []string{}
		for _, path := range []string{
			"alpha.txt", "alpha.txt:stream1", "Beta.bin",
			"dir1\\zeta.txt", "comp.bin", "frag.bin"} {
			stream, err := GetDataForPath(volume, path)
			assert.NoError(t, err)

			data, err := stream.ReadBufferAtOffset(int(stream.Size()), 0)
			assert.NoError(t, err)
			stream.Release()

			entry, err := volume.FileEntryByPath(strings.Split(path, ":")[0])
			assert.NoError(t, err)
			result = append(result, fmt.Sprintf("%v %v %x",
				path, entry.Index(), sha1.Sum(data)))
			entry.Release()
		}
		return result
	}

	first := describe()
	assert.Equal(t, 6, len(first))
	assert.Equal(t, first, describe())
}

// A raw device: reads work but the size is unknown.
type deviceReader struct {
	reader io.ReaderAt
}

func (self deviceReader) ReadAt(buf []byte, offset int64) (int, error) {
	return self.reader.ReadAt(buf, offset)
}

func TestOpenVolumeDevice(t *testing.T) {
	paged, err := NewPagedReader(
		deviceReader{bytes.NewReader(BuildSyntheticImage())}, 1024, 100)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), paged.Size())

	// The size comes from the boot sector.
	volume, err := OpenVolume(paged, 0, GetDefaultOptions())
	assert.NoError(t, err)
	defer volume.ForceClose()

	stream, err := GetDataForPath(volume, "Beta.bin")
	assert.NoError(t, err)
	defer stream.Release()

	data, err := stream.ReadBufferAtOffset(test_beta_size, 0)
	assert.NoError(t, err)
	assert.Equal(t, byte(4999%251), data[4999])

	// A paged reader over a sized reader knows its size.
	sized, err := NewPagedReader(bytes.NewReader(make([]byte, 100)), 1024, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), sized.Size())
}
