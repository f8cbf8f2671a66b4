package parser

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootDirectoryIndex(t *testing.T, volume *Volume) *Index {
	root, err := volume.RootDirectory()
	require.NoError(t, err)
	defer root.Release()

	index, err := root.DirectoryIndex()
	require.NoError(t, err)
	return index
}

func TestIndexWalk(t *testing.T) {
	volume, err := openTestVolume(GetDefaultOptions())
	require.NoError(t, err)
	defer volume.ForceClose()

	index := rootDirectoryIndex(t, volume)

	entries, err := index.Walk().All()
	require.NoError(t, err)

	names := []string{}
	for _, entry := range entries {
		file_name, err := entry.File()
		require.NoError(t, err)
		names = append(names, file_name.Name())
	}

	// Collation order is case insensitive.
	assert.Equal(t, []string{
		"$Extend", "$MFT", "$Secure", "$Volume", ".",
		"alpha.txt", "Beta.bin", "comp.bin", "dir1", "frag.bin",
		"link", "longname.text", "LONGNA~1.TEX", "sparse.dat", "zeta.txt",
	}, names)

	// Each walk starts over.
	entries, err = index.Walk().All()
	require.NoError(t, err)
	assert.Equal(t, 15, len(entries))

	nodes, err := index.Nodes()
	require.NoError(t, err)
	assert.Equal(t, 3, len(nodes))
	assert.Equal(t, int64(-1), nodes[0].VCN)
	assert.Equal(t, int64(1), nodes[2].VCN)
}

func TestIndexLookup(t *testing.T) {
	volume, err := openTestVolume(GetDefaultOptions())
	require.NoError(t, err)
	defer volume.ForceClose()

	index := rootDirectoryIndex(t, volume)

	for _, name := range []string{"alpha.txt", "ALPHA.TXT", "Alpha.Txt"} {
		entry, err := index.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, uint64(16), entry.MftReference())
	}

	// In the root node itself.
	entry, err := index.Lookup("DIR1")
	require.NoError(t, err)
	assert.Equal(t, testRef(18), entry.FileReference())

	// The short name has its own entry.
	entry, err = index.Lookup("longna~1.tex")
	require.NoError(t, err)
	assert.Equal(t, uint64(23), entry.MftReference())

	for _, name := range []string{"missing", "zzz", "!", "alpha"} {
		_, err = index.Lookup(name)
		assert.True(t, errors.Is(err, ErrNotFound), name)
	}
}

func TestExtractI30List(t *testing.T) {
	volume, err := openTestVolume(GetDefaultOptions())
	require.NoError(t, err)
	defer volume.ForceClose()

	root, err := volume.RootDirectory()
	require.NoError(t, err)
	defer root.Release()

	infos, err := ExtractI30List(root)
	require.NoError(t, err)
	require.Equal(t, 16, len(infos))

	slack := []*FileInfo{}
	for _, info := range infos {
		if info.IsSlack {
			slack = append(slack, info)
		}
	}
	require.Equal(t, 1, len(slack))

	assert.Equal(t, "deleted.txt", slack[0].Name)
	assert.Equal(t, "27", slack[0].MFTId)
	assert.Equal(t, "DOS+Win32", slack[0].NameType)
	assert.Equal(t, int64(4), slack[0].Size)
	assert.Equal(t, int64(712), slack[0].SlackOffset)
	assert.Equal(t, int64(test_unixtime), slack[0].Btime.Unix())

	// Files are not directories.
	beta, err := volume.FileEntryByPath("Beta.bin")
	require.NoError(t, err)
	defer beta.Release()

	_, err = ExtractI30List(beta)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// A view index keyed by a 32 bit integer like $Secure:$SII.
func TestIndexUlongCollation(t *testing.T) {
	entries := [][]byte{}
	for _, id := range []uint32{0x100, 0x102, 0x10000} {
		key := make([]byte, 4)
		putUint32(key, 0, id)
		entries = append(entries, viewIndexEntry(key, []byte("data")))
	}
	entries = append(entries, lastIndexEntry(-1))

	root, err := NewINDEX_ROOT(indexRoot(0, COLLATION_NTOFS_ULONG, entries, 0))
	require.NoError(t, err)

	index := NewIndex(root, nil, 0, nil, test_cluster_size, nil)

	needle := make([]byte, 4)
	putUint32(needle, 0, 0x102)
	entry, err := index.LookupKey(needle)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), entry.Data())

	// Keys compare as numbers, not as little endian bytes.
	putUint32(needle, 0, 0x10000)
	entry, err = index.LookupKey(needle)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), entry.Data())

	putUint32(needle, 0, 0x101)
	_, err = index.LookupKey(needle)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func newTestAllocationIndex(t *testing.T, blocks ...[]byte) *Index {
	file_name := fileNameValue(testRef(MFT_ENTRY_ROOT), "a", FILE_NAME_NAMESPACE_WIN32, 0, 0)
	root, err := NewINDEX_ROOT(indexRoot(ATTR_TYPE_FILE_NAME, COLLATION_FILE_NAME,
		[][]byte{fileNameIndexEntry(testRef(16), file_name, 0), lastIndexEntry(-1)}, 1))
	require.NoError(t, err)

	allocation := concat(blocks...)
	return NewIndex(root, bytes.NewReader(allocation), int64(len(allocation)),
		nil, test_cluster_size, nil)
}

func TestIndexCorrupt(t *testing.T) {
	file_name := fileNameValue(testRef(MFT_ENTRY_ROOT), "b", FILE_NAME_NAMESPACE_WIN32, 0, 0)

	// The block points back at itself.
	index := newTestAllocationIndex(t, indexBlock(0, [][]byte{
		fileNameIndexEntry(testRef(17), file_name, 0), lastIndexEntry(-1)}, nil))
	_, err := index.Walk().All()
	assert.True(t, errors.Is(err, ErrCorruptIndex))

	// The block claims to live elsewhere.
	index = newTestAllocationIndex(t, indexBlock(5, [][]byte{lastIndexEntry(-1)}, nil))
	_, err = index.Lookup("0")
	assert.True(t, errors.Is(err, ErrCorruptIndex))

	// Not an INDX block.
	index = newTestAllocationIndex(t, make([]byte, test_cluster_size))
	_, err = index.Nodes()
	assert.True(t, errors.Is(err, ErrCorruptIndex))

	// Torn write.
	block := indexBlock(0, [][]byte{lastIndexEntry(-1)}, nil)
	putUint16(block, FIXUP_STRIDE-2, 0xBAD0)
	index = newTestAllocationIndex(t, block)
	_, err = index.Walk().All()
	assert.True(t, errors.Is(err, ErrCorruptIndex))

	// The sub node is beyond the allocation.
	index = newTestAllocationIndex(t)
	_, err = index.Walk().All()
	assert.True(t, errors.Is(err, ErrCorruptIndex))
}
