package parser

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// A small NTFS volume built in memory:
//
//	512 byte sectors, 1kb clusters, 128 clusters.
//	$MFT at cluster 4 with 32 entries of 1kb.
//
//	0  $MFT           16 alpha.txt (resident, ADS stream1)
//	3  $Volume        17 Beta.bin (5000 bytes at cluster 40)
//	5  root           18 dir1
//	9  $Secure        19 sparse.dat
//	11 $Extend        20 zeta.txt (linked in root and dir1)
//	14 bad fixup      21 $Extend\$UsnJrnl
//	27 deleted.txt    22 link -> alpha.txt
//	28 BAAD           23 longname.text (LONGNA~1.TEX)
//	                  24/25 frag.bin (attribute list)
//	                  26 comp.bin (LZNT1)
const (
	test_sector_size  = 512
	test_cluster_size = 1024
	test_record_size  = 1024
	test_mft_cluster  = 4
	test_mft_entries  = 32
	test_clusters     = 128

	// 2021-01-02 03:04:05 UTC
	test_filetime = uint64(132540302450000000)
	test_unixtime = 1609556645

	test_security_id = 0x100
	test_serial      = 0x1234567890ABCDEF

	test_beta_size = 5000
	test_usn_lcn   = 50
)

var (
	test_alpha_data = []byte("Hello world!")
	test_ads_data   = []byte("ads data")
	test_zeta_data  = []byte("zeta")

	// A self relative descriptor without owner, group or ACLs.
	test_security_descriptor = []byte{
		0x01, 0x00, 0x04, 0x80, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0}
)

func putUint16(b []byte, offset int, value uint16) {
	binary.LittleEndian.PutUint16(b[offset:], value)
}

func putUint32(b []byte, offset int, value uint32) {
	binary.LittleEndian.PutUint32(b[offset:], value)
}

func putUint64(b []byte, offset int, value uint64) {
	binary.LittleEndian.PutUint64(b[offset:], value)
}

func align8(n int) int {
	return (n + 7) &^ 7
}

func testSequence(index int64) uint16 {
	switch {
	case index == 0:
		return 1
	case index < 16:
		return uint16(index)
	case index == 17:
		return 3
	case index == 27:
		return 2
	}
	return 1
}

func testRef(index int64) uint64 {
	return MakeFileReference(uint64(index), testSequence(index))
}

// The minimal little endian encoding of the value.
func encodeRunValue(value int64, signed bool) []byte {
	for n := 1; n < 8; n++ {
		bits := uint(8 * n)
		if signed {
			if value >= -(1<<(bits-1)) && value < 1<<(bits-1) {
				return encodeBytes(value, n)
			}
		} else if value < 1<<bits {
			return encodeBytes(value, n)
		}
	}
	return encodeBytes(value, 8)
}

func encodeBytes(value int64, n int) []byte {
	result := make([]byte, n)
	for i := 0; i < n; i++ {
		result[i] = byte(value >> (8 * uint(i)))
	}
	return result
}

func encodeRunList(runs []DataRun) []byte {
	result := []byte{}
	last_lcn := int64(0)
	for _, run := range runs {
		length := encodeRunValue(run.Clusters, false)
		if run.IsSparse {
			result = append(result, byte(len(length)))
			result = append(result, length...)
			continue
		}

		delta := encodeRunValue(run.LCN-last_lcn, true)
		last_lcn = run.LCN
		result = append(result, byte(len(delta)<<4|len(length)))
		result = append(result, length...)
		result = append(result, delta...)
	}
	return append(result, 0)
}

type testAttribute struct {
	attr_type uint32
	name      string
	flags     uint16

	// Resident
	data []byte

	// Non resident
	non_resident     bool
	runs             []DataRun
	vcn_start        uint64
	vcn_end          uint64
	allocated        uint64
	size             uint64
	initialized      uint64
	compression_unit uint16
}

func resident(attr_type uint32, name string, data []byte) *testAttribute {
	return &testAttribute{attr_type: attr_type, name: name, data: data}
}

func nonResident(attr_type uint32, name string, runs []DataRun, size int64) *testAttribute {
	first := runs[0]
	last := runs[len(runs)-1]
	end := last.VCN + last.Clusters

	result := &testAttribute{
		attr_type:    attr_type,
		name:         name,
		non_resident: true,
		runs:         runs,
		vcn_start:    uint64(first.VCN),
		vcn_end:      uint64(end - 1),
	}

	// Only the first piece carries the sizes.
	if first.VCN == 0 {
		result.allocated = uint64(end * test_cluster_size)
		result.size = uint64(size)
		result.initialized = uint64(size)
	}
	return result
}

func (self *testAttribute) encode(id uint16) []byte {
	name := StringToUTF16(self.name)

	if !self.non_resident {
		name_offset := RESIDENT_HEADER_SIZE
		content_offset := align8(name_offset + len(name))
		length := align8(content_offset + len(self.data))

		b := make([]byte, length)
		putUint32(b, 0, self.attr_type)
		putUint32(b, 4, uint32(length))
		b[9] = byte(len(name) / 2)
		putUint16(b, 10, uint16(name_offset))
		putUint16(b, 12, self.flags)
		putUint16(b, 14, id)
		putUint32(b, 16, uint32(len(self.data)))
		putUint16(b, 20, uint16(content_offset))
		copy(b[name_offset:], name)
		copy(b[content_offset:], self.data)
		return b
	}

	header := NON_RESIDENT_HEADER_SIZE
	if self.compression_unit > 0 {
		header = COMPRESSED_HEADER_SIZE
	}
	run_list := encodeRunList(self.runs)
	run_list_offset := align8(header + len(name))
	length := align8(run_list_offset + len(run_list))

	b := make([]byte, length)
	putUint32(b, 0, self.attr_type)
	putUint32(b, 4, uint32(length))
	b[8] = 1
	b[9] = byte(len(name) / 2)
	putUint16(b, 10, uint16(header))
	putUint16(b, 12, self.flags)
	putUint16(b, 14, id)
	putUint64(b, 16, self.vcn_start)
	putUint64(b, 24, self.vcn_end)
	putUint16(b, 32, uint16(run_list_offset))
	putUint16(b, 34, self.compression_unit)
	putUint64(b, 40, self.allocated)
	putUint64(b, 48, self.size)
	putUint64(b, 56, self.initialized)
	if self.compression_unit > 0 {
		putUint64(b, 64, self.allocated)
	}
	copy(b[header:], name)
	copy(b[run_list_offset:], run_list)
	return b
}

// Protect every 512 byte stride with the update sequence number.
func writeTestFixups(b []byte, fixup_offset int) {
	usn := uint16(0x0001)
	putUint16(b, fixup_offset, usn)
	for i := 0; i < len(b)/FIXUP_STRIDE; i++ {
		end := (i+1)*FIXUP_STRIDE - 2
		copy(b[fixup_offset+2+2*i:], b[end:end+2])
		putUint16(b, end, usn)
	}
}

type testRecord struct {
	index      int64
	signature  string
	flags      uint16
	base       uint64
	link_count uint16
	attributes []*testAttribute

	corrupt_fixup bool
}

func (self *testRecord) encode() []byte {
	b := make([]byte, test_record_size)

	signature := self.signature
	if signature == "" {
		signature = "FILE"
	}
	copy(b, signature)

	putUint16(b, 4, 0x30)
	putUint16(b, 6, test_record_size/FIXUP_STRIDE+1)
	putUint64(b, 8, 0x1000+uint64(self.index))
	putUint16(b, 16, testSequence(self.index))
	link_count := self.link_count
	if link_count == 0 {
		link_count = 1
	}
	putUint16(b, 18, link_count)
	putUint16(b, 20, 0x38)
	putUint16(b, 22, self.flags)
	putUint32(b, 28, test_record_size)
	putUint64(b, 32, self.base)
	putUint32(b, 44, uint32(self.index))

	offset := 0x38
	for id, attr := range self.attributes {
		data := attr.encode(uint16(id))
		if offset+len(data)+8 > test_record_size {
			panic(fmt.Sprintf("MFT entry %d overflows", self.index))
		}
		copy(b[offset:], data)
		offset += len(data)
	}
	putUint32(b, offset, ATTR_TYPE_END)
	offset += 8

	putUint32(b, 24, uint32(offset))
	putUint16(b, 40, uint16(len(self.attributes)))

	writeTestFixups(b, 0x30)
	if self.corrupt_fixup {
		putUint16(b, FIXUP_STRIDE-2, 0xBAD0)
	}
	return b
}

func standardInformation(flags uint32, security_id uint32) []byte {
	b := make([]byte, 72)
	putUint64(b, 0, test_filetime)
	putUint64(b, 8, test_filetime+10000000)
	putUint64(b, 16, test_filetime+20000000)
	putUint64(b, 24, test_filetime+30000000)
	putUint32(b, 32, flags)
	putUint32(b, 52, security_id)
	putUint64(b, 64, 0x800)
	return b
}

func fileNameValue(parent uint64, name string, name_type uint8,
	flags uint32, size uint64) []byte {
	name16 := StringToUTF16(name)
	b := make([]byte, FILE_NAME_HEADER_SIZE+len(name16))
	putUint64(b, 0, parent)
	putUint64(b, 8, test_filetime)
	putUint64(b, 16, test_filetime+10000000)
	putUint64(b, 24, test_filetime+20000000)
	putUint64(b, 32, test_filetime+30000000)
	putUint64(b, 40, uint64(align8(int(size))))
	putUint64(b, 48, size)
	putUint32(b, 56, flags)
	b[64] = byte(len(name16) / 2)
	b[65] = name_type
	copy(b[66:], name16)
	return b
}

func fileNameIndexEntry(ref uint64, file_name []byte, sub_vcn int64) []byte {
	size := align8(INDEX_ENTRY_HEADER_SIZE + len(file_name))
	flags := uint16(0)
	if sub_vcn >= 0 {
		size += 8
		flags |= INDEX_ENTRY_FLAG_HAS_SUB_NODE
	}

	b := make([]byte, size)
	putUint64(b, 0, ref)
	putUint16(b, 8, uint16(size))
	putUint16(b, 10, uint16(len(file_name)))
	putUint16(b, 12, flags)
	copy(b[INDEX_ENTRY_HEADER_SIZE:], file_name)
	if sub_vcn >= 0 {
		putUint64(b, size-8, uint64(sub_vcn))
	}
	return b
}

func lastIndexEntry(sub_vcn int64) []byte {
	size := INDEX_ENTRY_HEADER_SIZE
	flags := uint16(INDEX_ENTRY_FLAG_IS_LAST)
	if sub_vcn >= 0 {
		size += 8
		flags |= INDEX_ENTRY_FLAG_HAS_SUB_NODE
	}

	b := make([]byte, size)
	putUint16(b, 8, uint16(size))
	putUint16(b, 12, flags)
	if sub_vcn >= 0 {
		putUint64(b, size-8, uint64(sub_vcn))
	}
	return b
}

// A view index entry carries data instead of a file reference.
func viewIndexEntry(key, data []byte) []byte {
	data_offset := INDEX_ENTRY_HEADER_SIZE + len(key)
	size := align8(data_offset + len(data))

	b := make([]byte, size)
	putUint16(b, 0, uint16(data_offset))
	putUint16(b, 2, uint16(len(data)))
	putUint16(b, 8, uint16(size))
	putUint16(b, 10, uint16(len(key)))
	copy(b[INDEX_ENTRY_HEADER_SIZE:], key)
	copy(b[data_offset:], data)
	return b
}

// Lay the entries out after the node header. Returns the end of the
// entries.
func writeIndexNode(b []byte, header_offset, entries_offset int,
	entries [][]byte, flags uint32) int {
	offset := header_offset + entries_offset
	for _, entry := range entries {
		copy(b[offset:], entry)
		offset += len(entry)
	}
	putUint32(b, header_offset, uint32(entries_offset))
	putUint32(b, header_offset+4, uint32(offset-header_offset))
	putUint32(b, header_offset+8, uint32(len(b)-header_offset))
	putUint32(b, header_offset+12, flags)
	return offset
}

func indexRoot(attr_type, collation uint32, entries [][]byte, flags uint32) []byte {
	size := INDEX_ROOT_HEADER_SIZE + INDEX_NODE_HEADER_SIZE
	for _, entry := range entries {
		size += len(entry)
	}

	b := make([]byte, size)
	putUint32(b, 0, attr_type)
	putUint32(b, 4, collation)
	putUint32(b, 8, test_cluster_size)
	b[12] = 1
	writeIndexNode(b, INDEX_ROOT_HEADER_SIZE, INDEX_NODE_HEADER_SIZE, entries, flags)
	return b
}

// An INDX block. The slack is written after the last entry.
func indexBlock(vcn int64, entries [][]byte, slack []byte) []byte {
	b := make([]byte, test_cluster_size)
	copy(b, "INDX")
	putUint16(b, 4, 0x28)
	putUint16(b, 6, test_cluster_size/FIXUP_STRIDE+1)
	putUint64(b, 16, uint64(vcn))

	end := writeIndexNode(b, INDX_HEADER_SIZE, 0x28, entries, 0)
	copy(b[end:], slack)

	writeTestFixups(b, 0x28)
	return b
}

func usnRecordV2(ref, parent uint64, usn int64, reason uint32, name string) []byte {
	name16 := StringToUTF16(name)
	length := align8(USN_RECORD_V2_SIZE + len(name16))

	b := make([]byte, length)
	putUint32(b, 0, uint32(length))
	putUint16(b, 4, 2)
	putUint64(b, 8, ref)
	putUint64(b, 16, parent)
	putUint64(b, 24, uint64(usn))
	putUint64(b, 32, test_filetime)
	putUint32(b, 40, reason)
	putUint32(b, 48, test_security_id)
	putUint32(b, 52, 0x20)
	putUint16(b, 56, uint16(len(name16)))
	putUint16(b, 58, USN_RECORD_V2_SIZE)
	copy(b[USN_RECORD_V2_SIZE:], name16)
	return b
}

func bootSector() []byte {
	b := make([]byte, BOOT_SECTOR_SIZE)
	copy(b, []byte{0xEB, 0x52, 0x90})
	copy(b[3:], NTFS_OEM_ID)
	putUint16(b, 0x0B, test_sector_size)
	b[0x0D] = test_cluster_size / test_sector_size
	putUint64(b, 0x28, test_clusters*test_cluster_size/test_sector_size)
	putUint64(b, 0x30, test_mft_cluster)
	putUint64(b, 0x38, 2)
	b[0x40] = 0xF6 // 2^10
	b[0x44] = 1    // 1 cluster
	putUint64(b, 0x48, test_serial)
	putUint16(b, 0x1FE, BOOT_SECTOR_SIGNATURE)
	return b
}

type testImage struct {
	data []byte
}

func (self *testImage) writeCluster(lcn int64, data []byte) {
	copy(self.data[lcn*test_cluster_size:], data)
}

func (self *testImage) writeRecord(record *testRecord) {
	copy(self.data[test_mft_cluster*test_cluster_size+
		record.index*test_record_size:], record.encode())
}

type testIndexEntry struct {
	index     int64
	file_name []byte
}

func (self testIndexEntry) name() string {
	file_name, _ := NewFILE_NAME(self.file_name)
	return strings.ToUpper(file_name.Name())
}

func sortedIndexEntries(entries []testIndexEntry) [][]byte {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].name() < entries[j].name()
	})

	result := [][]byte{}
	for _, entry := range entries {
		result = append(result, fileNameIndexEntry(
			testRef(entry.index), entry.file_name, -1))
	}
	return result
}

func attributeListEntry(attr_type uint32, vcn uint64, ref uint64, id uint16) []byte {
	b := make([]byte, 32)
	putUint32(b, 0, attr_type)
	putUint16(b, 4, 32)
	b[7] = ATTRIBUTE_LIST_ENTRY_SIZE
	putUint64(b, 8, vcn)
	putUint64(b, 16, ref)
	putUint16(b, 24, id)
	return b
}

func concat(parts ...[]byte) []byte {
	result := []byte{}
	for _, part := range parts {
		result = append(result, part...)
	}
	return result
}

func BuildSyntheticImage() []byte {
	image := &testImage{data: make([]byte, test_clusters*test_cluster_size)}
	copy(image.data, bootSector())

	root := testRef(MFT_ENTRY_ROOT)
	dir1 := testRef(18)
	allocated := uint16(MFT_ENTRY_FLAG_ALLOCATED)
	directory := uint16(MFT_ENTRY_FLAG_ALLOCATED | MFT_ENTRY_FLAG_DIRECTORY)
	dir_flags := uint32(0x10 | FILE_ATTRIBUTE_DIRECTORY_INDEX)
	win32_dos := uint8(FILE_NAME_NAMESPACE_DOS_WIN32)

	names := map[int64][]byte{
		0:  fileNameValue(root, "$MFT", win32_dos, 0x6, test_mft_entries*test_record_size),
		3:  fileNameValue(root, "$Volume", win32_dos, 0x6, 0),
		5:  fileNameValue(root, ".", win32_dos, 0x6|dir_flags, 0),
		9:  fileNameValue(root, "$Secure", win32_dos, 0x6, 0),
		11: fileNameValue(root, "$Extend", win32_dos, 0x6|dir_flags, 0),
		16: fileNameValue(root, "alpha.txt", win32_dos, 0x20, uint64(len(test_alpha_data))),
		17: fileNameValue(root, "Beta.bin", win32_dos, 0x20, test_beta_size),
		18: fileNameValue(root, "dir1", win32_dos, dir_flags, 0),
		19: fileNameValue(root, "sparse.dat", win32_dos, 0x220, 4096),
		20: fileNameValue(root, "zeta.txt", win32_dos, 0x20, uint64(len(test_zeta_data))),
		21: fileNameValue(testRef(11), "$UsnJrnl", win32_dos, 0x26, 0),
		22: fileNameValue(root, "link", win32_dos, 0x420, 0),
		23: fileNameValue(root, "longname.text", FILE_NAME_NAMESPACE_WIN32, 0x20, 4),
		24: fileNameValue(root, "frag.bin", win32_dos, 0x20, 4096),
		26: fileNameValue(root, "comp.bin", win32_dos, 0x820, 4096),
		27: fileNameValue(root, "deleted.txt", win32_dos, 0x20, 4),
	}
	short_name := fileNameValue(root, "LONGNA~1.TEX", FILE_NAME_NAMESPACE_DOS, 0x20, 4)
	zeta_in_dir1 := fileNameValue(dir1, "zeta.txt", win32_dos, 0x20, uint64(len(test_zeta_data)))

	si := func(flags uint32) *testAttribute {
		return resident(ATTR_TYPE_STANDARD_INFORMATION, "", standardInformation(flags, 0))
	}
	fn := func(index int64) *testAttribute {
		return resident(ATTR_TYPE_FILE_NAME, "", names[index])
	}

	// $MFT
	image.writeRecord(&testRecord{
		index: 0, flags: allocated,
		attributes: []*testAttribute{
			si(0x6), fn(0),
			nonResident(ATTR_TYPE_DATA, "", []DataRun{
				{VCN: 0, Clusters: test_mft_entries, LCN: test_mft_cluster}},
				test_mft_entries*test_record_size),
		},
	})

	// $Volume
	volume_information := make([]byte, 12)
	volume_information[8] = 3
	volume_information[9] = 1
	image.writeRecord(&testRecord{
		index: 3, flags: allocated,
		attributes: []*testAttribute{
			si(0x6), fn(3),
			resident(ATTR_TYPE_VOLUME_NAME, "", StringToUTF16("TESTVOL")),
			resident(ATTR_TYPE_VOLUME_INFORMATION, "", volume_information),
		},
	})

	// The root directory is a two level tree: the root node holds
	// dir1 and points at two INDX blocks.
	low := sortedIndexEntries([]testIndexEntry{
		{11, names[11]}, {0, names[0]}, {9, names[9]}, {3, names[3]},
		{5, names[5]}, {16, names[16]}, {17, names[17]}, {26, names[26]},
	})
	high := sortedIndexEntries([]testIndexEntry{
		{24, names[24]}, {22, names[22]}, {23, names[23]}, {23, short_name},
		{19, names[19]}, {20, names[20]},
	})
	deleted_entry := fileNameIndexEntry(testRef(27), names[27], -1)

	image.writeCluster(36, indexBlock(0, append(low, lastIndexEntry(-1)), nil))
	image.writeCluster(37, indexBlock(1, append(high, lastIndexEntry(-1)), deleted_entry))

	image.writeRecord(&testRecord{
		index: 5, flags: directory,
		attributes: []*testAttribute{
			si(0x16), fn(5),
			resident(ATTR_TYPE_INDEX_ROOT, "$I30", indexRoot(
				ATTR_TYPE_FILE_NAME, COLLATION_FILE_NAME, [][]byte{
					fileNameIndexEntry(dir1, names[18], 0),
					lastIndexEntry(1),
				}, 1)),
			nonResident(ATTR_TYPE_INDEX_ALLOCATION, "$I30", []DataRun{
				{VCN: 0, Clusters: 2, LCN: 36}}, 2*test_cluster_size),
			resident(ATTR_TYPE_BITMAP, "$I30", []byte{0x03, 0, 0, 0, 0, 0, 0, 0}),
		},
	})

	// $Secure
	sds_header := make([]byte, SDS_ENTRY_HEADER_SIZE)
	putUint32(sds_header, 0, 0x12345678)
	putUint32(sds_header, 4, test_security_id)
	putUint64(sds_header, 8, 0)
	putUint32(sds_header, 16, uint32(SDS_ENTRY_HEADER_SIZE+len(test_security_descriptor)))
	sii_key := make([]byte, 4)
	putUint32(sii_key, 0, test_security_id)

	image.writeRecord(&testRecord{
		index: 9, flags: allocated,
		attributes: []*testAttribute{
			si(0x6), fn(9),
			resident(ATTR_TYPE_DATA, "$SDS", concat(sds_header, test_security_descriptor)),
			resident(ATTR_TYPE_INDEX_ROOT, "$SII", indexRoot(
				0, COLLATION_NTOFS_ULONG, [][]byte{
					viewIndexEntry(sii_key, sds_header),
					lastIndexEntry(-1),
				}, 0)),
		},
	})

	// $Extend
	image.writeRecord(&testRecord{
		index: 11, flags: directory,
		attributes: []*testAttribute{
			si(0x6), fn(11),
			resident(ATTR_TYPE_INDEX_ROOT, "$I30", indexRoot(
				ATTR_TYPE_FILE_NAME, COLLATION_FILE_NAME, [][]byte{
					fileNameIndexEntry(testRef(21), names[21], -1),
					lastIndexEntry(-1),
				}, 0)),
		},
	})

	// A torn write.
	image.writeRecord(&testRecord{
		index: 14, flags: allocated, corrupt_fixup: true,
		attributes: []*testAttribute{si(0x20)},
	})

	image.writeRecord(&testRecord{
		index: 16, flags: allocated,
		attributes: []*testAttribute{
			resident(ATTR_TYPE_STANDARD_INFORMATION, "",
				standardInformation(0x20, test_security_id)),
			fn(16),
			resident(ATTR_TYPE_DATA, "", test_alpha_data),
			resident(ATTR_TYPE_DATA, "stream1", test_ads_data),
		},
	})

	beta := make([]byte, test_beta_size)
	for i := range beta {
		beta[i] = byte(i % 251)
	}
	image.writeCluster(40, beta)
	image.writeRecord(&testRecord{
		index: 17, flags: allocated,
		attributes: []*testAttribute{
			si(0x20), fn(17),
			nonResident(ATTR_TYPE_DATA, "", []DataRun{
				{VCN: 0, Clusters: 5, LCN: 40}}, test_beta_size),
		},
	})

	image.writeRecord(&testRecord{
		index: 18, flags: directory,
		attributes: []*testAttribute{
			si(0x10), fn(18),
			resident(ATTR_TYPE_INDEX_ROOT, "$I30", indexRoot(
				ATTR_TYPE_FILE_NAME, COLLATION_FILE_NAME, [][]byte{
					fileNameIndexEntry(testRef(20), zeta_in_dir1, -1),
					lastIndexEntry(-1),
				}, 0)),
		},
	})

	image.writeCluster(46, []byte(strings.Repeat("S", 2*test_cluster_size)))
	sparse_data := nonResident(ATTR_TYPE_DATA, "", []DataRun{
		{VCN: 0, Clusters: 2, IsSparse: true},
		{VCN: 2, Clusters: 2, LCN: 46}}, 4096)
	sparse_data.flags = ATTRIBUTE_FLAG_SPARSE
	image.writeRecord(&testRecord{
		index: 19, flags: allocated,
		attributes: []*testAttribute{si(0x220), fn(19), sparse_data},
	})

	image.writeRecord(&testRecord{
		index: 20, flags: allocated, link_count: 2,
		attributes: []*testAttribute{
			si(0x20), fn(20),
			resident(ATTR_TYPE_FILE_NAME, "", zeta_in_dir1),
			resident(ATTR_TYPE_DATA, "", test_zeta_data),
		},
	})

	// The journal starts with a sparse range like a journal which
	// was truncated.
	image.writeCluster(test_usn_lcn, concat(
		usnRecordV2(testRef(16), root, 2048, 0x100, "alpha.txt"),
		usnRecordV2(testRef(17), root, 2128, 0x2, "Beta.bin")))

	usn_max := make([]byte, 32)
	putUint64(usn_max, 0, 0x2000000)
	putUint64(usn_max, 8, 0x800000)
	putUint64(usn_max, 16, 0x01D6E0B2C3D4E5F6)

	journal := nonResident(ATTR_TYPE_DATA, "$J", []DataRun{
		{VCN: 0, Clusters: 2, IsSparse: true},
		{VCN: 2, Clusters: 2, LCN: test_usn_lcn}}, 4096)
	journal.flags = ATTRIBUTE_FLAG_SPARSE
	image.writeRecord(&testRecord{
		index: 21, flags: allocated,
		attributes: []*testAttribute{
			si(0x26), fn(21), journal,
			resident(ATTR_TYPE_DATA, "$Max", usn_max),
		},
	})

	target := StringToUTF16("alpha.txt")
	reparse := make([]byte, 8+12+2*len(target))
	putUint32(reparse, 0, IO_REPARSE_TAG_SYMLINK)
	putUint16(reparse, 4, uint16(12+2*len(target)))
	putUint16(reparse, 8, 0)
	putUint16(reparse, 10, uint16(len(target)))
	putUint16(reparse, 12, uint16(len(target)))
	putUint16(reparse, 14, uint16(len(target)))
	putUint32(reparse, 16, SYMLINK_FLAG_RELATIVE)
	copy(reparse[20:], target)
	copy(reparse[20+len(target):], target)
	image.writeRecord(&testRecord{
		index: 22, flags: allocated,
		attributes: []*testAttribute{
			si(FILE_ATTRIBUTE_REPARSE_POINT), fn(22),
			resident(ATTR_TYPE_REPARSE_POINT, "", reparse),
		},
	})

	image.writeRecord(&testRecord{
		index: 23, flags: allocated,
		attributes: []*testAttribute{
			si(0x20), fn(23),
			resident(ATTR_TYPE_FILE_NAME, "", short_name),
			resident(ATTR_TYPE_DATA, "", []byte("long")),
		},
	})

	// frag.bin keeps the second half of its $DATA in entry 25.
	for i := int64(0); i < 4; i++ {
		image.writeCluster(52+i, []byte(strings.Repeat(
			string(rune('a'+i)), test_cluster_size)))
	}
	image.writeRecord(&testRecord{
		index: 24, flags: allocated,
		attributes: []*testAttribute{
			si(0x20), fn(24),
			resident(ATTR_TYPE_ATTRIBUTE_LIST, "", concat(
				attributeListEntry(ATTR_TYPE_STANDARD_INFORMATION, 0, testRef(24), 0),
				attributeListEntry(ATTR_TYPE_FILE_NAME, 0, testRef(24), 1),
				attributeListEntry(ATTR_TYPE_DATA, 0, testRef(24), 3),
				attributeListEntry(ATTR_TYPE_DATA, 2, testRef(25), 0))),
			fragPiece(0, 52),
		},
	})
	image.writeRecord(&testRecord{
		index: 25, flags: allocated, base: testRef(24),
		attributes: []*testAttribute{fragPiece(2, 54)},
	})

	// A single LZNT1 chunk: a literal 'A' and a back reference
	// repeating it 4095 times.
	compressed := nonResident(ATTR_TYPE_DATA, "", []DataRun{
		{VCN: 0, Clusters: 1, LCN: 56},
		{VCN: 1, Clusters: 15, IsSparse: true}}, 4096)
	compressed.flags = ATTRIBUTE_FLAG_COMPRESSED
	compressed.compression_unit = DEFAULT_COMPRESSION_UNIT
	image.writeCluster(56, []byte{0x03, 0xB0, 0x02, 'A', 0xFC, 0x0F})
	image.writeRecord(&testRecord{
		index: 26, flags: allocated,
		attributes: []*testAttribute{si(0x820), fn(26), compressed},
	})

	// Deleted: the entry is no longer in use.
	image.writeRecord(&testRecord{
		index: 27,
		attributes: []*testAttribute{
			si(0x20), fn(27),
			resident(ATTR_TYPE_DATA, "", []byte("gone")),
		},
	})

	image.writeRecord(&testRecord{
		index: 28, signature: "BAAD",
		attributes: []*testAttribute{si(0x20)},
	})

	return image.data
}

// A 2 cluster piece of frag.bin's $DATA.
func fragPiece(vcn, lcn int64) *testAttribute {
	piece := nonResident(ATTR_TYPE_DATA, "", []DataRun{
		{VCN: vcn, Clusters: 2, LCN: lcn}}, 4096)
	if vcn == 0 {
		piece.allocated = 4096
	}
	return piece
}

// The same volume with the $MFT $DATA split in two pieces. Record 0
// maps VCN 0-15 and lists the second piece, VCN 16-31, which lives in
// extension record 15 and points at a relocated copy of the second
// half of the table.
func BuildSplitMFTImage() []byte {
	image := &testImage{data: BuildSyntheticImage()}

	half := int64(test_mft_entries / 2)
	relocated := int64(70)
	start := (test_mft_cluster + half) * test_cluster_size
	end := start + half*test_record_size
	copy(image.data[relocated*test_cluster_size:], image.data[start:end])
	for i := start; i < end; i++ {
		image.data[i] = 0
	}

	first := nonResident(ATTR_TYPE_DATA, "", []DataRun{
		{VCN: 0, Clusters: half, LCN: test_mft_cluster}},
		test_mft_entries*test_record_size)
	first.allocated = test_mft_entries * test_record_size

	second := nonResident(ATTR_TYPE_DATA, "", []DataRun{
		{VCN: half, Clusters: half, LCN: relocated}}, 0)

	image.writeRecord(&testRecord{
		index: 0, flags: MFT_ENTRY_FLAG_ALLOCATED,
		attributes: []*testAttribute{
			resident(ATTR_TYPE_STANDARD_INFORMATION, "", standardInformation(0x6, 0)),
			resident(ATTR_TYPE_FILE_NAME, "", fileNameValue(
				testRef(MFT_ENTRY_ROOT), "$MFT", FILE_NAME_NAMESPACE_DOS_WIN32,
				0x6, test_mft_entries*test_record_size)),
			resident(ATTR_TYPE_ATTRIBUTE_LIST, "", concat(
				attributeListEntry(ATTR_TYPE_STANDARD_INFORMATION, 0, testRef(0), 0),
				attributeListEntry(ATTR_TYPE_FILE_NAME, 0, testRef(0), 1),
				attributeListEntry(ATTR_TYPE_DATA, 0, testRef(0), 3),
				attributeListEntry(ATTR_TYPE_DATA, uint64(half), testRef(half), 0))),
			first,
		},
	})
	image.writeRecord(&testRecord{
		index: half, flags: MFT_ENTRY_FLAG_ALLOCATED, base: testRef(0),
		attributes: []*testAttribute{second},
	})

	return image.data
}

func openTestVolume(options Options) (*Volume, error) {
	return OpenVolumeBytes(BuildSyntheticImage(), options)
}

// Extract the $MFT the way a collection tool would.
func BuildSyntheticMFT() []byte {
	image := BuildSyntheticImage()
	start := test_mft_cluster * test_cluster_size
	return image[start : start+test_mft_entries*test_record_size]
}
