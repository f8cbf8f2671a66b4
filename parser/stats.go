package parser

import (
	"sync"

	"github.com/Velocidex/ordereddict"
)

var (
	STATS = Stats{}
)

// Global counters of decoded objects. Useful to spot runaway
// re-parsing when the caches are too small.
type Stats struct {
	mu sync.Mutex

	MFT_ENTRY         int
	NTFS_ATTRIBUTE    int
	FixUpRecord       int
	IndexNode         int
	Volume            int
	FileEntry         int
	DataStreamRead    int
	USN_RECORD        int
	LZNT1Decompressed int
}

func (self *Stats) inc(field *int) {
	self.mu.Lock()
	defer self.mu.Unlock()

	*field++
}

func (self *Stats) Inc_MFT_ENTRY()      { self.inc(&self.MFT_ENTRY) }
func (self *Stats) Inc_NTFS_ATTRIBUTE() { self.inc(&self.NTFS_ATTRIBUTE) }
func (self *Stats) Inc_FixUpRecord()    { self.inc(&self.FixUpRecord) }
func (self *Stats) Inc_IndexNode()      { self.inc(&self.IndexNode) }
func (self *Stats) Inc_Volume()         { self.inc(&self.Volume) }
func (self *Stats) Inc_FileEntry()      { self.inc(&self.FileEntry) }
func (self *Stats) Inc_DataStreamRead() { self.inc(&self.DataStreamRead) }
func (self *Stats) Inc_USN_RECORD()     { self.inc(&self.USN_RECORD) }
func (self *Stats) Inc_LZNT1()          { self.inc(&self.LZNT1Decompressed) }

func (self *Stats) Dict() *ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	return ordereddict.NewDict().
		Set("MFT_ENTRY", self.MFT_ENTRY).
		Set("NTFS_ATTRIBUTE", self.NTFS_ATTRIBUTE).
		Set("FixUpRecord", self.FixUpRecord).
		Set("IndexNode", self.IndexNode).
		Set("Volume", self.Volume).
		Set("FileEntry", self.FileEntry).
		Set("DataStreamRead", self.DataStreamRead).
		Set("USN_RECORD", self.USN_RECORD).
		Set("LZNT1Decompressed", self.LZNT1Decompressed)
}

func (self *Stats) DebugString() string {
	serialized, _ := self.Dict().MarshalJSON()
	return string(serialized)
}
