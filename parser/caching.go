// Cache the names of MFT entries. Resolving a path visits the same
// parent directories over and over so we only keep what is needed
// for that.

package parser

import (
	"sync"

	"github.com/Velocidex/ordereddict"
)

type FNSummary struct {
	Name                 string
	NameType             string
	ParentEntryNumber    uint64
	ParentSequenceNumber uint16
}

type MFTEntrySummary struct {
	Sequence  uint16
	Allocated bool
	Filenames []FNSummary
}

type MFTEntryCache struct {
	mu sync.Mutex

	volume *Volume

	lru *LRU

	preloaded map[uint64]*MFTEntrySummary
}

func NewMFTEntryCache(volume *Volume) *MFTEntryCache {
	lru, _ := NewLRU(volume.options.SummaryCacheSize, nil, "MFTEntrySummary")
	return &MFTEntryCache{
		volume:    volume,
		lru:       lru,
		preloaded: make(map[uint64]*MFTEntrySummary),
	}
}

func (self *MFTEntryCache) Stats() *ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.lru.Stats().Set("Preloaded", len(self.preloaded))
}

// Preloaded entries survive a purge.
func (self *MFTEntryCache) Purge() {
	self.lru.Purge()
}

// Register historical knowledge about an entry, for example names
// recovered from the USN journal for entries since reused. When the
// MFT entry's sequence does not match the one a reference needs, the
// preloaded summary is used instead.
func (self *MFTEntryCache) SetPreload(id uint64, seq uint16,
	cb func(entry *MFTEntrySummary) (*MFTEntrySummary, bool)) {
	self.mu.Lock()
	defer self.mu.Unlock()

	key := MakeFileReference(id, seq)
	new_entry, updated := cb(self.preloaded[key])
	if updated {
		self.preloaded[key] = new_entry
	}
}

// GetSummary returns the summary of the MFT entry. The sequence is a
// hint: if neither the MFT nor the preloaded set has a matching
// sequence, the current MFT entry is returned and callers report the
// mismatch.
func (self *MFTEntryCache) GetSummary(
	id uint64, seq uint16) (*MFTEntrySummary, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	res, err := self.getSummary(id)
	if err != nil {
		return nil, err
	}

	if res.Sequence != seq {
		preloaded, ok := self.preloaded[MakeFileReference(id, seq)]
		if ok {
			return preloaded, nil
		}
	}

	return res, nil
}

func (self *MFTEntryCache) getSummary(id uint64) (*MFTEntrySummary, error) {
	res_any, pres := self.lru.Get(int(id))
	if pres {
		res, ok := res_any.(*MFTEntrySummary)
		if ok {
			return res, nil
		}
	}

	entry, err := self.volume.fileEntryByIndex(int64(id))
	if err != nil {
		return nil, err
	}

	cache_record := &MFTEntrySummary{
		Sequence:  entry.mft_entry.Sequence_value(),
		Allocated: entry.IsAllocated(),
	}
	for _, fn := range entry.FileNames() {
		cache_record.Filenames = append(cache_record.Filenames,
			FNSummary{
				Name:                 fn.Name(),
				NameType:             fn.NameType(),
				ParentEntryNumber:    fn.MftReference(),
				ParentSequenceNumber: fn.Seq_num(),
			})
	}

	self.lru.Add(int(id), cache_record)
	return cache_record, nil
}
