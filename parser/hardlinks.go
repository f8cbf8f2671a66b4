/* Find all the paths an MFT entry is known by.

   A file may be linked into several directories (hardlinks). Each
   link adds another $FILE_NAME attribute to the MFT entry pointing
   at a different parent:

   C:> fsutil.exe hardlink create C:/users/test/X.txt "C:/users/test/downloads/X.txt"
   Hardlink created for C:\users\test\X.txt <<===>> C:\users\test\downloads\X.txt

   We follow every parent reference up to the root directory using
   the summary cache, so each directory is only parsed once.
*/

package parser

import (
	"fmt"
	"strings"
)

type Visitor struct {
	Paths [][]string
	Max   int
}

func (self *Visitor) Add(idx int, depth int) int {
	self.Paths = append(self.Paths, CopySlice(self.Paths[idx][:depth]))
	return len(self.Paths) - 1
}

func (self *Visitor) AddComponent(idx int, component string) {
	self.Paths[idx] = append(self.Paths[idx], component)
}

// Paths are built leaf first.
func (self *Visitor) Components(prefix []string) [][]string {
	result := make([][]string, 0, len(self.Paths))
	for _, p := range self.Paths {
		ReverseStringSlice(p)
		result = append(result, append(CopySlice(prefix), p...))
	}
	return result
}

// All the paths leading to the MFT entry, as lists of components
// starting below the root. At most max paths are returned (0 uses
// Options.MaxLinks).
func GetHardLinks(volume *Volume, mft_id uint64, max int) [][]string {
	if max == 0 {
		max = volume.options.MaxLinks
	}

	visitor := &Visitor{
		Paths: [][]string{{}},
		Max:   max,
	}

	summary, err := volume.summary_cache.GetSummary(mft_id, 0)
	if err != nil {
		return nil
	}

	if mft_id != MFT_ENTRY_ROOT {
		getNames(volume, summary, visitor, 0, 0)
	}

	return visitor.Components(volume.options.PrefixComponents)
}

func getNames(volume *Volume, summary *MFTEntrySummary,
	visitor *Visitor, idx, depth int) {

	if depth > volume.options.MaxDirectoryDepth {
		visitor.AddComponent(idx, "<DirTooDeep>")
		visitor.AddComponent(idx, "<Err>")
		return
	}

	filenames := []FNSummary{}
	for _, fn := range summary.Filenames {
		switch fn.NameType {
		case "Win32", "DOS+Win32", "POSIX":
			filenames = append(filenames, fn)
		case "DOS":
			if volume.options.IncludeShortNames {
				filenames = append(filenames, fn)
			}
		}
	}

	if len(filenames) == 0 {
		visitor.AddComponent(idx, "<Err>")
		return
	}

	for i, fn := range filenames {
		// The first name continues the current path, the others
		// fork a new one.
		visitor_idx := idx
		if i > 0 {
			if len(visitor.Paths) >= visitor.Max {
				return
			}
			visitor_idx = visitor.Add(idx, depth)
		}

		visitor.AddComponent(visitor_idx, fn.Name)

		if fn.ParentEntryNumber == MFT_ENTRY_ROOT {
			continue
		}

		parent, err := volume.summary_cache.GetSummary(
			fn.ParentEntryNumber, fn.ParentSequenceNumber)
		if err != nil {
			visitor.AddComponent(visitor_idx, err.Error())
			visitor.AddComponent(visitor_idx, "<Err>")
			continue
		}

		if fn.ParentSequenceNumber != parent.Sequence {
			visitor.AddComponent(visitor_idx,
				fmt.Sprintf("<Parent %v-%v need %v>", fn.ParentEntryNumber,
					parent.Sequence, fn.ParentSequenceNumber))
			visitor.AddComponent(visitor_idx, "<Err>")
			continue
		}

		getNames(volume, parent, visitor, visitor_idx, depth+1)
	}
}

// The first path of the entry, \ separated and starting at the
// root.
func GetFullPath(volume *Volume, mft_id uint64) (string, error) {
	links := GetHardLinks(volume, mft_id, 1)
	if len(links) == 0 {
		return "", notFoundf("MFT entry %d has no path", mft_id)
	}
	return "\\" + strings.Join(links[0], "\\"), nil
}

// All the \ separated paths of the entry.
func (self *FileEntry) Links() []string {
	result := []string{}
	for _, components := range GetHardLinks(self.volume, uint64(self.Index()), 0) {
		result = append(result, "\\"+strings.Join(components, "\\"))
	}
	return result
}

// The first path the entry is known by.
func (self *FileEntry) FullPath() (string, error) {
	return GetFullPath(self.volume, uint64(self.Index()))
}
