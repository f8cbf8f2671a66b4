package parser

const (
	DefaultMaxLinks = 0

	// The $UsnJrnl:$J block size. No on disk field describes it,
	// $Max only holds the journal size and allocation delta.
	DefaultJournalBlockSize = 0x1000

	// Largest single allocation we are prepared to make because
	// of a size read from disk.
	DefaultMaxAllocationSize = 128 * 1024 * 1024
)

type Options struct {
	// Include short names in Link analysis
	IncludeShortNames bool

	// Max number of links to retrieve
	MaxLinks int

	// Maximum directory depth to anlayze for paths.
	MaxDirectoryDepth int

	// These path components will be added in front of each link
	// generated.
	PrefixComponents []string

	// When enumerating directories skip children which fail to
	// parse instead of failing the whole enumeration.
	BestEffort bool

	// Size of the USN journal blocks.
	JournalBlockSize int64

	// Number of MFT entries kept in the volume's LRU.
	MFTCacheSize int

	// Number of parent summaries kept for path resolution.
	SummaryCacheSize int

	MaxAllocationSize int64
}

func GetDefaultOptions() Options {
	return Options{
		IncludeShortNames: false,
		MaxLinks:          20,
		MaxDirectoryDepth: 20,
		JournalBlockSize:  DefaultJournalBlockSize,
		MFTCacheSize:      1000,
		SummaryCacheSize:  10000,
		MaxAllocationSize: DefaultMaxAllocationSize,
	}
}

// Fill in zero values with defaults.
func (self Options) normalize() Options {
	defaults := GetDefaultOptions()
	if self.MaxLinks == 0 {
		self.MaxLinks = defaults.MaxLinks
	}
	if self.MaxDirectoryDepth == 0 {
		self.MaxDirectoryDepth = defaults.MaxDirectoryDepth
	}
	if self.JournalBlockSize == 0 {
		self.JournalBlockSize = defaults.JournalBlockSize
	}
	if self.MFTCacheSize == 0 {
		self.MFTCacheSize = defaults.MFTCacheSize
	}
	if self.SummaryCacheSize == 0 {
		self.SummaryCacheSize = defaults.SummaryCacheSize
	}
	if self.MaxAllocationSize == 0 {
		self.MaxAllocationSize = defaults.MaxAllocationSize
	}
	return self
}
