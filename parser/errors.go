package parser

import (
	"github.com/pkg/errors"
)

// Error kinds returned by the parser. All errors returned from this
// package wrap one of these so callers can test them with errors.Is.
var (
	ErrSignatureMismatch  = errors.New("SignatureMismatchError")
	ErrCorruptRecord      = errors.New("CorruptRecordError")
	ErrCorruptIndex       = errors.New("CorruptIndexError")
	ErrMalformedAttribute = errors.New("MalformedAttributeError")
	ErrNotFound           = errors.New("NotFoundError")
	ErrIO                 = errors.New("IOError")
	ErrMemory             = errors.New("MemoryError")
	ErrOutOfRange         = errors.New("OutOfRangeError")
	ErrVolumeClosed       = errors.New("Volume is closed")
	ErrVolumeInUse        = errors.New("Volume has open file entries")
	ErrAborted            = errors.New("Aborted")
)

func ioErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.Wrapf(ErrIO, format, args...)
	}
	return errors.Wrapf(ErrIO, format+": %v", append(args, err)...)
}

func notFoundf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

func malformedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedAttribute, format, args...)
}

// Bounds checking shared by all the index based accessors. Indexes
// are always in the range [0, count).
func checkIndex(idx, count int, what string) error {
	if idx < 0 {
		return errors.Wrapf(ErrOutOfRange, "%s index %d is negative", what, idx)
	}
	if idx >= count {
		return notFoundf("%s index %d out of bounds (%d available)",
			what, idx, count)
	}
	return nil
}

// Guard allocations driven by on-disk sizes.
func checkAllocation(size int64, max int64, what string) error {
	if size < 0 || (max > 0 && size > max) {
		return errors.Wrapf(ErrMemory, "%s: refusing to allocate %d bytes", what, size)
	}
	return nil
}
