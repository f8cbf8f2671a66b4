//go:build !linux && !darwin

package parser

// OpenSource opens the file for random access reads.
func OpenSource(path string) (Source, error) {
	return openFileSource(path)
}
