package parser

import (
	"io"

	"github.com/pkg/errors"
)

// A finite sequence whose items are produced on demand from their
// index. Iterating again restarts from the first item.
type Sequence[T any] struct {
	count int
	get   func(idx int) (T, error)
}

func NewSequence[T any](count int, get func(idx int) (T, error)) *Sequence[T] {
	return &Sequence[T]{count: count, get: get}
}

func (self *Sequence[T]) Len() int {
	return self.count
}

func (self *Sequence[T]) Get(idx int) (T, error) {
	err := checkIndex(idx, self.count, "sequence")
	if err != nil {
		var empty T
		return empty, err
	}
	return self.get(idx)
}

func (self *Sequence[T]) Iterator() *Iterator[T] {
	idx := 0
	return NewIterator(func() (T, error) {
		if idx >= self.count {
			var empty T
			return empty, io.EOF
		}
		item, err := self.get(idx)
		idx++
		return item, err
	})
}

// Collect all items into a slice.
func (self *Sequence[T]) All() ([]T, error) {
	return self.Iterator().All()
}

// A lazy iterator. The producer returns io.EOF when exhausted.
//
//	it := entry.SubFileEntries()
//	for it.Next() {
//	    child := it.Value()
//	}
//	if it.Err() != nil { ... }
type Iterator[T any] struct {
	next  func() (T, error)
	value T
	err   error
	done  bool
}

func NewIterator[T any](next func() (T, error)) *Iterator[T] {
	return &Iterator[T]{next: next}
}

func (self *Iterator[T]) Next() bool {
	if self.done {
		return false
	}

	value, err := self.next()
	if err != nil {
		self.done = true
		if !errors.Is(err, io.EOF) {
			self.err = err
		}
		var empty T
		self.value = empty
		return false
	}

	self.value = value
	return true
}

func (self *Iterator[T]) Value() T {
	return self.value
}

// The error which stopped the iteration, nil when it ran to the end.
func (self *Iterator[T]) Err() error {
	return self.err
}

func (self *Iterator[T]) All() ([]T, error) {
	result := []T{}
	for self.Next() {
		result = append(result, self.Value())
	}
	return result, self.Err()
}
