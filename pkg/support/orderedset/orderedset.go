// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package orderedset implements a set that remembers the insertion order of its elements.
//
// Elements are identified by a comparable key derived from them, so element types that are not comparable
// themselves (e.g. holding slices) can be used.
package orderedset

import "iter"

// Set of elements of type T, keyed by K, iterated in insertion order.
type Set[K comparable, T any] struct {
	keyFn    func(T) K
	index    map[K]int
	elements []T
}

// Make returns an empty Set, with keyFn used to derive the key of each element.
func Make[K comparable, T any](keyFn func(T) K) *Set[K, T] {
	return &Set[K, T]{keyFn: keyFn, index: make(map[K]int)}
}

// Insert adds the element if not yet present. It returns a pointer to the element stored in the set, which is
// the one previously inserted if there was one with the same key. The pointer is invalidated by the next Insert.
func (s *Set[K, T]) Insert(element T) (stored *T, inserted bool) {
	key := s.keyFn(element)
	if pos, found := s.index[key]; found {
		return &s.elements[pos], false
	}
	s.index[key] = len(s.elements)
	s.elements = append(s.elements, element)
	return &s.elements[len(s.elements)-1], true
}

// All iterates over the elements in insertion order.
func (s *Set[K, T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, element := range s.elements {
			if !yield(element) {
				return
			}
		}
	}
}

// Slice returns a copy of the elements in insertion order.
func (s *Set[K, T]) Slice() []T {
	return append([]T(nil), s.elements...)
}
