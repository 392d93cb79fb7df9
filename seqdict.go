// gempack.dev/har - SequenceDictionary
// Copyright (C) 2023 The gempack.dev/har Authors; All Rights Reserved

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package har

import (
	"github.com/cespare/xxhash/v2"
)

// SequenceDictionary is an ordered mapping from KeySequence[K] to V,
// supporting direct lookup by full key, prefix lookup by a shorter key
// tuple, and "logical enumeration" in insertion order (spec §4.2). The
// hash index is an open-addressed table over the canonical string form
// of each key, in the same style as the teacher's Dictionary type
// (probe-on-collision over a fixed-size slot array), but keyed by
// xxhash instead of FNV and grown rather than fixed at 16M slots.
type SequenceDictionary[K comparable, V any] struct {
	sets    []Set
	order   []KeySequence[K] // insertion order, for logical enumeration
	values  map[string]V
	index   []int32 // open-addressed slot -> position in order, -1 if empty
	mask    uint64
	entries int
}

const dictInitialSlots = 64

// NewSequenceDictionary creates an empty dictionary over the given
// ordered set list (spec §4.2: "Dictionaries also expose the original
// set list so the reader/writer can compute cross-products on demand").
func NewSequenceDictionary[K comparable, V any](sets []Set) *SequenceDictionary[K, V] {
	d := &SequenceDictionary[K, V]{
		sets:   sets,
		values: make(map[string]V),
	}
	d.growIndex(dictInitialSlots)
	return d
}

// Sets returns the set list this dictionary was built over.
func (d *SequenceDictionary[K, V]) Sets() []Set { return d.sets }

// Len returns the number of stored entries.
func (d *SequenceDictionary[K, V]) Len() int { return d.entries }

// Keys returns the keys in logical (insertion) enumeration order.
func (d *SequenceDictionary[K, V]) Keys() []KeySequence[K] {
	out := make([]KeySequence[K], len(d.order))
	copy(out, d.order)
	return out
}

func (d *SequenceDictionary[K, V]) growIndex(size int) {
	idx := make([]int32, size)
	for i := range idx {
		idx[i] = -1
	}
	d.index = idx
	d.mask = uint64(size - 1)

	for pos, key := range d.order {
		d.insertSlot(key.String(), pos)
	}
}

func (d *SequenceDictionary[K, V]) insertSlot(canonical string, pos int) {
	h := xxhash.Sum64String(canonical) & d.mask
	for d.index[h] != -1 {
		h = (h + 1) & d.mask
	}
	d.index[h] = int32(pos)
}

func (d *SequenceDictionary[K, V]) slotFor(canonical string) (int, bool) {
	h := xxhash.Sum64String(canonical) & d.mask
	for {
		slot := d.index[h]
		if slot == -1 {
			return 0, false
		}
		if d.order[slot].String() == canonical {
			return int(slot), true
		}
		h = (h + 1) & d.mask
	}
}

// Set stores value at key, appending to the enumeration order if the
// key is new, or overwriting in place if it already exists.
func (d *SequenceDictionary[K, V]) Set(key KeySequence[K], value V) {
	canonical := key.String()
	if _, ok := d.slotFor(canonical); ok {
		d.values[canonical] = value
		return
	}

	if d.entries*2 >= len(d.index) {
		d.order = append(d.order, key)
		d.values[canonical] = value
		d.entries++
		d.growIndex(len(d.index) * 2)
		return
	}

	pos := len(d.order)
	d.order = append(d.order, key)
	d.values[canonical] = value
	d.insertSlot(canonical, pos)
	d.entries++
}

// Get performs an O(1) full-key lookup.
func (d *SequenceDictionary[K, V]) Get(key KeySequence[K]) (V, bool) {
	canonical := key.String()
	if _, ok := d.slotFor(canonical); ok {
		return d.values[canonical], true
	}
	var zero V
	return zero, false
}

// PrefixGet returns every entry whose key begins with prefix, as a
// slice of (key, value) pairs in logical enumeration order. A length-1
// prefix over a 3-axis dictionary returns the slice along the first
// axis (spec §4.2).
func (d *SequenceDictionary[K, V]) PrefixGet(prefix KeySequence[K]) []SequenceDictionaryEntry[K, V] {
	var out []SequenceDictionaryEntry[K, V]
	for _, key := range d.order {
		if !hasPrefix(key, prefix) {
			continue
		}
		v, _ := d.Get(key)
		out = append(out, SequenceDictionaryEntry[K, V]{Key: key, Value: v})
	}
	return out
}

func hasPrefix[K comparable](key, prefix KeySequence[K]) bool {
	if prefix.Len() > key.Len() {
		return false
	}
	for i := 0; i < prefix.Len(); i++ {
		if key.At(i) != prefix.At(i) {
			return false
		}
	}
	return true
}

// SequenceDictionaryEntry is a single (key, value) pair as returned by
// PrefixGet.
type SequenceDictionaryEntry[K comparable, V any] struct {
	Key   KeySequence[K]
	Value V
}
