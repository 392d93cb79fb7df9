// gempack.dev/har - Set expansion
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

import "iter"

// Set is a named, ordered collection of distinct label strings that
// defines the logical index space along one axis of a HeaderArray
// (spec §3). The same set name may appear twice if two axes share a
// vocabulary (the "last set duplicated" convention, spec §4.4.2).
type Set struct {
	Name   string
	Labels []string
}

// Len returns the cardinality of the set.
func (s Set) Len() int { return len(s.Labels) }

// Expand produces the cross product of an ordered list of sets as a
// lazily-generated sequence of KeySequences, innermost axis varying
// fastest (spec §4.3, §9). Expansion over an empty set list yields the
// single empty KeySequence.
func Expand(sets []Set) iter.Seq[KeySequence[string]] {
	return func(yield func(KeySequence[string]) bool) {
		if len(sets) == 0 {
			yield(NewKeySequence[string]())
			return
		}
		idx := make([]int, len(sets))
		for {
			keys := make([]string, len(sets))
			for i, s := range sets {
				keys[i] = s.Labels[idx[i]]
			}
			if !yield(NewKeySequence(keys...)) {
				return
			}

			// Increment like an odometer, innermost (last) axis fastest.
			pos := len(sets) - 1
			for pos >= 0 {
				idx[pos]++
				if idx[pos] < sets[pos].Len() {
					break
				}
				idx[pos] = 0
				pos--
			}
			if pos < 0 {
				return
			}
		}
	}
}

// ExpandAll materialises Expand's sequence into a slice. Most callers
// should prefer Expand directly and range over it; ExpandAll is for
// callers that need random access into the product.
func ExpandAll(sets []Set) []KeySequence[string] {
	var out []KeySequence[string]
	for ks := range Expand(sets) {
		out = append(out, ks)
	}
	return out
}
