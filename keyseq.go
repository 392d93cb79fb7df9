// gempack.dev/har - KeySequence
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
	"fmt"
	"strings"
)

// KeySequence is an immutable ordered tuple of keys, used both as a
// SequenceDictionary key and as a composable logical-array index (spec
// §4.2). Two KeySequences are equal iff element-wise equal. A
// KeySequence of length 1 is interchangeable with a bare key for
// display purposes.
type KeySequence[K comparable] struct {
	keys []K
}

// NewKeySequence builds a KeySequence from an ordered list of keys. The
// backing slice is copied so the sequence stays immutable even if the
// caller mutates their own slice afterwards.
func NewKeySequence[K comparable](keys ...K) KeySequence[K] {
	cp := make([]K, len(keys))
	copy(cp, keys)
	return KeySequence[K]{keys: cp}
}

// SingleKey builds a length-1 KeySequence from a bare key.
func SingleKey[K comparable](k K) KeySequence[K] {
	return NewKeySequence(k)
}

// Len returns the number of components in the sequence.
func (ks KeySequence[K]) Len() int { return len(ks.keys) }

// At returns the i'th component.
func (ks KeySequence[K]) At(i int) K { return ks.keys[i] }

// Keys returns a copy of the underlying key slice.
func (ks KeySequence[K]) Keys() []K {
	cp := make([]K, len(ks.keys))
	copy(cp, ks.keys)
	return cp
}

// Equal reports whether two sequences are element-wise equal.
func (ks KeySequence[K]) Equal(other KeySequence[K]) bool {
	if len(ks.keys) != len(other.keys) {
		return false
	}
	for i, k := range ks.keys {
		if k != other.keys[i] {
			return false
		}
	}
	return true
}

// Combine concatenates this sequence with another, returning a new
// sequence of length Len()+other.Len().
func (ks KeySequence[K]) Combine(other KeySequence[K]) KeySequence[K] {
	out := make([]K, 0, len(ks.keys)+len(other.keys))
	out = append(out, ks.keys...)
	out = append(out, other.keys...)
	return KeySequence[K]{keys: out}
}

// String returns the canonical "[k1][k2]…[kN]" form used both for debug
// output and as the HARX JSON entry key (spec §4.2, §6).
func (ks KeySequence[K]) String() string {
	var b strings.Builder
	for _, k := range ks.keys {
		b.WriteByte('[')
		if s, ok := any(k).(string); ok {
			b.WriteString(s)
		} else {
			fmt.Fprint(&b, k)
		}
		b.WriteByte(']')
	}
	return b.String()
}
