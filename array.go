// gempack.dev/har - Data model
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

// RecordType is the on-disk record kind tag (spec §3, §6).
type RecordType string

const (
	TypeChar    RecordType = "1C"
	TypeReal    RecordType = "RE"
	TypeRealLeg RecordType = "RL"
	TypeInt2D   RecordType = "2I"
	TypeReal2D  RecordType = "2R"
)

// Storage distinguishes a densely-stored array from a sparsely-stored
// one (spec §3, GLOSSARY).
type Storage string

const (
	StorageFull Storage = "FULL"
	StorageSpSE Storage = "SPSE"
)

// Metadata holds the fields every HeaderArray carries regardless of its
// value type (spec §3). The source expresses "header array of T" via a
// non-generic interface plus a generic implementation and runtime
// casts (spec §9); this module models the same idea as a tagged variant
// over Metadata plus one of three typed SequenceDictionaries.
type Metadata struct {
	Header      string // 4-byte ASCII identifier, unique within a file
	Coefficient string // 12-byte ASCII symbolic name, often == Header
	Description string // up to 70 bytes free-form ASCII
	Type        RecordType
	Storage     Storage
	Dimensions  []int
	Sets        []Set
}

// HeaderArray is the canonical record (spec §3). Exactly one of Chars,
// Ints or Floats is non-nil, matching the on-disk Type. HeaderArray is
// immutable after construction; With returns a renamed copy sharing the
// same entries dictionary.
type HeaderArray struct {
	Metadata
	Chars  *SequenceDictionary[string, string]
	Ints   *SequenceDictionary[string, int32]
	Floats *SequenceDictionary[string, float32]
}

// With returns a shallow copy of the array renamed to header, sharing
// the underlying entries dictionary (spec §3: "Lifecycle").
func (a HeaderArray) With(header string) HeaderArray {
	cp := a
	cp.Header = header
	return cp
}

// Len returns the number of stored entries, regardless of which
// variant is populated.
func (a HeaderArray) Len() int {
	switch {
	case a.Chars != nil:
		return a.Chars.Len()
	case a.Ints != nil:
		return a.Ints.Len()
	case a.Floats != nil:
		return a.Floats.Len()
	default:
		return 0
	}
}

// Product returns the product of the array's dimensions (the logical
// element count), per spec §3's invariant 1.
func Product(dimensions []int) int {
	p := 1
	for _, d := range dimensions {
		p *= d
	}
	return p
}

// HeaderArrayFile is an ordered collection of HeaderArrays read from,
// or to be written to, a single HAR (or SL4) file. Arrays keeps the
// order its producer appended them in: file order for ReadHAR,
// ascending variable order for the SL4 reconstructor. HeaderArrayFile
// itself does not sort them by header.
type HeaderArrayFile struct {
	Arrays []HeaderArray
}

// ByHeader returns the array with the given header, if present.
func (f *HeaderArrayFile) ByHeader(header string) (HeaderArray, bool) {
	for _, a := range f.Arrays {
		if a.Header == header {
			return a, true
		}
	}
	return HeaderArray{}, false
}
