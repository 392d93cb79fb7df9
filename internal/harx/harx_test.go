// gempack.dev/har - HARX companion format tests
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

package harx

import (
	"bytes"
	"testing"

	"gempack.dev/har"
)

func roundTrip(t *testing.T, f *har.HeaderArrayFile) *har.HeaderArrayFile {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := Write(buf, f); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return got
}

func TestRoundTripReal(t *testing.T) {
	sets := []har.Set{
		{Name: "COM", Labels: []string{"c1", "c2"}},
		{Name: "REG", Labels: []string{"r1", "r2"}},
	}
	dict := har.NewSequenceDictionary[string, float32](sets)
	values := map[string]float32{}
	i := float32(0)
	for ks := range har.Expand(sets) {
		dict.Set(ks, i)
		values[ks.String()] = i
		i++
	}
	arr := har.HeaderArray{
		Metadata: har.Metadata{
			Header:      "TEST",
			Coefficient: "TEST",
			Description: "a real array",
			Type:        har.TypeReal,
			Storage:     har.StorageFull,
			Dimensions:  []int{2, 2},
			Sets:        sets,
		},
		Floats: dict,
	}

	got := roundTrip(t, &har.HeaderArrayFile{Arrays: []har.HeaderArray{arr}})
	if len(got.Arrays) != 1 {
		t.Fatalf("got %d arrays, want 1", len(got.Arrays))
	}
	for ks := range har.Expand(sets) {
		v, ok := got.Arrays[0].Floats.Get(ks)
		if !ok || v != values[ks.String()] {
			t.Errorf("Get(%v) = (%v, %v), want (%v, true)", ks, v, ok, values[ks.String()])
		}
	}
}

func TestRoundTripChar(t *testing.T) {
	sets := []har.Set{{Name: "INDEX", Labels: []string{"0", "1", "2"}}}
	dict := har.NewSequenceDictionary[string, string](sets)
	labels := []string{"alpha", "beta", "gamma"}
	for i, l := range labels {
		dict.Set(har.SingleKey(string(rune('0'+i))), l)
	}
	arr := har.HeaderArray{
		Metadata: har.Metadata{
			Header:     "LABL",
			Type:       har.TypeChar,
			Storage:    har.StorageFull,
			Dimensions: []int{3},
			Sets:       sets,
		},
		Chars: dict,
	}

	got := roundTrip(t, &har.HeaderArrayFile{Arrays: []har.HeaderArray{arr}})
	for i, want := range labels {
		v, ok := got.Arrays[0].Chars.Get(har.SingleKey(string(rune('0' + i))))
		if !ok || v != want {
			t.Errorf("Chars.Get(%d) = (%q, %v), want (%q, true)", i, v, ok, want)
		}
	}
}

func TestRoundTripInt(t *testing.T) {
	sets := []har.Set{{Name: "INDEX", Labels: []string{"0", "1", "2", "3"}}}
	dict := har.NewSequenceDictionary[string, int32](sets)
	for i := 0; i < 4; i++ {
		dict.Set(har.SingleKey(string(rune('0'+i))), int32(i*7))
	}
	arr := har.HeaderArray{
		Metadata: har.Metadata{
			Header:     "IDX2",
			Type:       har.TypeInt2D,
			Storage:    har.StorageFull,
			Dimensions: []int{4},
			Sets:       sets,
		},
		Ints: dict,
	}

	got := roundTrip(t, &har.HeaderArrayFile{Arrays: []har.HeaderArray{arr}})
	for i := 0; i < 4; i++ {
		v, ok := got.Arrays[0].Ints.Get(har.SingleKey(string(rune('0' + i))))
		if !ok || v != int32(i*7) {
			t.Errorf("Ints.Get(%d) = (%v, %v), want (%v, true)", i, v, ok, i*7)
		}
	}
}

func TestRoundTripScalar(t *testing.T) {
	sets := []har.Set{{Name: "GDP", Labels: []string{"GDP"}}}
	dict := har.NewSequenceDictionary[string, float32](sets)
	dict.Set(har.SingleKey("GDP"), 42.5)
	arr := har.HeaderArray{
		Metadata: har.Metadata{
			Header:      "GDP",
			Coefficient: "GDP",
			Type:        har.TypeReal,
			Storage:     har.StorageFull,
			Dimensions:  []int{1},
			Sets:        sets,
		},
		Floats: dict,
	}

	got := roundTrip(t, &har.HeaderArrayFile{Arrays: []har.HeaderArray{arr}})
	v, ok := got.Arrays[0].Floats.Get(har.SingleKey("GDP"))
	if !ok || v != 42.5 {
		t.Fatalf("Get() = (%v, %v), want (42.5, true)", v, ok)
	}
}

func TestRoundTripMultipleArraysSortedByHeader(t *testing.T) {
	mk := func(header string, v float32) har.HeaderArray {
		sets := []har.Set{{Name: header, Labels: []string{header}}}
		dict := har.NewSequenceDictionary[string, float32](sets)
		dict.Set(har.SingleKey(header), v)
		return har.HeaderArray{
			Metadata: har.Metadata{Header: header, Type: har.TypeReal, Storage: har.StorageFull, Dimensions: []int{1}, Sets: sets},
			Floats:   dict,
		}
	}

	f := &har.HeaderArrayFile{Arrays: []har.HeaderArray{mk("ZETA", 1), mk("ALFA", 2)}}
	got := roundTrip(t, f)

	if len(got.Arrays) != 2 {
		t.Fatalf("got %d arrays, want 2", len(got.Arrays))
	}
	if got.Arrays[0].Header != "ALFA" || got.Arrays[1].Header != "ZETA" {
		t.Fatalf("headers = %q, %q, want sorted (ALFA, ZETA)", got.Arrays[0].Header, got.Arrays[1].Header)
	}
}
