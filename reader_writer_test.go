// gempack.dev/har - Reader/writer round-trip tests
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
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, f *HeaderArrayFile) *HeaderArrayFile {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := WriteHAR(buf, f); err != nil {
		t.Fatalf("WriteHAR: %v", err)
	}
	got, err := ReadHAR(buf)
	if err != nil {
		t.Fatalf("ReadHAR: %v", err)
	}
	return got
}

func floatArray(header string, sets []Set, values map[string]float32, storage Storage) HeaderArray {
	coeff := header
	if len(sets) == 0 {
		sets = []Set{{Name: coeff, Labels: []string{coeff}}}
	}

	dims := make([]int, len(sets))
	for i, s := range sets {
		dims[i] = s.Len()
	}
	dict := NewSequenceDictionary[string, float32](sets)
	for ks := range Expand(sets) {
		dict.Set(ks, values[ks.String()])
	}

	return HeaderArray{
		Metadata: Metadata{
			Header:      header,
			Coefficient: coeff,
			Description: "test array",
			Type:        TypeReal,
			Storage:     storage,
			Dimensions:  dims,
			Sets:        sets,
		},
		Floats: dict,
	}
}

func TestRoundTripDenseReal(t *testing.T) {
	sets := []Set{
		{Name: "COM", Labels: []string{"c1", "c2"}},
		{Name: "REG", Labels: []string{"r1", "r2", "r3"}},
	}
	values := map[string]float32{}
	i := float32(0)
	for ks := range Expand(sets) {
		values[ks.String()] = i
		i++
	}
	arr := floatArray("TEST", sets, values, StorageFull)
	arr.Dimensions = []int{2, 3}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	if len(got.Arrays) != 1 {
		t.Fatalf("got %d arrays, want 1", len(got.Arrays))
	}
	for ks := range Expand(sets) {
		want := values[ks.String()]
		v, ok := got.Arrays[0].Floats.Get(ks)
		if !ok {
			t.Fatalf("missing entry %v after round trip", ks)
		}
		if v != want {
			t.Errorf("entry %v = %v, want %v", ks, v, want)
		}
	}
}

func TestRoundTripScalarReal(t *testing.T) {
	arr := floatArray("GDP", nil, map[string]float32{"[GDP]": 42.5}, StorageFull)
	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	if len(got.Arrays[0].Sets) != 1 || got.Arrays[0].Sets[0].Name != "GDP" {
		t.Fatalf("Sets = %v, want a single synthetic (GDP, [GDP]) set", got.Arrays[0].Sets)
	}

	v, ok := got.Arrays[0].Floats.Get(SingleKey("GDP"))
	if !ok || v != 42.5 {
		t.Fatalf("Get() = (%v, %v), want (42.5, true)", v, ok)
	}
}

func TestRoundTripSparseReal(t *testing.T) {
	sets := []Set{
		{Name: "COM", Labels: []string{"c1", "c2", "c3"}},
	}
	values := map[string]float32{"[c2]": 7.0}
	arr := floatArray("SPR1", sets, values, StorageSpSE)
	arr.Dimensions = []int{3}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for _, label := range []string{"c1", "c2", "c3"} {
		v, _ := got.Arrays[0].Floats.Get(SingleKey(label))
		want := values["["+label+"]"]
		if v != want {
			t.Errorf("Get(%s) = %v, want %v", label, v, want)
		}
	}
}

func TestRoundTripSparseAllZero(t *testing.T) {
	sets := []Set{{Name: "COM", Labels: []string{"c1", "c2"}}}
	arr := floatArray("SPR0", sets, map[string]float32{}, StorageSpSE)
	arr.Dimensions = []int{2}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for _, label := range []string{"c1", "c2"} {
		v, _ := got.Arrays[0].Floats.Get(SingleKey(label))
		if v != 0 {
			t.Errorf("Get(%s) = %v, want 0", label, v)
		}
	}
}

func TestRoundTripChar(t *testing.T) {
	dict := NewSequenceDictionary[string, string]([]Set{indexSet(3)})
	labels := []string{"alpha", "b", "gamma-extended"}
	for i, l := range labels {
		dict.Set(SingleKey(string(rune('0'+i))), l)
	}
	arr := HeaderArray{
		Metadata: Metadata{
			Header:      "LABL",
			Coefficient: "LABL",
			Description: "character labels",
			Type:        TypeChar,
			Storage:     StorageFull,
			Dimensions:  []int{3},
			Sets:        []Set{indexSet(3)},
		},
		Chars: dict,
	}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for i, want := range labels {
		v, ok := got.Arrays[0].Chars.Get(SingleKey(string(rune('0' + i))))
		if !ok || v != want {
			t.Errorf("Chars.Get(%d) = (%q, %v), want (%q, true)", i, v, ok, want)
		}
	}
}

func TestRoundTripIndexedInt(t *testing.T) {
	dict := NewSequenceDictionary[string, int32](nil)
	for i := 0; i < 5; i++ {
		dict.Set(SingleKey(string(rune('0'+i))), int32(i*10))
	}
	arr := HeaderArray{
		Metadata: Metadata{
			Header:      "IDX2",
			Coefficient: "IDX2",
			Type:        TypeInt2D,
			Storage:     StorageFull,
			Dimensions:  []int{5},
			Sets:        []Set{indexSet(5)},
		},
		Ints: dict,
	}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for i := 0; i < 5; i++ {
		v, ok := got.Arrays[0].Ints.Get(SingleKey(string(rune('0' + i))))
		if !ok || v != int32(i*10) {
			t.Errorf("Ints.Get(%d) = (%v, %v), want (%v, true)", i, v, ok, i*10)
		}
	}
}

func TestRoundTripIndexedReal(t *testing.T) {
	dict := NewSequenceDictionary[string, float32](nil)
	for i := 0; i < 4; i++ {
		dict.Set(SingleKey(string(rune('0'+i))), float32(i)*1.25)
	}
	arr := HeaderArray{
		Metadata: Metadata{
			Header:      "IDX3",
			Coefficient: "IDX3",
			Type:        TypeReal2D,
			Storage:     StorageFull,
			Dimensions:  []int{4},
			Sets:        []Set{indexSet(4)},
		},
		Floats: dict,
	}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for i := 0; i < 4; i++ {
		v, ok := got.Arrays[0].Floats.Get(SingleKey(string(rune('0' + i))))
		if !ok || v != float32(i)*1.25 {
			t.Errorf("Floats.Get(%d) = (%v, %v), want (%v, true)", i, v, ok, float32(i)*1.25)
		}
	}
}

func TestRoundTripMultipleArrays(t *testing.T) {
	a := floatArray("AAAA", nil, map[string]float32{"[AAAA]": 1}, StorageFull)
	b := floatArray("BBBB", nil, map[string]float32{"[BBBB]": 2}, StorageFull)
	f := &HeaderArrayFile{Arrays: []HeaderArray{a, b}}
	got := roundTrip(t, f)

	if len(got.Arrays) != 2 {
		t.Fatalf("got %d arrays, want 2", len(got.Arrays))
	}
	if got.Arrays[0].Header != "AAAA" || got.Arrays[1].Header != "BBBB" {
		t.Fatalf("file order not preserved: %q, %q", got.Arrays[0].Header, got.Arrays[1].Header)
	}
}

func TestWriteRLUnsupported(t *testing.T) {
	arr := HeaderArray{Metadata: Metadata{Header: "LEGA", Type: TypeRealLeg, Dimensions: []int{1}}}
	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}

	buf := new(bytes.Buffer)
	err := WriteHAR(buf, f)
	if err == nil {
		t.Fatal("expected an error writing RL, got nil")
	}
	if _, ok := err.(*UnsupportedOperation); !ok {
		t.Fatalf("expected *UnsupportedOperation, got %T: %v", err, err)
	}
}

func TestSegmentedDenseReal(t *testing.T) {
	old := config.vectorLimit
	config.vectorLimit = 6 // force multiple segments for a small test array
	defer func() { config.vectorLimit = old }()

	sets := []Set{
		{Name: "A", Labels: []string{"a1", "a2", "a3", "a4"}},
		{Name: "B", Labels: []string{"b1", "b2", "b3"}},
	}
	values := map[string]float32{}
	i := float32(0)
	for ks := range Expand(sets) {
		values[ks.String()] = i
		i++
	}
	arr := floatArray("SEGD", sets, values, StorageFull)
	arr.Dimensions = []int{4, 3}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for ks := range Expand(sets) {
		want := values[ks.String()]
		v, ok := got.Arrays[0].Floats.Get(ks)
		if !ok || v != want {
			t.Errorf("entry %v = (%v, %v), want (%v, true)", ks, v, ok, want)
		}
	}
}

// TestSegmentedDenseRealTrailingAxisDominant exercises a shape where the
// trailing axis alone exceeds the per-vector limit (dims=[2, 5] against a
// limit of 3), the case where whole-leading-axis-row segmentation would
// floor to a single over-limit row. splitBox must walk into the trailing
// axis itself to keep every segment within the limit.
func TestSegmentedDenseRealTrailingAxisDominant(t *testing.T) {
	old := config.vectorLimit
	config.vectorLimit = 3
	defer func() { config.vectorLimit = old }()

	sets := []Set{
		{Name: "A", Labels: []string{"a1", "a2"}},
		{Name: "B", Labels: []string{"b1", "b2", "b3", "b4", "b5"}},
	}
	values := map[string]float32{}
	i := float32(0)
	for ks := range Expand(sets) {
		values[ks.String()] = i
		i++
	}
	arr := floatArray("TRAX", sets, values, StorageFull)
	arr.Dimensions = []int{2, 5}

	for _, seg := range denseSegments(arr.Dimensions, int(config.vectorLimit)) {
		if v := boxVolume(seg); v > int(config.vectorLimit) {
			t.Fatalf("denseSegments produced a %d-element segment %v, want <= %d", v, seg, config.vectorLimit)
		}
	}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for ks := range Expand(sets) {
		want := values[ks.String()]
		v, ok := got.Arrays[0].Floats.Get(ks)
		if !ok || v != want {
			t.Errorf("entry %v = (%v, %v), want (%v, true)", ks, v, ok, want)
		}
	}
}

// TestSegmentedIndexedReal covers scenario S5 (spec §8 property 10): a 2R
// array whose element count exceeds the per-vector limit must be split into
// multiple segments, with vector_index counting down from N to 1.
func TestSegmentedIndexedReal(t *testing.T) {
	old := config.vectorLimit
	config.vectorLimit = 3
	defer func() { config.vectorLimit = old }()

	const n = 7 // ceil(7/3) == 3 segments
	dict := NewSequenceDictionary[string, float32](nil)
	values := map[int]float32{}
	for i := 0; i < n; i++ {
		v := float32(i) * 1.5
		dict.Set(SingleKey(string(rune('0'+i))), v)
		values[i] = v
	}
	arr := HeaderArray{
		Metadata: Metadata{
			Header:      "IDX5",
			Coefficient: "IDX5",
			Type:        TypeReal2D,
			Storage:     StorageFull,
			Dimensions:  []int{n},
			Sets:        []Set{indexSet(n)},
		},
		Floats: dict,
	}

	f := &HeaderArrayFile{Arrays: []HeaderArray{arr}}
	got := roundTrip(t, f)

	for i := 0; i < n; i++ {
		v, ok := got.Arrays[0].Floats.Get(SingleKey(string(rune('0' + i))))
		if !ok || v != values[i] {
			t.Errorf("Floats.Get(%d) = (%v, %v), want (%v, true)", i, v, ok, values[i])
		}
	}
}

// TestIndexedSegmentRangesCountdown checks the segment-range splitter
// directly against the literal S5 numbers (3,000,000 elements, limit
// 1,999,991): it must produce exactly 2 segments, neither exceeding the
// limit, covering every element exactly once.
func TestIndexedSegmentRangesCountdown(t *testing.T) {
	const total = 3_000_000
	const limit = 1_999_991

	ranges := indexedSegmentRanges(total, limit)
	if len(ranges) != 2 {
		t.Fatalf("got %d segments, want 2", len(ranges))
	}

	covered := 0
	for i, r := range ranges {
		n := r[1] - r[0]
		if n <= 0 || n > limit {
			t.Errorf("segment %d has %d elements, want 0 < n <= %d", i, n, limit)
		}
		if r[0] != covered {
			t.Errorf("segment %d starts at %d, want %d", i, r[0], covered)
		}
		covered = r[1]
	}
	if covered != total {
		t.Errorf("segments cover %d elements, want %d", covered, total)
	}
}

// TestDenseSegmentsWithinLimit is a property check (spec §8 property 10)
// over several shapes, including trailing-axis-dominant ones, that no
// emitted segment ever exceeds the configured limit and that the segments
// exactly tile the array.
func TestDenseSegmentsWithinLimit(t *testing.T) {
	cases := []struct {
		dims  []int
		limit int
	}{
		{[]int{4, 3}, 6},
		{[]int{2, 5}, 3},
		{[]int{7}, 2},
		{[]int{3, 3, 3}, 4},
		{[]int{2, 3_000_000}, 1_999_991},
	}

	for _, c := range cases {
		segments := denseSegments(c.dims, c.limit)
		covered := 0
		for _, seg := range segments {
			v := boxVolume(seg)
			if v > c.limit {
				t.Errorf("dims=%v limit=%d: segment %v has %d elements, want <= %d", c.dims, c.limit, seg, v, c.limit)
			}
			covered += v
		}
		if want := Product(c.dims); covered != want {
			t.Errorf("dims=%v limit=%d: segments cover %d elements total, want %d", c.dims, c.limit, covered, want)
		}
	}
}
