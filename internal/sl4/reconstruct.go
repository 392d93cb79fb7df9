// gempack.dev/har - SL4 solution reconstruction
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

// Package sl4 rebuilds per-variable result arrays from the index
// tables an SL4 solution file stores instead of the variables'
// HeaderArray values directly.
package sl4

import (
	"strconv"
	"strings"
	"sync"

	"gempack.dev/har"
)

// Reconstruct builds one RE HeaderArray per backsolved-or-condensed
// endogenous variable found in f, in ascending variable_index order.
// Variables are reconstructed concurrently — each is a pure function of
// the shared, read-only index tables plus its own position — and the
// output is restored to index order once every goroutine has finished.
func Reconstruct(f *har.HeaderArrayFile) (*har.HeaderArrayFile, error) {
	t, err := loadTables(f)
	if err != nil {
		return nil, err
	}

	out := make([]har.HeaderArray, len(t.retained))
	errs := make([]error, len(t.retained))

	var wg sync.WaitGroup
	for i := range t.retained {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i], errs[i] = reconstructOne(t, i)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &har.HeaderArrayFile{Arrays: out}, nil
}

// tables holds every SL4 index table, decoded once and shared read-only
// across the parallel reconstruction pass.
type tables struct {
	names        []string
	descriptions []string
	kinds        []string // VCS0, raw
	setCount     []int32  // VCNI
	setOffset    []int32  // VCSP (1-based)
	setIndex     []int32  // VCSN (1-based, into the set catalog)
	elementCount []int32  // VNCP

	catalogNames []string  // STNM
	catalogSizes []int32   // SSZ
	catalogElems []string  // STEL, flat
	catalogStart []int32   // cumulative offsets into catalogElems

	cumPtr    []int32 // PCUM (1-based, 0 = none)
	cumCount  []int32 // CMND
	cumValues []float32

	exoCount []int32 // OREX
	exoPos   []int32 // OREL (1-based)

	shockPtr   []int32 // PSHK (1-based)
	shockCount []int32 // SHCK
	shockPos   []int32 // SHCL (1-based)
	shockVal   []float32

	retained []int // indices (into the full variable list) of backsolved|condensed variables
}

func loadTables(f *har.HeaderArrayFile) (*tables, error) {
	t := &tables{}
	var err error

	if t.names, err = chars(f, "VCNM"); err != nil {
		return nil, err
	}
	if t.descriptions, err = chars(f, "VCL0"); err != nil {
		return nil, err
	}
	if t.kinds, err = chars(f, "VCS0"); err != nil {
		return nil, err
	}
	if t.setCount, err = ints(f, "VCNI"); err != nil {
		return nil, err
	}
	if t.setOffset, err = ints(f, "VCSP"); err != nil {
		return nil, err
	}
	if t.setIndex, err = ints(f, "VCSN"); err != nil {
		return nil, err
	}
	if t.elementCount, err = ints(f, "VNCP"); err != nil {
		return nil, err
	}

	if t.catalogNames, err = chars(f, "STNM"); err != nil {
		return nil, err
	}
	if _, err = chars(f, "STLB"); err != nil { // set descriptions, unused beyond presence check
		return nil, err
	}
	if t.catalogSizes, err = ints(f, "SSZ"); err != nil {
		return nil, err
	}
	if t.catalogElems, err = chars(f, "STEL"); err != nil {
		return nil, err
	}

	t.catalogStart = make([]int32, len(t.catalogSizes))
	var acc int32
	for i, sz := range t.catalogSizes {
		t.catalogStart[i] = acc
		acc += sz
	}

	if t.cumPtr, err = ints(f, "PCUM"); err != nil {
		return nil, err
	}
	if t.cumCount, err = ints(f, "CMND"); err != nil {
		return nil, err
	}
	if t.cumValues, err = floats(f, "CUMS"); err != nil {
		return nil, err
	}

	if t.exoCount, err = ints(f, "OREX"); err != nil {
		return nil, err
	}
	if t.exoPos, err = ints(f, "OREL"); err != nil {
		return nil, err
	}

	if t.shockPtr, err = ints(f, "PSHK"); err != nil {
		return nil, err
	}
	if t.shockCount, err = ints(f, "SHCK"); err != nil {
		return nil, err
	}
	if t.shockPos, err = ints(f, "SHCL"); err != nil {
		return nil, err
	}
	if t.shockVal, err = floats(f, "SHOC"); err != nil {
		return nil, err
	}

	for i, kind := range t.kinds {
		k := strings.ToLower(strings.TrimSpace(kind))
		if k == "backsolved" || k == "condensed" {
			t.retained = append(t.retained, i)
		}
	}

	return t, nil
}

func reconstructOne(t *tables, pos int) (har.HeaderArray, error) {
	i := t.retained[pos]
	count := int(t.elementCount[i])
	values := make([]float32, count)

	if t.cumPtr[i] != 0 {
		start := int(t.cumPtr[i]) - 1
		n := int(t.cumCount[i])
		copy(values, t.cumValues[start:start+n])
	}

	if t.exoCount[i] != int32(count) {
		offset := 0
		for j := 0; j < i; j++ {
			if t.exoCount[j] != t.elementCount[j] {
				offset += int(t.exoCount[j])
			}
		}
		for k := 0; k < int(t.exoCount[i]); k++ {
			position := int(t.exoPos[offset+k]) - 1
			if position < 0 || position >= len(values) {
				continue
			}
			copy(values[position+1:], values[position:len(values)-1])
			values[position] = 0
		}
	}

	if t.shockCount[i] > 0 {
		// The SHCL offset counts only earlier variables whose SHCK is > 1
		// and differs from the previous variable's SHCK.
		shclOffset := 0
		var prev int32 = -1
		for j := 0; j < i; j++ {
			if t.shockCount[j] > 1 && t.shockCount[j] != prev {
				shclOffset += int(t.shockCount[j])
			}
			prev = t.shockCount[j]
		}
		valueOffset := int(t.shockPtr[i]) - 1
		for k := 0; k < int(t.shockCount[i]); k++ {
			position := int(t.shockPos[shclOffset+k]) - 1
			value := t.shockVal[valueOffset+k]
			if position < 0 || position >= len(values) {
				continue
			}
			values[position] = value
		}
	}

	sets, err := setInformation(t, i)
	if err != nil {
		return har.HeaderArray{}, err
	}

	dims := make([]int, 7)
	for idx := range dims {
		dims[idx] = 1
	}
	for idx, s := range sets {
		dims[idx] = s.Len()
	}

	dict := har.NewSequenceDictionary[string, float32](sets)
	idx := 0
	for ks := range har.Expand(sets) {
		var v float32
		if idx < len(values) {
			v = values[idx]
		}
		dict.Set(ks, v)
		idx++
	}

	return har.HeaderArray{
		Metadata: har.Metadata{
			Header:      strings.TrimSpace(t.names[i]),
			Coefficient: strings.TrimSpace(t.names[i]),
			Description: t.descriptions[i],
			Type:        har.TypeReal,
			Storage:     har.StorageFull,
			Dimensions:  dims,
			Sets:        sets,
		},
		Floats: dict,
	}, nil
}

func setInformation(t *tables, variable int) ([]har.Set, error) {
	n := int(t.setCount[variable])
	offset := int(t.setOffset[variable]) - 1
	sets := make([]har.Set, 0, n)
	for k := 0; k < n; k++ {
		catIdx := int(t.setIndex[offset+k]) - 1
		if catIdx < 0 || catIdx >= len(t.catalogNames) {
			return nil, &har.DataValidation{Kind: har.ValidationMissingHeader, Detail: "VCSN: set index out of range"}
		}
		start := t.catalogStart[catIdx]
		size := t.catalogSizes[catIdx]
		sets = append(sets, har.Set{
			Name:   strings.TrimSpace(t.catalogNames[catIdx]),
			Labels: t.catalogElems[start : start+size],
		})
	}
	return sets, nil
}

func chars(f *har.HeaderArrayFile, header string) ([]string, error) {
	arr, ok := f.ByHeader(header)
	if !ok || arr.Chars == nil {
		return nil, &har.DataValidation{Kind: har.ValidationMissingHeader, Record: header, Detail: "required SL4 table missing"}
	}
	n := arr.Chars.Len()
	out := make([]string, n)
	for i := 0; i < n; i++ {
		v, _ := arr.Chars.Get(har.SingleKey(strconv.Itoa(i)))
		out[i] = v
	}
	return out, nil
}

func ints(f *har.HeaderArrayFile, header string) ([]int32, error) {
	arr, ok := f.ByHeader(header)
	if !ok || arr.Ints == nil {
		return nil, &har.DataValidation{Kind: har.ValidationMissingHeader, Record: header, Detail: "required SL4 table missing"}
	}
	n := arr.Ints.Len()
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		v, _ := arr.Ints.Get(har.SingleKey(strconv.Itoa(i)))
		out[i] = v
	}
	return out, nil
}

func floats(f *har.HeaderArrayFile, header string) ([]float32, error) {
	arr, ok := f.ByHeader(header)
	if !ok || arr.Floats == nil {
		return nil, &har.DataValidation{Kind: har.ValidationMissingHeader, Record: header, Detail: "required SL4 table missing"}
	}
	n := arr.Floats.Len()
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v, _ := arr.Floats.Get(har.SingleKey(strconv.Itoa(i)))
		out[i] = v
	}
	return out, nil
}
