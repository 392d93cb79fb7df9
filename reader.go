// gempack.dev/har - BinaryReader
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
	"bufio"
	"context"
	"io"
	"strconv"

	bin "github.com/gagliardetto/binary"
)

// recordMeta is the parsed metadata block common to every record kind
// (spec §4.4: "Metadata block layout").
type recordMeta struct {
	Type        RecordType
	Storage     Storage
	Description string
	Dimensions  []int
}

// ReadHAR parses an entire HAR (or SL4) stream into a HeaderArrayFile.
// Records appear in file order, per spec §5.
func ReadHAR(r io.Reader) (*HeaderArrayFile, error) {
	return ReadHARContext(context.Background(), r)
}

// ReadHARContext is ReadHAR with cooperative cancellation honoured
// between records (spec §5: "Readers ... MUST honour a cancellation
// signal by aborting between records").
func ReadHARContext(ctx context.Context, r io.Reader) (*HeaderArrayFile, error) {
	br := bufio.NewReader(r)
	fr := newFrameReader(br)
	file := &HeaderArrayFile{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := br.Peek(1); err != nil {
			if err == io.EOF {
				break
			}
			return nil, &IOError{Op: "read", Err: err}
		}

		header, err := fr.ReadHeaderString()
		if err != nil {
			return nil, err
		}

		metaPayload, err := fr.ReadBlock()
		if err != nil {
			return nil, err
		}
		meta, err := parseRecordMeta(header, metaPayload)
		if err != nil {
			return nil, err
		}

		arr, err := parseRecord(fr, header, meta)
		if err != nil {
			return nil, err
		}
		file.Arrays = append(file.Arrays, arr)
	}

	return file, nil
}

func parseRecordMeta(header string, payload []byte) (recordMeta, error) {
	dec := bin.NewBinDecoder(payload)

	typeTag, err := readFixedString(dec, 2)
	if err != nil {
		return recordMeta{}, &IOError{Op: "read", Record: header, Err: err}
	}
	storageTag, err := readFixedString(dec, 4)
	if err != nil {
		return recordMeta{}, &IOError{Op: "read", Record: header, Err: err}
	}
	description, err := readFixedString(dec, 70)
	if err != nil {
		return recordMeta{}, &IOError{Op: "read", Record: header, Err: err}
	}
	dimCount, err := readInt32(dec)
	if err != nil {
		return recordMeta{}, &IOError{Op: "read", Record: header, Err: err}
	}
	dims := make([]int, dimCount)
	for i := range dims {
		v, err := readInt32(dec)
		if err != nil {
			return recordMeta{}, &IOError{Op: "read", Record: header, Err: err}
		}
		dims[i] = int(v)
	}

	rt := RecordType(typeTag)
	switch rt {
	case TypeChar, TypeReal, TypeRealLeg, TypeInt2D, TypeReal2D:
	default:
		return recordMeta{}, &DataValidation{Kind: ValidationUnknownType, Record: header, Detail: typeTag}
	}

	return recordMeta{
		Type:        rt,
		Storage:     Storage(storageTag),
		Description: description,
		Dimensions:  dims,
	}, nil
}

func parseRecord(fr *frameReader, header string, meta recordMeta) (HeaderArray, error) {
	switch meta.Type {
	case TypeChar:
		return parseChar(fr, header, meta)
	case TypeReal:
		return parseReal(fr, header, meta)
	case TypeRealLeg:
		return parseLegacyReal(fr, header, meta)
	case TypeInt2D:
		return parseIndexed(fr, header, meta, false)
	case TypeReal2D:
		return parseIndexed(fr, header, meta, true)
	default:
		return HeaderArray{}, &DataValidation{Kind: ValidationUnknownType, Record: header, Detail: string(meta.Type)}
	}
}

func indexSet(n int) Set {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i)
	}
	return Set{Name: "INDEX", Labels: labels}
}

// parseChar reads a 1C character vector (spec §4.4.1). Successive
// blocks carry a countdown vector_index in the same slot the dense
// numeric types use, so the reader accumulates segments until
// vector_index == 1 — the same termination convention used everywhere
// else in the format (spec §4.4.2, §4.4.4), chosen here to resolve the
// spec's own looser "read segments until x0 exhausted" wording.
func parseChar(fr *frameReader, header string, meta recordMeta) (HeaderArray, error) {
	var items []string
	for {
		payload, err := fr.ReadBlock()
		if err != nil {
			return HeaderArray{}, err
		}
		dec := bin.NewBinDecoder(payload)
		vectorIdx, err := readInt32(dec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		if _, err := readInt32(dec); err != nil { // total items across all segments
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		itemsHere, err := readInt32(dec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}

		width := 0
		if itemsHere > 0 {
			width = (len(payload) - 12) / int(itemsHere)
		}
		for i := 0; i < int(itemsHere); i++ {
			s, err := readFixedString(dec, width)
			if err != nil {
				return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
			}
			items = append(items, s)
		}

		if vectorIdx == 1 {
			break
		}
	}

	sets := []Set{indexSet(len(items))}
	dict := NewSequenceDictionary[string, string](sets)
	for i, s := range items {
		dict.Set(SingleKey(strconv.Itoa(i)), s)
	}

	return HeaderArray{
		Metadata: Metadata{
			Header:      header,
			Coefficient: header,
			Description: meta.Description,
			Type:        TypeChar,
			Storage:     StorageFull,
			Dimensions:  []int{len(items)},
			Sets:        sets,
		},
		Chars: dict,
	}, nil
}

// parseReal reads an RE record, dense or sparse (spec §4.4.2).
func parseReal(fr *frameReader, header string, meta recordMeta) (HeaderArray, error) {
	setPayload, err := fr.ReadBlock()
	if err != nil {
		return HeaderArray{}, err
	}
	dec := bin.NewBinDecoder(setPayload)

	distinctCount, err := readInt32(dec)
	if err != nil {
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	spacer1, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	totalCount, err := readInt32(dec)
	if err != nil {
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	coefficient, err := readFixedString(dec, 12)
	if err != nil {
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	spacer2, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}

	relaxed := distinctCount == 0
	if err := checkSpacer(header, spacer1, relaxed); err != nil {
		return HeaderArray{}, err
	}
	if err := checkSpacer(header, spacer2, relaxed); err != nil {
		return HeaderArray{}, err
	}

	setNames := make([]string, distinctCount)
	for i := range setNames {
		setNames[i], err = readFixedString(dec, 12)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
	}

	var sets []Set
	if distinctCount == 0 {
		// Scalar or index-only array: synthesise a single set from the
		// coefficient name (spec §4.4.2: "Sets collapse to a single
		// synthetic set (coefficient, [coefficient]) if no explicit sets
		// were declared").
		sets = []Set{{Name: coefficient, Labels: []string{coefficient}}}
	} else {
		labels := make([][]string, distinctCount)
		for i := 0; i < int(distinctCount); i++ {
			l, err := readLabelBlock(fr, header)
			if err != nil {
				return HeaderArray{}, err
			}
			labels[i] = l
		}
		for i := 0; i < int(distinctCount); i++ {
			sets = append(sets, Set{Name: setNames[i], Labels: labels[i]})
		}
		// "Last set duplicated" convention: if c > a and c - a == 1, the
		// final axis reuses the last declared set's vocabulary (spec
		// §4.4.2).
		if int(totalCount) > int(distinctCount) && int(totalCount)-int(distinctCount) == 1 {
			sets = append(sets, sets[len(sets)-1])
		}
	}

	metadata := Metadata{
		Header:      header,
		Coefficient: coefficient,
		Description: meta.Description,
		Type:        TypeReal,
		Storage:     meta.Storage,
		Sets:        sets,
	}

	if meta.Storage == StorageSpSE {
		return parseSparseReal(fr, header, metadata, sets)
	}
	return parseDenseReal(fr, header, metadata, sets)
}

// readLabelBlock reads one per-set label block, formatted like a 1C
// payload (spec §4.4.2).
func readLabelBlock(fr *frameReader, header string) ([]string, error) {
	var items []string
	for {
		payload, err := fr.ReadBlock()
		if err != nil {
			return nil, err
		}
		dec := bin.NewBinDecoder(payload)
		vectorIdx, err := readInt32(dec)
		if err != nil {
			return nil, &IOError{Op: "read", Record: header, Err: err}
		}
		if _, err := readInt32(dec); err != nil {
			return nil, &IOError{Op: "read", Record: header, Err: err}
		}
		itemsHere, err := readInt32(dec)
		if err != nil {
			return nil, &IOError{Op: "read", Record: header, Err: err}
		}
		width := 0
		if itemsHere > 0 {
			width = (len(payload) - 12) / int(itemsHere)
		}
		for i := 0; i < int(itemsHere); i++ {
			s, err := readFixedString(dec, width)
			if err != nil {
				return nil, &IOError{Op: "read", Record: header, Err: err}
			}
			items = append(items, s)
		}
		if vectorIdx == 1 {
			break
		}
	}
	return items, nil
}

func strides(dims []int) []int {
	st := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= dims[i]
	}
	return st
}

func parseDenseReal(fr *frameReader, header string, metadata Metadata, sets []Set) (HeaderArray, error) {
	dimsPayload, err := fr.ReadBlock()
	if err != nil {
		return HeaderArray{}, err
	}
	dec := bin.NewBinDecoder(dimsPayload)
	if _, err := readInt32(dec); err != nil { // vector_index, unused at this point
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	dimCount, err := readInt32(dec)
	if err != nil {
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	dims := make([]int, dimCount)
	for i := range dims {
		v, err := readInt32(dec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		dims[i] = int(v)
	}

	total := Product(dims)
	logical := make([]float32, total)
	st := strides(dims)

	for {
		extentsPayload, err := fr.ReadBlock()
		if err != nil {
			return HeaderArray{}, err
		}
		edec := bin.NewBinDecoder(extentsPayload)
		vectorIdx, err := readInt32(edec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		bounds := make([][2]int, dimCount)
		for i := 0; i < int(dimCount); i++ {
			start, err := readInt32(edec)
			if err != nil {
				return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
			}
			end, err := readInt32(edec)
			if err != nil {
				return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
			}
			bounds[i] = [2]int{int(start) - 1, int(end) - 1}
		}

		dataPayload, err := fr.ReadBlock()
		if err != nil {
			return HeaderArray{}, err
		}
		ddec := bin.NewBinDecoder(dataPayload)
		if _, err := readInt32(ddec); err != nil { // data block's own vector_index
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}

		if err := fillSlab(logical, st, bounds, func() (float32, error) { return readFloat32(ddec) }); err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}

		if vectorIdx == 1 {
			break
		}
	}

	dict := NewSequenceDictionary[string, float32](sets)
	i := 0
	for ks := range Expand(sets) {
		dict.Set(ks, logical[i])
		i++
	}

	metadata.Dimensions = dims
	metadata.Storage = StorageFull
	return HeaderArray{Metadata: metadata, Floats: dict}, nil
}

// fillSlab writes values read from next() into logical at every
// position within the (0-based, inclusive) per-axis bounds, iterating
// row-major with the last axis fastest, matching the dense on-disk
// layout (spec §4.4.2).
func fillSlab(logical []float32, st []int, bounds [][2]int, next func() (float32, error)) error {
	n := len(bounds)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = bounds[i][0]
	}
	if n == 0 {
		v, err := next()
		if err != nil {
			return err
		}
		logical[0] = v
		return nil
	}
	for {
		offset := 0
		for i := 0; i < n; i++ {
			offset += idx[i] * st[i]
		}
		v, err := next()
		if err != nil {
			return err
		}
		logical[offset] = v

		pos := n - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] <= bounds[pos][1] {
				break
			}
			idx[pos] = bounds[pos][0]
			pos--
		}
		if pos < 0 {
			return nil
		}
	}
}

func parseSparseReal(fr *frameReader, header string, metadata Metadata, sets []Set) (HeaderArray, error) {
	metaPayload, err := fr.ReadBlock()
	if err != nil {
		return HeaderArray{}, err
	}
	dec := bin.NewBinDecoder(metaPayload)
	nonzeroCount, err := readInt32(dec)
	if err != nil {
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	if _, err := readInt32(dec); err != nil { // size_of_int
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}
	if _, err := readInt32(dec); err != nil { // size_of_real
		return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
	}

	dims := make([]int, len(sets))
	for i, s := range sets {
		dims[i] = s.Len()
	}
	total := Product(dims)
	logical := make([]float32, total)

	remaining := int(nonzeroCount)
	for remaining > 0 {
		chunkPayload, err := fr.ReadBlock()
		if err != nil {
			return HeaderArray{}, err
		}
		cdec := bin.NewBinDecoder(chunkPayload)
		vectorIdx, err := readInt32(cdec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		if _, err := readInt32(cdec); err != nil { // total_nonzero
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		chunkLen, err := readInt32(cdec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		pointers := make([]int, chunkLen)
		for i := range pointers {
			p, err := readInt32(cdec)
			if err != nil {
				return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
			}
			pointers[i] = int(p) - 1 // 1-based on disk
		}
		for _, p := range pointers {
			v, err := readFloat32(cdec)
			if err != nil {
				return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
			}
			if p >= 0 && p < len(logical) {
				logical[p] = v
			}
		}
		remaining -= int(chunkLen)

		if vectorIdx == 1 {
			break
		}
	}

	dict := NewSequenceDictionary[string, float32](sets)
	i := 0
	for ks := range Expand(sets) {
		dict.Set(ks, logical[i])
		i++
	}

	metadata.Dimensions = dims
	metadata.Storage = StorageSpSE
	return HeaderArray{Metadata: metadata, Floats: dict}, nil
}

// parseLegacyReal reads a legacy RL record: a single dense block keyed
// by synthetic index (spec §4.4.3 — "behaviour present in source but
// exercised less").
func parseLegacyReal(fr *frameReader, header string, meta recordMeta) (HeaderArray, error) {
	total := Product(meta.Dimensions)
	payload, err := fr.ReadBlock()
	if err != nil {
		return HeaderArray{}, err
	}
	dec := bin.NewBinDecoder(payload)
	values := make([]float32, total)
	for i := range values {
		v, err := readFloat32(dec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		values[i] = v
	}

	sets := []Set{indexSet(total)}
	dict := NewSequenceDictionary[string, float32](sets)
	for i, v := range values {
		dict.Set(SingleKey(strconv.Itoa(i)), v)
	}

	return HeaderArray{
		Metadata: Metadata{
			Header:      header,
			Coefficient: header,
			Description: meta.Description,
			Type:        TypeRealLeg,
			Storage:     StorageFull,
			Dimensions:  []int{total},
			Sets:        sets,
		},
		Floats: dict,
	}, nil
}

// parseIndexed reads a 2I or 2R record (spec §4.4.4): a single repeated
// block of (vectors, total_count, max_per_vector, vectors', total_count',
// max_per_vector', vector_number, value0, value1, …), accumulated until
// the leading vector_number == 1.
func parseIndexed(fr *frameReader, header string, meta recordMeta, isFloat bool) (HeaderArray, error) {
	var floats []float32
	var ints []int32

	for {
		payload, err := fr.ReadBlock()
		if err != nil {
			return HeaderArray{}, err
		}
		dec := bin.NewBinDecoder(payload)

		for i := 0; i < 3; i++ { // vectors, total_count, max_per_vector
			if _, err := readInt32(dec); err != nil {
				return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
			}
		}
		if _, err := readInt32(dec); err != nil { // vectors'
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		if _, err := readInt32(dec); err != nil { // total_count'
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		maxPerVector2, err := readInt32(dec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}
		vectorNumber, err := readInt32(dec)
		if err != nil {
			return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
		}

		n := int(maxPerVector2)
		for i := 0; i < n; i++ {
			if isFloat {
				v, err := readFloat32(dec)
				if err != nil {
					return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
				}
				floats = append(floats, v)
			} else {
				v, err := readInt32(dec)
				if err != nil {
					return HeaderArray{}, &IOError{Op: "read", Record: header, Err: err}
				}
				ints = append(ints, v)
			}
		}

		if vectorNumber == 1 {
			break
		}
	}

	var n int
	if isFloat {
		n = len(floats)
	} else {
		n = len(ints)
	}
	sets := []Set{indexSet(n)}

	rt := TypeInt2D
	if isFloat {
		rt = TypeReal2D
	}
	metadata := Metadata{
		Header:      header,
		Coefficient: header,
		Description: meta.Description,
		Type:        rt,
		Storage:     StorageFull,
		Dimensions:  []int{n},
		Sets:        sets,
	}

	if isFloat {
		dict := NewSequenceDictionary[string, float32](sets)
		for i, v := range floats {
			dict.Set(SingleKey(strconv.Itoa(i)), v)
		}
		return HeaderArray{Metadata: metadata, Floats: dict}, nil
	}

	dict := NewSequenceDictionary[string, int32](sets)
	for i, v := range ints {
		dict.Set(SingleKey(strconv.Itoa(i)), v)
	}
	return HeaderArray{Metadata: metadata, Ints: dict}, nil
}
