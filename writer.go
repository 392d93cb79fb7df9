// gempack.dev/har - BinaryWriter
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
	"io"

	bin "github.com/gagliardetto/binary"
)

// WriteHAR serialises a HeaderArrayFile in file order (spec §4.5, §5).
func WriteHAR(w io.Writer, f *HeaderArrayFile) error {
	fw := newFrameWriter(w)
	for _, arr := range f.Arrays {
		if err := writeRecord(fw, arr); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(fw *frameWriter, arr HeaderArray) error {
	if err := fw.WriteHeaderString(arr.Header); err != nil {
		return err
	}
	if err := writeRecordMeta(fw, arr); err != nil {
		return err
	}

	switch arr.Type {
	case TypeChar:
		return writeChar(fw, arr)
	case TypeReal:
		return writeReal(fw, arr)
	case TypeRealLeg:
		return &UnsupportedOperation{Op: "write RL", Detail: "legacy real records are read-only"}
	case TypeInt2D:
		return writeIndexedInt(fw, arr)
	case TypeReal2D:
		return writeIndexedReal(fw, arr)
	default:
		return &InvalidArgument{Arg: "arr.Type", Detail: string(arr.Type)}
	}
}

func writeRecordMeta(fw *frameWriter, arr HeaderArray) error {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)

	if err := writeBytes(enc, []byte(padLabel(string(arr.Type), 2))); err != nil {
		return err
	}
	if err := writeBytes(enc, []byte(padLabel(string(arr.Storage), 4))); err != nil {
		return err
	}
	if err := writeBytes(enc, []byte(padLabel(arr.Description, 70))); err != nil {
		return err
	}
	if err := writeInt32(enc, int32(len(arr.Dimensions))); err != nil {
		return err
	}
	for _, d := range arr.Dimensions {
		if err := writeInt32(enc, int32(d)); err != nil {
			return err
		}
	}
	return fw.WriteBlock(arr.Header, buf.Bytes())
}

// writeLabelBlock writes one per-set label block in the same format
// readLabelBlock consumes: a single segment (vector_index=1, since
// label vocabularies are always far below the Gempack vector limit in
// practice) holding every label at a shared fixed width.
func writeLabelBlock(fw *frameWriter, header string, labels []string) error {
	width := 0
	for _, l := range labels {
		if len(l) > width {
			width = len(l)
		}
	}
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := writeInt32(enc, 1); err != nil { // vector_index: final (only) segment
		return err
	}
	if err := writeInt32(enc, int32(len(labels))); err != nil {
		return err
	}
	if err := writeInt32(enc, int32(len(labels))); err != nil {
		return err
	}
	for _, l := range labels {
		if err := writeBytes(enc, []byte(padLabel(l, width))); err != nil {
			return err
		}
	}
	return fw.WriteBlock(header, buf.Bytes())
}

func writeChar(fw *frameWriter, arr HeaderArray) error {
	entries := arr.Chars.Keys()
	labels := make([]string, len(entries))
	for i, k := range entries {
		v, _ := arr.Chars.Get(k)
		labels[i] = v
	}
	return writeLabelBlock(fw, arr.Header, labels)
}

// writeReal writes an RE record, choosing FULL or SPSE storage
// according to arr.Storage (spec §4.5).
func writeReal(fw *frameWriter, arr HeaderArray) error {
	if err := writeSetHeader(fw, arr); err != nil {
		return err
	}
	if arr.Storage == StorageSpSE {
		return writeSparseReal(fw, arr)
	}
	return writeDenseReal(fw, arr)
}

func writeSetHeader(fw *frameWriter, arr HeaderArray) error {
	sets := arr.Sets
	distinct := sets
	// Collapse a trailing duplicated set (the "last set duplicated"
	// read convention, spec §4.4.2) back to the a/c split on write.
	totalCount := len(sets)
	if n := len(sets); n >= 2 && sets[n-1].Name == sets[n-2].Name {
		distinct = sets[:n-1]
	}
	distinctCount := len(distinct)
	if len(sets) == 1 && sets[0].Name == arr.Coefficient && sets[0].Len() == 1 && sets[0].Labels[0] == arr.Coefficient {
		distinct = nil
		distinctCount = 0
		totalCount = 0
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := writeInt32(enc, int32(distinctCount)); err != nil {
		return err
	}
	if err := enc.WriteUint32(spacerSentinel, bin.LE); err != nil {
		return err
	}
	if err := writeInt32(enc, int32(totalCount)); err != nil {
		return err
	}
	if err := writeBytes(enc, []byte(padLabel(arr.Coefficient, 12))); err != nil {
		return err
	}
	if err := enc.WriteUint32(spacerSentinel, bin.LE); err != nil {
		return err
	}
	for _, s := range distinct {
		if err := writeBytes(enc, []byte(padLabel(s.Name, 12))); err != nil {
			return err
		}
	}
	if err := fw.WriteBlock(arr.Header, buf.Bytes()); err != nil {
		return err
	}

	for _, s := range distinct {
		if err := writeLabelBlock(fw, arr.Header, s.Labels); err != nil {
			return err
		}
	}
	return nil
}

// effectiveVectorLimit returns the configured per-vector element limit,
// falling back to the Gempack default when unconfigured (spec §4.5,
// overridable per the har.vector_limit configuration entry).
func effectiveVectorLimit() uint32 {
	if config.vectorLimit == 0 {
		return gempackVectorLimit
	}
	return config.vectorLimit
}

// denseSegments partitions the full dims box into axis-aligned
// sub-boxes of at most limit elements each, in row-major order (spec
// §4.5: "equally-sized segments along the remaining axes"). A reader
// places each segment purely from its own explicit bounds, so segments
// need not be flat-contiguous ranges of the logical array — only
// axis-aligned boxes whose union exactly covers it once.
func denseSegments(dims []int, limit int) [][][2]int {
	box := make([][2]int, len(dims))
	for i, d := range dims {
		box[i] = [2]int{0, d - 1}
	}
	if limit < 1 {
		limit = 1
	}
	return splitBox(box, limit)
}

func boxVolume(box [][2]int) int {
	v := 1
	for _, r := range box {
		v *= r[1] - r[0] + 1
	}
	return v
}

// splitBox recursively partitions box into sub-boxes of at most limit
// elements, splitting the slowest-varying axis that still spans more
// than one value and packing as many of its values together as fit.
// When even a single value of that axis still exceeds the limit (the
// remaining axes alone are too large), the recursion walks rightward
// until it reaches the axis that needs dividing — including the
// fastest-varying axis itself, so a single oversized trailing axis
// still gets split into multiple segments rather than emitting one
// vector over the Gempack per-vector limit.
func splitBox(box [][2]int, limit int) [][][2]int {
	if boxVolume(box) <= limit {
		return [][][2]int{box}
	}

	axis := -1
	for i, r := range box {
		if r[1] > r[0] {
			axis = i
			break
		}
	}
	if axis == -1 {
		// A single-element box can't exceed a limit >= 1.
		return [][][2]int{box}
	}

	lo, hi := box[axis][0], box[axis][1]
	rest := boxVolume(box) / (hi - lo + 1)
	rows := limit / rest
	if rows < 1 {
		rows = 1
	}

	var out [][][2]int
	for start := lo; start <= hi; start += rows {
		end := start + rows - 1
		if end > hi {
			end = hi
		}
		sub := append([][2]int(nil), box...)
		sub[axis] = [2]int{start, end}
		out = append(out, splitBox(sub, limit)...)
	}
	return out
}

func writeDenseReal(fw *frameWriter, arr HeaderArray) error {
	dims := arr.Dimensions
	total := Product(dims)
	logical := make([]float32, total)
	st := strides(dims)
	i := 0
	for ks := range Expand(arr.Sets) {
		v, _ := arr.Floats.Get(ks)
		logical[i] = v
		i++
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := writeInt32(enc, 1); err != nil { // record-dimensions block carries its own fixed vector_index
		return err
	}
	if err := writeInt32(enc, int32(len(dims))); err != nil {
		return err
	}
	for _, d := range dims {
		if err := writeInt32(enc, int32(d)); err != nil {
			return err
		}
	}
	if err := fw.WriteBlock(arr.Header, buf.Bytes()); err != nil {
		return err
	}

	if total == 0 {
		return nil
	}

	segments := denseSegments(dims, int(effectiveVectorLimit()))
	for s, bounds := range segments {
		vectorIdx := int32(len(segments) - s)

		ebuf := new(bytes.Buffer)
		eenc := bin.NewBinEncoder(ebuf)
		if err := writeInt32(eenc, vectorIdx); err != nil {
			return err
		}
		for _, b := range bounds {
			if err := writeInt32(eenc, int32(b[0]+1)); err != nil {
				return err
			}
			if err := writeInt32(eenc, int32(b[1]+1)); err != nil {
				return err
			}
		}
		if err := fw.WriteBlock(arr.Header, ebuf.Bytes()); err != nil {
			return err
		}

		dbuf := new(bytes.Buffer)
		denc := bin.NewBinEncoder(dbuf)
		if err := writeInt32(denc, vectorIdx); err != nil {
			return err
		}
		if err := writeSlab(logical, st, bounds, denc); err != nil {
			return err
		}
		if err := fw.WriteBlock(arr.Header, dbuf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// writeSlab writes logical's values within the (0-based, inclusive)
// per-axis bounds to enc, iterating row-major with the last axis
// fastest — the write-side mirror of fillSlab.
func writeSlab(logical []float32, st []int, bounds [][2]int, enc *bin.Encoder) error {
	n := len(bounds)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = bounds[i][0]
	}
	if n == 0 {
		return writeFloat32(enc, logical[0])
	}
	for {
		offset := 0
		for i := 0; i < n; i++ {
			offset += idx[i] * st[i]
		}
		if err := writeFloat32(enc, logical[offset]); err != nil {
			return err
		}

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

func writeSparseReal(fw *frameWriter, arr HeaderArray) error {
	dims := arr.Dimensions
	total := Product(dims)
	logical := make([]float32, total)
	nonzero := 0
	i := 0
	for ks := range Expand(arr.Sets) {
		v, _ := arr.Floats.Get(ks)
		logical[i] = v
		if v != 0 {
			nonzero++
		}
		i++
	}

	mbuf := new(bytes.Buffer)
	menc := bin.NewBinEncoder(mbuf)
	if err := writeInt32(menc, int32(nonzero)); err != nil {
		return err
	}
	if err := writeInt32(menc, 4); err != nil { // size_of_int
		return err
	}
	if err := writeInt32(menc, 4); err != nil { // size_of_real
		return err
	}
	if err := fw.WriteBlock(arr.Header, mbuf.Bytes()); err != nil {
		return err
	}

	const maxChunk = 4096
	var pointers []int
	var values []float32
	for idx, v := range logical {
		if v == 0 {
			continue
		}
		pointers = append(pointers, idx+1) // 1-based on disk
		values = append(values, v)
	}

	if len(pointers) == 0 {
		// Invariant: an all-zero sparse array produces nonzero_count == 0
		// and no value chunks at all (spec §8, property 11).
		return nil
	}

	chunks := (len(pointers) + maxChunk - 1) / maxChunk
	for c := 0; c < chunks; c++ {
		start := c * maxChunk
		end := start + maxChunk
		if end > len(pointers) {
			end = len(pointers)
		}
		vectorIdx := int32(chunks - c)

		cbuf := new(bytes.Buffer)
		cenc := bin.NewBinEncoder(cbuf)
		if err := writeInt32(cenc, vectorIdx); err != nil {
			return err
		}
		if err := writeInt32(cenc, int32(len(pointers))); err != nil {
			return err
		}
		if err := writeInt32(cenc, int32(end-start)); err != nil {
			return err
		}
		for _, p := range pointers[start:end] {
			if err := writeInt32(cenc, int32(p)); err != nil {
				return err
			}
		}
		for _, v := range values[start:end] {
			if err := writeFloat32(cenc, v); err != nil {
				return err
			}
		}
		if err := fw.WriteBlock(arr.Header, cbuf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// indexedSegmentRanges splits total elements into consecutive [start,end)
// ranges of at most limit elements each (spec §4.5: "For 2I/2R the
// writer emits vector_index starting from N and counting down to 1").
// An empty array still emits a single, empty segment.
func indexedSegmentRanges(total, limit int) [][2]int {
	if limit < 1 {
		limit = 1
	}
	if total == 0 {
		return [][2]int{{0, 0}}
	}
	var out [][2]int
	for start := 0; start < total; start += limit {
		end := start + limit
		if end > total {
			end = total
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func writeIndexedInt(fw *frameWriter, arr HeaderArray) error {
	entries := arr.Ints.Keys()
	values := make([]int32, len(entries))
	for i, k := range entries {
		values[i], _ = arr.Ints.Get(k)
	}

	total := int32(len(values))
	ranges := indexedSegmentRanges(len(values), int(effectiveVectorLimit()))
	for s, r := range ranges {
		segLen := int32(r[1] - r[0])
		vectorNumber := int32(len(ranges) - s)

		buf := new(bytes.Buffer)
		enc := bin.NewBinEncoder(buf)
		for _, v := range []int32{total, total, segLen, total, total, segLen} {
			if err := writeInt32(enc, v); err != nil {
				return err
			}
		}
		if err := writeInt32(enc, vectorNumber); err != nil {
			return err
		}
		for _, v := range values[r[0]:r[1]] {
			if err := writeInt32(enc, v); err != nil {
				return err
			}
		}
		if err := fw.WriteBlock(arr.Header, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func writeIndexedReal(fw *frameWriter, arr HeaderArray) error {
	entries := arr.Floats.Keys()
	values := make([]float32, len(entries))
	for i, k := range entries {
		values[i], _ = arr.Floats.Get(k)
	}

	total := int32(len(values))
	ranges := indexedSegmentRanges(len(values), int(effectiveVectorLimit()))
	for s, r := range ranges {
		segLen := int32(r[1] - r[0])
		vectorNumber := int32(len(ranges) - s)

		buf := new(bytes.Buffer)
		enc := bin.NewBinEncoder(buf)
		for _, v := range []int32{total, total, segLen, total, total, segLen} {
			if err := writeInt32(enc, v); err != nil {
				return err
			}
		}
		if err := writeInt32(enc, vectorNumber); err != nil {
			return err
		}
		for _, v := range values[r[0]:r[1]] {
			if err := writeFloat32(enc, v); err != nil {
				return err
			}
		}
		if err := fw.WriteBlock(arr.Header, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
