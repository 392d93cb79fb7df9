// gempack.dev/har - HARX companion format
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

// Package harx implements the HARX companion format: a ZIP archive
// holding one JSON document per array. It exists purely to exercise
// the lossless round-trip property the core format's test suite
// checks for; HARX is not part of the on-disk HAR/SL4 codec itself.
package harx

import (
	"archive/zip"
	"encoding/json"
	"io"
	"sort"

	"gempack.dev/har"
)

type document struct {
	Header      string
	Coefficient string
	Description string
	Type        string
	Storage     string
	Dimensions  []int
	Sets        []setDoc
	Entries     map[string]json.RawMessage
}

type setDoc struct {
	Key   string
	Value []string
}

// Write serialises f as a HARX zip archive, one "<header>.json" entry
// per array.
func Write(w io.Writer, f *har.HeaderArrayFile) error {
	zw := zip.NewWriter(w)

	for _, arr := range f.Arrays {
		doc, err := toDocument(arr)
		if err != nil {
			zw.Close()
			return err
		}
		entry, err := zw.Create(arr.Header + ".json")
		if err != nil {
			zw.Close()
			return &har.IOError{Op: "write", Record: arr.Header, Err: err}
		}
		enc := json.NewEncoder(entry)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			zw.Close()
			return &har.IOError{Op: "write", Record: arr.Header, Err: err}
		}
	}

	return zw.Close()
}

// Read parses a HARX zip archive back into a HeaderArrayFile, sorted by
// header for deterministic enumeration.
func Read(r io.ReaderAt, size int64) (*har.HeaderArrayFile, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &har.IOError{Op: "read", Err: err}
	}

	out := &har.HeaderArrayFile{}
	for _, entry := range zr.File {
		rc, err := entry.Open()
		if err != nil {
			return nil, &har.IOError{Op: "read", Record: entry.Name, Err: err}
		}
		var doc document
		err = json.NewDecoder(rc).Decode(&doc)
		rc.Close()
		if err != nil {
			return nil, &har.IOError{Op: "read", Record: entry.Name, Err: err}
		}

		arr, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		out.Arrays = append(out.Arrays, arr)
	}

	sort.Slice(out.Arrays, func(i, j int) bool { return out.Arrays[i].Header < out.Arrays[j].Header })
	return out, nil
}

func toDocument(arr har.HeaderArray) (document, error) {
	doc := document{
		Header:      arr.Header,
		Coefficient: arr.Coefficient,
		Description: arr.Description,
		Type:        string(arr.Type),
		Storage:     string(arr.Storage),
		Dimensions:  arr.Dimensions,
		Entries:     make(map[string]json.RawMessage),
	}
	for _, s := range arr.Sets {
		doc.Sets = append(doc.Sets, setDoc{Key: s.Name, Value: s.Labels})
	}

	switch {
	case arr.Chars != nil:
		for _, k := range arr.Chars.Keys() {
			v, _ := arr.Chars.Get(k)
			b, err := json.Marshal(v)
			if err != nil {
				return document{}, &har.IOError{Op: "write", Record: arr.Header, Err: err}
			}
			doc.Entries[k.String()] = b
		}
	case arr.Ints != nil:
		for _, k := range arr.Ints.Keys() {
			v, _ := arr.Ints.Get(k)
			b, err := json.Marshal(v)
			if err != nil {
				return document{}, &har.IOError{Op: "write", Record: arr.Header, Err: err}
			}
			doc.Entries[k.String()] = b
		}
	case arr.Floats != nil:
		for _, k := range arr.Floats.Keys() {
			v, _ := arr.Floats.Get(k)
			b, err := json.Marshal(v)
			if err != nil {
				return document{}, &har.IOError{Op: "write", Record: arr.Header, Err: err}
			}
			doc.Entries[k.String()] = b
		}
	}

	return doc, nil
}

func fromDocument(doc document) (har.HeaderArray, error) {
	var sets []har.Set
	for _, s := range doc.Sets {
		sets = append(sets, har.Set{Name: s.Key, Labels: s.Value})
	}

	meta := har.Metadata{
		Header:      doc.Header,
		Coefficient: doc.Coefficient,
		Description: doc.Description,
		Type:        har.RecordType(doc.Type),
		Storage:     har.Storage(doc.Storage),
		Dimensions:  doc.Dimensions,
		Sets:        sets,
	}

	switch meta.Type {
	case har.TypeChar:
		dict := har.NewSequenceDictionary[string, string](sets)
		if err := fillDict(dict, doc.Entries, sets); err != nil {
			return har.HeaderArray{}, err
		}
		return har.HeaderArray{Metadata: meta, Chars: dict}, nil
	case har.TypeInt2D:
		dict := har.NewSequenceDictionary[string, int32](sets)
		if err := fillDict(dict, doc.Entries, sets); err != nil {
			return har.HeaderArray{}, err
		}
		return har.HeaderArray{Metadata: meta, Ints: dict}, nil
	default: // RE, RL, 2R all carry float32 values
		dict := har.NewSequenceDictionary[string, float32](sets)
		if err := fillDict(dict, doc.Entries, sets); err != nil {
			return har.HeaderArray{}, err
		}
		return har.HeaderArray{Metadata: meta, Floats: dict}, nil
	}
}

// dictSetter abstracts over the three typed SequenceDictionary
// instantiations so fillDict can be written once.
type dictSetter[V any] interface {
	Set(key har.KeySequence[string], value V)
}

func fillDict[V any](dict dictSetter[V], entries map[string]json.RawMessage, sets []har.Set) error {
	if len(sets) == 0 {
		raw, ok := entries[har.NewKeySequence[string]().String()]
		if !ok {
			return nil
		}
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return &har.IOError{Op: "read", Err: err}
		}
		dict.Set(har.NewKeySequence[string](), v)
		return nil
	}

	i := 0
	for ks := range har.Expand(sets) {
		raw, ok := entries[ks.String()]
		if !ok {
			i++
			continue
		}
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return &har.IOError{Op: "read", Err: err}
		}
		dict.Set(ks, v)
		i++
	}
	return nil
}
