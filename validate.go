// gempack.dev/har - Set validation
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
	"io"
)

// ValidateSets walks a collection and reports any set name whose label
// list differs between arrays that both declare it. It writes
// human-readable notes to notes and returns whether the collection is
// consistent; it never returns an error (spec §7).
func ValidateSets(f *HeaderArrayFile, notes io.Writer) bool {
	seen := make(map[string][]string)
	ok := true

	for _, arr := range f.Arrays {
		for _, s := range arr.Sets {
			prior, known := seen[s.Name]
			if !known {
				seen[s.Name] = s.Labels
				continue
			}
			if !labelsEqual(prior, s.Labels) {
				fmt.Fprintf(notes, "set %q: array %s disagrees with an earlier array (%d labels vs %d)\n",
					s.Name, arr.Header, len(s.Labels), len(prior))
				ok = false
			}
		}
	}

	return ok
}

func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RecommendStorage suggests FULL or SPSE storage for an array with the
// given nonzero and total element counts, based on the configured
// sparse_threshold (spec §3: storage is a writer-side choice, not a
// logical property of the array).
func RecommendStorage(nonzero, total int) Storage {
	if total == 0 {
		return StorageFull
	}
	ratio := float64(nonzero) / float64(total)
	if ratio <= config.sparseThreshold {
		return StorageSpSE
	}
	return StorageFull
}
