// gempack.dev/har - Safe file writes
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
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// WriteHARSafe writes f to path by first writing to a uuid-suffixed
// temporary file in the same directory, then renaming it into place, so
// a reader never observes a partially-written file (spec §5: "callers
// are expected to write to a temp path and rename").
func WriteHARSafe(path string, f *HeaderArrayFile) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, filepath.Base(path)+"."+uuid.NewString()+".tmp")

	out, err := os.Create(tmp)
	if err != nil {
		return &IOError{Op: "create", Err: err}
	}

	if err := WriteHAR(out, f); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "close", Err: err}
	}

	if st, err := os.Stat(tmp); err == nil {
		log.Printf("har: wrote %d array(s), %s, to %s", len(f.Arrays), humanize.Bytes(uint64(st.Size())), tmp)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "rename", Err: err}
	}
	return nil
}
