// gempack.dev/har - Binary primitives
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
	"math"
	"strings"

	bin "github.com/gagliardetto/binary"
)

// readInt32 reads a little-endian signed 32-bit integer via an unsigned
// read and a two's-complement cast, since the confirmed gagliardetto/binary
// call surface used elsewhere in the pack is ReadUint32/WriteUint32.
func readInt32(dec *bin.Decoder) (int32, error) {
	u, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return 0, err
	}
	return int32(u), nil
}

func writeInt32(enc *bin.Encoder, v int32) error {
	return enc.WriteUint32(uint32(v), bin.LE)
}

func readFloat32(dec *bin.Decoder) (float32, error) {
	u, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

func writeFloat32(enc *bin.Encoder, v float32) error {
	return enc.WriteUint32(math.Float32bits(v), bin.LE)
}

func readBytes(dec *bin.Decoder, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := dec.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeBytes(enc *bin.Encoder, b []byte) error {
	_, err := enc.Write(b)
	return err
}

// trimLabel removes leading/trailing NUL, STX (0x02) and space, per
// spec §9 "Padding characters". Locale-aware trimming must not be used.
func trimLabel(s string) string {
	return strings.Trim(s, "\x00\x02 ")
}

// padLabel right-pads s with ASCII spaces to width bytes, per spec §9.
func padLabel(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// readFixedString reads n bytes and trims them as a label/description.
func readFixedString(dec *bin.Decoder, n int) (string, error) {
	b, err := readBytes(dec, n)
	if err != nil {
		return "", err
	}
	return trimLabel(string(b)), nil
}
