// gempack.dev/har - Framing
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

// Package har reads and writes Header Array (HAR) files and their
// derivatives (the SL4 solution file, the HARX zipped-JSON companion
// format), the legacy binary container used by Gempack-family
// economic-modelling tools.
package har

import (
	"bytes"
	"io"

	bin "github.com/gagliardetto/binary"
)

// Sentinels that frame every HAR block (spec §4.1, GLOSSARY).
const (
	paddingSentinel uint32 = 0x20202020
	spacerSentinel  uint32 = 0xFFFFFFFF
)

// gempackVectorLimit is the maximum number of elements Gempack's Fortran
// runtime will accept in a single on-disk vector (spec §4.5).
const gempackVectorLimit = 1_999_991

// frameReader reads framed HAR blocks from a single sequential stream.
// Record parsing is inherently sequential (spec §5): each block's
// length prefix tells the reader how far to advance next.
type frameReader struct {
	r    io.Reader
	last string // header of the record currently being parsed, for error context
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: r}
}

func (f *frameReader) readUint32() (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return 0, err
	}
	dec := bin.NewBinDecoder(buf)
	return dec.ReadUint32(bin.LE)
}

// ReadHeaderString reads the 4-character record identifier. It is
// framed with a length prefix/suffix like every other block, but
// carries no padding sentinel (spec §4.1).
func (f *frameReader) ReadHeaderString() (string, error) {
	openLen, err := f.readUint32()
	if err != nil {
		return "", err
	}
	payload := make([]byte, openLen)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return "", &IOError{Op: "read", Record: f.last, Err: err}
	}
	closeLen, err := f.readUint32()
	if err != nil {
		return "", &IOError{Op: "read", Record: f.last, Err: err}
	}
	if closeLen != openLen {
		return "", &DataValidation{Kind: ValidationLength, Record: f.last, Expected: openLen, Actual: closeLen}
	}
	f.last = string(payload)
	return f.last, nil
}

// ReadBlock reads a padding-prefixed payload block, verifying and
// stripping the padding sentinel before returning the semantic content.
func (f *frameReader) ReadBlock() ([]byte, error) {
	openLen, err := f.readUint32()
	if err != nil {
		return nil, err
	}
	payload := make([]byte, openLen)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return nil, &IOError{Op: "read", Record: f.last, Err: err}
	}
	closeLen, err := f.readUint32()
	if err != nil {
		return nil, &IOError{Op: "read", Record: f.last, Err: err}
	}
	if closeLen != openLen {
		return nil, &DataValidation{Kind: ValidationLength, Record: f.last, Expected: openLen, Actual: closeLen}
	}
	if len(payload) < 4 {
		return nil, &DataValidation{Kind: ValidationPadding, Record: f.last, Expected: paddingSentinel}
	}
	pad := bin.NewBinDecoder(payload[:4])
	padVal, err := pad.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	if padVal != paddingSentinel {
		return nil, &DataValidation{Kind: ValidationPadding, Record: f.last, Expected: paddingSentinel, Actual: padVal}
	}
	return payload[4:], nil
}

// checkSpacer validates the 0xFFFFFFFF spacer sentinel expected at a
// known offset inside set-definition blocks (spec §4.1, §4.4.5). The
// check is relaxed for zero-set scalar records per §4.4.5.
func checkSpacer(record string, got uint32, relaxed bool) error {
	if got == spacerSentinel || relaxed {
		return nil
	}
	return &DataValidation{Kind: ValidationSpacer, Record: record, Expected: spacerSentinel, Actual: got}
}

// frameWriter writes framed HAR blocks to a single sequential stream.
type frameWriter struct {
	w io.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

func (f *frameWriter) writeUint32(v uint32) error {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint32(v, bin.LE); err != nil {
		return err
	}
	_, err := f.w.Write(buf.Bytes())
	return err
}

// WriteHeaderString writes the 4-character record identifier, framed
// with a length prefix/suffix but no padding sentinel.
func (f *frameWriter) WriteHeaderString(s string) error {
	payload := []byte(s)
	if err := f.writeUint32(uint32(len(payload))); err != nil {
		return &IOError{Op: "write", Record: s, Err: err}
	}
	if _, err := f.w.Write(payload); err != nil {
		return &IOError{Op: "write", Record: s, Err: err}
	}
	return f.writeUint32(uint32(len(payload)))
}

// WriteBlock writes a padding-prefixed payload block.
func (f *frameWriter) WriteBlock(record string, payload []byte) error {
	framed := make([]byte, 0, len(payload)+4)
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint32(paddingSentinel, bin.LE); err != nil {
		return err
	}
	framed = append(framed, buf.Bytes()...)
	framed = append(framed, payload...)

	if err := f.writeUint32(uint32(len(framed))); err != nil {
		return &IOError{Op: "write", Record: record, Err: err}
	}
	if _, err := f.w.Write(framed); err != nil {
		return &IOError{Op: "write", Record: record, Err: err}
	}
	return f.writeUint32(uint32(len(framed)))
}
