// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package leb decodes the primitive encodings a WASM module is built
// from: LEB128 integers (signed and unsigned, 32- and 64-bit), raw
// bytes, and little-endian IEEE-754 floats. Every read advances a
// cursor over a borrowed byte slice and fails with errors.ErrTruncated
// when the buffer runs out mid-value.
package leb

import (
	"encoding/binary"
	"math"

	"github.com/dotandev/stackvm/internal/errors"
)

// Reader is a forward-only cursor over a module's raw bytes.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential decoding starting at offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current byte offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.data) - r.pos }

// Done reports whether the cursor has consumed the entire buffer.
func (r *Reader) Done() bool { return r.pos >= len(r.data) }

// Byte reads a single raw byte.
func (r *Reader) Byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.WrapTruncated("byte read past end of input")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// Bytes reads n raw bytes and returns a copy.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errors.WrapTruncated("byte slice read past end of input")
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// U32 reads an unsigned LEB128 value into a 32-bit result.
func (r *Reader) U32() (uint32, error) {
	v, err := r.uleb()
	return uint32(v), err
}

// U64 reads an unsigned LEB128 value into a 64-bit result.
func (r *Reader) U64() (uint64, error) {
	return r.uleb()
}

// S32 reads a signed LEB128 value into a 32-bit result.
func (r *Reader) S32() (int32, error) {
	v, err := r.sleb(32)
	return int32(v), err
}

// S64 reads a signed LEB128 value into a 64-bit result.
func (r *Reader) S64() (int64, error) {
	return r.sleb(64)
}

// S33 reads a signed LEB128 value as used by block-type type indices,
// which the format encodes with one extra sign bit of headroom.
func (r *Reader) S33() (int64, error) {
	return r.sleb(33)
}

// F32 reads 4 little-endian bytes and bit-casts them to float32.
func (r *Reader) F32() (float32, error) {
	raw, err := r.Bytes(4)
	if err != nil {
		return 0, errors.WrapTruncated("f32 immediate truncated")
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(raw)), nil
}

// F64 reads 8 little-endian bytes and bit-casts them to float64.
func (r *Reader) F64() (float64, error) {
	raw, err := r.Bytes(8)
	if err != nil {
		return 0, errors.WrapTruncated("f64 immediate truncated")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
}

// Name reads a length-prefixed UTF-8 string (the vec(byte) shape
// shared by import/export/custom-section names).
func (r *Reader) Name() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	raw, err := r.Bytes(int(n))
	if err != nil {
		return "", errors.WrapTruncated("name bytes truncated")
	}
	return string(raw), nil
}

func (r *Reader) uleb() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if r.pos >= len(r.data) {
			return 0, errors.WrapTruncated("uleb128 ran past end of input")
		}
		b := r.data[r.pos]
		r.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.WrapTruncated("uleb128 exceeds 64 bits")
		}
	}
}

func (r *Reader) sleb(bits uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	for {
		if r.pos >= len(r.data) {
			return 0, errors.WrapTruncated("sleb128 ran past end of input")
		}
		b = r.data[r.pos]
		r.pos++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 64 {
			return 0, errors.WrapTruncated("sleb128 exceeds 64 bits")
		}
	}
	if shift < bits && b&0x40 != 0 {
		result |= -(int64(1) << shift)
	}
	return result, nil
}

// EncodeU32 encodes v as unsigned LEB128. The test module builders use
// it; internal/wasmopt has its own encoder.
func EncodeU32(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// EncodeS64 encodes v as signed LEB128.
func EncodeS64(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
