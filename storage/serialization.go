// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/kbingest/core"
)

const documentFormat = 1

// Encoder writes MUS-encoded values. An Encoder without a buffer only counts
// the bytes the values would take.
type Encoder struct {
	bs []byte
	n  int
}

// Encode runs fn twice, first to size the buffer and then to fill it.
func Encode(fn func(*Encoder)) []byte {
	var sizer Encoder
	fn(&sizer)
	e := Encoder{bs: make([]byte, sizer.n)}
	fn(&e)
	return e.bs
}

func (e *Encoder) WriteString(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) WriteInt(v int) {
	if e.bs == nil {
		e.n += varint.Int.Size(v)
		return
	}
	e.n += varint.Int.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) WriteInt64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) WriteUint32(v uint32) {
	if e.bs == nil {
		e.n += varint.Uint32.Size(v)
		return
	}
	e.n += varint.Uint32.Marshal(v, e.bs[e.n:])
}

// WriteTime writes t as microseconds since the Unix epoch.
func (e *Encoder) WriteTime(t time.Time) {
	e.WriteInt64(t.UnixMicro())
}

func (e *Encoder) WriteStrings(v []string) {
	e.WriteInt(len(v))
	for _, s := range v {
		e.WriteString(s)
	}
}

// WriteStringMap writes m with its keys sorted, so equal maps encode identically.
func (e *Encoder) WriteStringMap(m map[string]string) {
	e.WriteInt(len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		e.WriteString(k)
		e.WriteString(m[k])
	}
}

func (e *Encoder) WriteFloat32s(v []float32) {
	e.WriteInt(len(v))
	for _, f := range v {
		e.WriteUint32(math.Float32bits(f))
	}
}

// Decoder reads MUS-encoded values. The first failure sticks; later reads
// return zero values and Err reports it.
type Decoder struct {
	bs  []byte
	n   int
	err error
}

// NewDecoder reads from bs.
func NewDecoder(bs []byte) *Decoder {
	return &Decoder{bs: bs}
}

// Err returns the first decoding failure, if any.
func (d *Decoder) Err() error {
	if d.err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
}

func (d *Decoder) ReadString() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) ReadInt() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) ReadInt64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) ReadUint32() uint32 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) ReadTime() time.Time {
	return time.UnixMicro(d.ReadInt64()).UTC()
}

// length reads a collection length and checks it against the remaining bytes,
// each element taking at least one byte.
func (d *Decoder) length() int {
	l := d.ReadInt()
	if d.err == nil && (l < 0 || l > len(d.bs)-d.n) {
		d.err = ErrTruncatedData
		return 0
	}
	return l
}

func (d *Decoder) ReadStrings() []string {
	l := d.length()
	if l == 0 {
		return nil
	}
	v := make([]string, 0, l)
	for i := 0; i < l && d.err == nil; i++ {
		v = append(v, d.ReadString())
	}
	return v
}

func (d *Decoder) ReadStringMap() map[string]string {
	l := d.length()
	if l == 0 {
		return nil
	}
	m := make(map[string]string, l)
	for i := 0; i < l && d.err == nil; i++ {
		k := d.ReadString()
		m[k] = d.ReadString()
	}
	return m
}

func (d *Decoder) ReadFloat32s() []float32 {
	l := d.length()
	if l == 0 {
		return nil
	}
	v := make([]float32, 0, l)
	for i := 0; i < l && d.err == nil; i++ {
		v = append(v, math.Float32frombits(d.ReadUint32()))
	}
	return v
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	return Encode(func(e *Encoder) {
		e.WriteInt(documentFormat)
		e.WriteString(doc.ID)
		e.WriteString(doc.Title)
		e.WriteString(doc.ContentHash)
		e.WriteString(string(doc.SourceType))
		e.WriteString(doc.SourceURL)
		e.WriteString(string(doc.Status))
		e.WriteStrings(doc.ChunkRefs)
		e.WriteInt(doc.ChunksCount)
		e.WriteInt(doc.TotalChars)
		e.WriteStringMap(doc.Metadata)
		e.WriteTime(doc.CreatedAt)
		e.WriteTime(doc.UpdatedAt)
	})
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	d := NewDecoder(data)
	if format := d.ReadInt(); d.err == nil && format != documentFormat {
		return nil, fmt.Errorf("%w: unknown document format %d", ErrSerializationFailed, format)
	}
	doc := &core.Document{
		ID:          d.ReadString(),
		Title:       d.ReadString(),
		ContentHash: d.ReadString(),
		SourceType:  core.SourceType(d.ReadString()),
		SourceURL:   d.ReadString(),
		Status:      core.DocumentStatus(d.ReadString()),
		ChunkRefs:   d.ReadStrings(),
		ChunksCount: d.ReadInt(),
		TotalChars:  d.ReadInt(),
		Metadata:    d.ReadStringMap(),
		CreatedAt:   d.ReadTime(),
		UpdatedAt:   d.ReadTime(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}
