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
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docseek/core"
)

// Serializers for stored records. Each record is its fields in declaration
// order, with no field tags, so changing a record layout means re-indexing.
var (
	idMUS         mus.Serializer[core.ID]           = idSer{}
	timeMUS       mus.Serializer[time.Time]         = timeSer{}
	frequencyMUS  mus.Serializer[int]               = varint.PositiveInt
	termsMUS      mus.Serializer[map[string]int]    = bounded[map[string]int]{ord.NewMapSer[string, int](ord.String, varint.PositiveInt), 2}
	vectorMUS     mus.Serializer[[]float32]         = bounded[[]float32]{ord.NewSliceSer[float32](raw.Float32), 4}
	documentMUS   mus.Serializer[core.DocumentText] = documentSer{}
	embeddingMUS  mus.Serializer[core.Embedding]    = embeddingSer{}
	checkpointMUS mus.Serializer[core.Checkpoint]   = checkpointSer{}
)

type idSer struct{}

func (idSer) Marshal(id core.ID, bs []byte) int { return varint.Uint64.Marshal(uint64(id), bs) }
func (idSer) Size(id core.ID) int               { return varint.Uint64.Size(uint64(id)) }
func (idSer) Skip(bs []byte) (int, error)       { return varint.Uint64.Skip(bs) }

func (idSer) Unmarshal(bs []byte) (core.ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return core.ID(v), n, err
}

// timeSer stores microseconds since the epoch, with 0 for the zero time, and
// decodes to UTC.
type timeSer struct{}

func (timeSer) Marshal(t time.Time, bs []byte) int { return varint.Int64.Marshal(toMicro(t), bs) }
func (timeSer) Size(t time.Time) int               { return varint.Int64.Size(toMicro(t)) }
func (timeSer) Skip(bs []byte) (int, error)        { return varint.Int64.Skip(bs) }

func (timeSer) Unmarshal(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || us == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func toMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// bounded rejects a length prefix that the remaining bytes cannot hold at
// minElem bytes per element, so corrupt data never drives a huge allocation.
type bounded[T any] struct {
	mus.Serializer[T]
	minElem int
}

func (b bounded[T]) Unmarshal(bs []byte) (v T, n int, err error) {
	length, ln, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return v, 0, err
	}
	if length < 0 || length > (len(bs)-ln)/b.minElem {
		return v, 0, ErrTruncatedData
	}
	return b.Serializer.Unmarshal(bs)
}

type documentSer struct{}

func (documentSer) Marshal(d core.DocumentText, bs []byte) (n int) {
	n = idMUS.Marshal(d.ID, bs)
	n += ord.String.Marshal(d.Text, bs[n:])
	n += termsMUS.Marshal(d.Terms, bs[n:])
	n += ord.String.Marshal(d.ContentHash, bs[n:])
	n += timeMUS.Marshal(d.IndexedAt, bs[n:])
	return
}

func (documentSer) Unmarshal(bs []byte) (d core.DocumentText, n int, err error) {
	var n1 int
	if d.ID, n1, err = idMUS.Unmarshal(bs); err != nil {
		return
	}
	n += n1
	if d.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if d.Terms, n1, err = termsMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if d.ContentHash, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	d.IndexedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (documentSer) Size(d core.DocumentText) int {
	return idMUS.Size(d.ID) + ord.String.Size(d.Text) + termsMUS.Size(d.Terms) +
		ord.String.Size(d.ContentHash) + timeMUS.Size(d.IndexedAt)
}

func (documentSer) Skip(bs []byte) (int, error) {
	return skipAll(bs, idMUS.Skip, ord.String.Skip, termsMUS.Skip, ord.String.Skip, timeMUS.Skip)
}

type embeddingSer struct{}

func (embeddingSer) Marshal(e core.Embedding, bs []byte) (n int) {
	n = idMUS.Marshal(e.DocumentID, bs)
	n += vectorMUS.Marshal(e.Vector, bs[n:])
	n += ord.String.Marshal(e.SourceHash, bs[n:])
	n += ord.String.Marshal(e.Model, bs[n:])
	n += timeMUS.Marshal(e.CreatedAt, bs[n:])
	return
}

func (embeddingSer) Unmarshal(bs []byte) (e core.Embedding, n int, err error) {
	var n1 int
	if e.DocumentID, n1, err = idMUS.Unmarshal(bs); err != nil {
		return
	}
	n += n1
	if e.Vector, n1, err = vectorMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if e.SourceHash, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if e.Model, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	e.CreatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (embeddingSer) Size(e core.Embedding) int {
	return idMUS.Size(e.DocumentID) + vectorMUS.Size(e.Vector) + ord.String.Size(e.SourceHash) +
		ord.String.Size(e.Model) + timeMUS.Size(e.CreatedAt)
}

func (embeddingSer) Skip(bs []byte) (int, error) {
	return skipAll(bs, idMUS.Skip, vectorMUS.Skip, ord.String.Skip, ord.String.Skip, timeMUS.Skip)
}

type checkpointSer struct{}

func (checkpointSer) Marshal(c core.Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(c.ProcessorType, bs)
	n += idMUS.Marshal(c.LastID, bs[n:])
	n += timeMUS.Marshal(c.UpdatedAt, bs[n:])
	return
}

func (checkpointSer) Unmarshal(bs []byte) (c core.Checkpoint, n int, err error) {
	var n1 int
	if c.ProcessorType, n1, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	n += n1
	if c.LastID, n1, err = idMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	c.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (checkpointSer) Size(c core.Checkpoint) int {
	return ord.String.Size(c.ProcessorType) + idMUS.Size(c.LastID) + timeMUS.Size(c.UpdatedAt)
}

func (checkpointSer) Skip(bs []byte) (int, error) {
	return skipAll(bs, ord.String.Skip, idMUS.Skip, timeMUS.Skip)
}

func skipAll(bs []byte, skips ...func([]byte) (int, error)) (int, error) {
	n := 0
	for _, skip := range skips {
		n1, err := skip(bs[n:])
		n += n1
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
