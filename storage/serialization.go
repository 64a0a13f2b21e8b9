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
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/querysafe/core"
)

// Encoder writes MUS encoded fields. A nil buffer only accumulates the
// size, so every record is encoded twice: once to size, once to write.
type Encoder struct {
	bs []byte
	n  int
}

// Uint64 writes a varint encoded uint64.
func (e *Encoder) Uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

// Int64 writes a zigzag varint encoded int64.
func (e *Encoder) Int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

// Float32 writes the IEEE 754 bits of v.
func (e *Encoder) Float32(v float32) {
	bits := math.Float32bits(v)
	if e.bs == nil {
		e.n += varint.Uint32.Size(bits)
		return
	}
	e.n += varint.Uint32.Marshal(bits, e.bs[e.n:])
}

// String writes a length prefixed string.
func (e *Encoder) String(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

// Bool writes a single byte boolean.
func (e *Encoder) Bool(v bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

// Time writes t as microseconds since the epoch.
func (e *Encoder) Time(t time.Time) {
	e.Int64(t.UnixMicro())
}

// Strings writes a length prefixed string slice.
func (e *Encoder) Strings(vs []string) {
	e.Uint64(uint64(len(vs)))
	for _, v := range vs {
		e.String(v)
	}
}

// Encode runs fn once to size the output and once to fill it.
func Encode(fn func(e *Encoder)) []byte {
	sizer := &Encoder{}
	fn(sizer)
	e := &Encoder{bs: make([]byte, sizer.n)}
	fn(e)
	return e.bs
}

// Decoder reads MUS encoded fields. The first failure sticks; subsequent
// reads return zero values and Err reports the failure.
type Decoder struct {
	bs  []byte
	n   int
	err error
}

// NewDecoder returns a Decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{bs: data}
}

// Err returns the first decoding error.
func (d *Decoder) Err() error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return nil
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Uint64 reads a varint encoded uint64.
func (d *Decoder) Uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.n += n
	return v
}

// Int64 reads a zigzag varint encoded int64.
func (d *Decoder) Int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.n += n
	return v
}

// Float32 reads IEEE 754 bits written by Encoder.Float32.
func (d *Decoder) Float32() float32 {
	if d.err != nil {
		return 0
	}
	bits, n, err := varint.Uint32.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return 0
	}
	d.n += n
	return math.Float32frombits(bits)
}

// String reads a length prefixed string.
func (d *Decoder) String() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return ""
	}
	d.n += n
	return v
}

// Bool reads a single byte boolean.
func (d *Decoder) Bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	if err != nil {
		d.fail(err)
		return false
	}
	d.n += n
	return v
}

// Time reads a timestamp written by Encoder.Time. The result is in UTC.
func (d *Decoder) Time() time.Time {
	return time.UnixMicro(d.Int64()).UTC()
}

// Strings reads a string slice written by Encoder.Strings.
func (d *Decoder) Strings() []string {
	count := d.Len()
	if count == 0 {
		return nil
	}
	out := make([]string, 0, count)
	for i := 0; i < count && d.err == nil; i++ {
		out = append(out, d.String())
	}
	return out
}

// Len reads a collection length and rejects values that cannot fit in the
// remaining input, so a corrupt prefix never triggers a huge allocation.
func (d *Decoder) Len() int {
	count := d.Uint64()
	if d.err != nil {
		return 0
	}
	if count > uint64(len(d.bs)-d.n) {
		d.fail(ErrTruncatedData)
		return 0
	}
	return int(count)
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return Encode(func(e *Encoder) { e.Uint64(uint64(id)) })
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := NewDecoder(data)
	id := core.ID(d.Uint64())
	return id, d.Err()
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	return Encode(func(e *Encoder) {
		e.Uint64(uint64(doc.Id))
		e.String(string(doc.Tenant))
		e.String(doc.Name)
		e.String(doc.MimeType)
		e.Int64(doc.Size)
		e.String(doc.ContentHash)
		e.String(doc.BlobKey)
		e.Time(doc.UploadedAt)
	})
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	d := NewDecoder(data)
	doc := &core.Document{
		Id:          core.ID(d.Uint64()),
		Tenant:      core.TenantID(d.String()),
		Name:        d.String(),
		MimeType:    d.String(),
		Size:        d.Int64(),
		ContentHash: d.String(),
		BlobKey:     d.String(),
		UploadedAt:  d.Time(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalTenantState serializes a TenantState to bytes.
func MarshalTenantState(state *core.TenantState) []byte {
	return Encode(func(e *Encoder) {
		e.String(string(state.Tenant))
		e.String(string(state.Status))
		e.Uint64(state.Generation)
		e.String(state.ModelTag)
		e.Int64(int64(state.ChunkCount))
		e.Int64(int64(state.Dimension))
		e.String(state.LastError)
		e.Strings(state.FailedDocuments)
		e.Bool(state.Running)
		e.Time(state.UpdatedAt)
	})
}

// UnmarshalTenantState deserializes a TenantState from bytes.
func UnmarshalTenantState(data []byte) (*core.TenantState, error) {
	d := NewDecoder(data)
	state := &core.TenantState{
		Tenant:          core.TenantID(d.String()),
		Status:          core.Status(d.String()),
		Generation:      d.Uint64(),
		ModelTag:        d.String(),
		ChunkCount:      int(d.Int64()),
		Dimension:       int(d.Int64()),
		LastError:       d.String(),
		FailedDocuments: d.Strings(),
		Running:         d.Bool(),
		UpdatedAt:       d.Time(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return state, nil
}

// MarshalConversation serializes a Conversation to bytes.
func MarshalConversation(conv *core.Conversation) []byte {
	return Encode(func(e *Encoder) {
		e.String(conv.Id)
		e.String(string(conv.Tenant))
		e.String(conv.Visitor)
		e.Time(conv.StartedAt)
		e.Time(conv.LastUpdated)
	})
}

// UnmarshalConversation deserializes a Conversation from bytes.
func UnmarshalConversation(data []byte) (*core.Conversation, error) {
	d := NewDecoder(data)
	conv := &core.Conversation{
		Id:          d.String(),
		Tenant:      core.TenantID(d.String()),
		Visitor:     d.String(),
		StartedAt:   d.Time(),
		LastUpdated: d.Time(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return conv, nil
}

// MarshalMessage serializes a Message to bytes.
func MarshalMessage(msg *core.Message) []byte {
	return Encode(func(e *Encoder) {
		e.Uint64(uint64(msg.Id))
		e.String(msg.Conversation)
		e.String(string(msg.Tenant))
		e.Int64(int64(msg.Role))
		e.String(msg.Text)
		e.Time(msg.Timestamp)
	})
}

// UnmarshalMessage deserializes a Message from bytes.
func UnmarshalMessage(data []byte) (*core.Message, error) {
	d := NewDecoder(data)
	msg := &core.Message{
		Id:           core.ID(d.Uint64()),
		Conversation: d.String(),
		Tenant:       core.TenantID(d.String()),
		Role:         core.Role(d.Int64()),
		Text:         d.String(),
		Timestamp:    d.Time(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return msg, nil
}
