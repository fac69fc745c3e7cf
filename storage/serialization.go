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
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/ragrouter/core"
)

// IntentRecord is the stored form of an intent node. Position keeps declaration
// order across a key-ordered store.
type IntentRecord struct {
	Position int
	Node     core.IntentNode
}

// TermFreq is one term of a lexical document with its in-document frequency.
type TermFreq struct {
	Term string
	Freq int
}

// LexicalDoc is the stored form of a keyword-indexed chunk.
type LexicalDoc struct {
	ID         string
	Text       string
	Collection string
	Metadata   map[string]string
	Length     int
	Terms      []TermFreq
}

// VectorDoc is the stored form of a chunk in the badger vector store.
type VectorDoc struct {
	ID         string
	Text       string
	Collection string
	Metadata   map[string]string
	Vector     []float32
}

// LexicalStats holds corpus-wide counters used by BM25.
type LexicalStats struct {
	DocCount    int
	TotalLength int
}

// AverageLength returns the mean document length in tokens.
func (s LexicalStats) AverageLength() float64 {
	if s.DocCount == 0 {
		return 0
	}
	return float64(s.TotalLength) / float64(s.DocCount)
}

// encoder accumulates sizes and writes values with mus serializers.
type encoder struct {
	buf []byte
	n   int
}

func (e *encoder) int(v int) {
	if e.buf == nil {
		e.n += varint.Int.Size(v)
		return
	}
	e.n += varint.Int.Marshal(v, e.buf[e.n:])
}

func (e *encoder) string(v string) {
	if e.buf == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.buf[e.n:])
}

func (e *encoder) bool(v bool) {
	if e.buf == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.buf[e.n:])
}

func (e *encoder) strings(v []string) {
	e.int(len(v))
	for _, s := range v {
		e.string(s)
	}
}

func (e *encoder) stringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.int(len(keys))
	for _, k := range keys {
		e.string(k)
		e.string(m[k])
	}
}

// vector writes a length followed by fixed-width little-endian floats.
func (e *encoder) vector(v []float32) {
	e.int(len(v))
	if e.buf == nil {
		e.n += 4 * len(v)
		return
	}
	for _, f := range v {
		binary.LittleEndian.PutUint32(e.buf[e.n:], math.Float32bits(f))
		e.n += 4
	}
}

// encode runs fn twice: once to size the buffer, once to fill it.
func encode(fn func(e *encoder)) []byte {
	sizer := &encoder{}
	fn(sizer)
	e := &encoder{buf: make([]byte, sizer.n)}
	fn(e)
	return e.buf
}

// decoder reads values back, remembering the first error.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.data[d.off:])
	d.off += n
	d.err = err
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.data[d.off:])
	d.off += n
	d.err = err
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.data[d.off:])
	d.off += n
	d.err = err
	return v
}

func (d *decoder) length() int {
	n := d.int()
	if d.err == nil && (n < 0 || n > len(d.data)-d.off) {
		d.err = ErrTruncatedData
		return 0
	}
	return n
}

func (d *decoder) strings() []string {
	n := d.length()
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = d.string()
	}
	return out
}

func (d *decoder) stringMap() map[string]string {
	n := d.length()
	if n == 0 {
		return nil
	}
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k := d.string()
		out[k] = d.string()
	}
	return out
}

func (d *decoder) vector() []float32 {
	n := d.int()
	if d.err != nil {
		return nil
	}
	if n < 0 || 4*n > len(d.data)-d.off {
		d.err = ErrTruncatedData
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(d.data[d.off:]))
		d.off += 4
	}
	return out
}

func (d *decoder) finish(what string) error {
	if d.err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSerializationFailed, what, d.err)
	}
	return nil
}

// MarshalIntentRecord serializes an IntentRecord to bytes.
func MarshalIntentRecord(rec *IntentRecord) []byte {
	return encode(func(e *encoder) {
		n := &rec.Node
		e.int(rec.Position)
		e.string(n.Code)
		e.string(n.Name)
		e.int(int(n.Level))
		e.string(n.ParentCode)
		e.string(n.Description)
		e.strings(n.Examples)
		e.string(string(n.Kind))
		e.string(n.Collection)
		e.string(n.PromptSnippet)
		e.bool(n.SortOrder != nil)
		if n.SortOrder != nil {
			e.int(*n.SortOrder)
		}
		e.bool(n.Enabled)
	})
}

// UnmarshalIntentRecord deserializes an IntentRecord from bytes.
func UnmarshalIntentRecord(data []byte) (*IntentRecord, error) {
	d := &decoder{data: data}
	rec := &IntentRecord{}
	rec.Position = d.int()
	rec.Node.Code = d.string()
	rec.Node.Name = d.string()
	rec.Node.Level = core.IntentLevel(d.int())
	rec.Node.ParentCode = d.string()
	rec.Node.Description = d.string()
	rec.Node.Examples = d.strings()
	rec.Node.Kind = core.IntentKind(d.string())
	rec.Node.Collection = d.string()
	rec.Node.PromptSnippet = d.string()
	if d.bool() {
		order := d.int()
		rec.Node.SortOrder = &order
	}
	rec.Node.Enabled = d.bool()
	if err := d.finish("intent record"); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarshalLexicalDoc serializes a LexicalDoc to bytes.
func MarshalLexicalDoc(doc *LexicalDoc) []byte {
	return encode(func(e *encoder) {
		e.string(doc.ID)
		e.string(doc.Text)
		e.string(doc.Collection)
		e.stringMap(doc.Metadata)
		e.int(doc.Length)
		e.int(len(doc.Terms))
		for _, tf := range doc.Terms {
			e.string(tf.Term)
			e.int(tf.Freq)
		}
	})
}

// UnmarshalLexicalDoc deserializes a LexicalDoc from bytes.
func UnmarshalLexicalDoc(data []byte) (*LexicalDoc, error) {
	d := &decoder{data: data}
	doc := &LexicalDoc{}
	doc.ID = d.string()
	doc.Text = d.string()
	doc.Collection = d.string()
	doc.Metadata = d.stringMap()
	doc.Length = d.int()
	if n := d.length(); n > 0 {
		doc.Terms = make([]TermFreq, n)
		for i := range doc.Terms {
			doc.Terms[i].Term = d.string()
			doc.Terms[i].Freq = d.int()
		}
	}
	if err := d.finish("lexical doc"); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalVectorDoc serializes a VectorDoc to bytes.
func MarshalVectorDoc(doc *VectorDoc) []byte {
	return encode(func(e *encoder) {
		e.string(doc.ID)
		e.string(doc.Text)
		e.string(doc.Collection)
		e.stringMap(doc.Metadata)
		e.vector(doc.Vector)
	})
}

// UnmarshalVectorDoc deserializes a VectorDoc from bytes.
func UnmarshalVectorDoc(data []byte) (*VectorDoc, error) {
	d := &decoder{data: data}
	doc := &VectorDoc{}
	doc.ID = d.string()
	doc.Text = d.string()
	doc.Collection = d.string()
	doc.Metadata = d.stringMap()
	doc.Vector = d.vector()
	if err := d.finish("vector doc"); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalLexicalStats serializes LexicalStats to bytes.
func MarshalLexicalStats(stats LexicalStats) []byte {
	return encode(func(e *encoder) {
		e.int(stats.DocCount)
		e.int(stats.TotalLength)
	})
}

// UnmarshalLexicalStats deserializes LexicalStats from bytes.
func UnmarshalLexicalStats(data []byte) (LexicalStats, error) {
	d := &decoder{data: data}
	stats := LexicalStats{DocCount: d.int(), TotalLength: d.int()}
	return stats, d.finish("lexical stats")
}

// Posting is the value of one inverted-index entry.
type Posting struct {
	Freq      int
	DocLength int
}

// MarshalPosting serializes a Posting to bytes.
func MarshalPosting(p Posting) []byte {
	return encode(func(e *encoder) {
		e.int(p.Freq)
		e.int(p.DocLength)
	})
}

// UnmarshalPosting deserializes a Posting from bytes.
func UnmarshalPosting(data []byte) (Posting, error) {
	d := &decoder{data: data}
	p := Posting{Freq: d.int(), DocLength: d.int()}
	return p, d.finish("posting")
}
