// Package structuredtable packs named fixed-width integer fields into a
// hashtable.Table's opaque value bytes, and persists the result to a
// self-describing binary stream.
package structuredtable

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/google/uuid"

	"github.com/rpcpool/borghash/hashtable"
)

var log = logging.Logger("structuredtable")

const (
	defaultNamespace = "borghash"
	defaultVersion   = uint32(1)
)

type tableConfig struct {
	namespace   string
	version     uint32
	htOpts      []hashtable.Option
	compression bool
}

// Option configures a Table at construction or Read time.
type Option func(*tableConfig)

// WithNamespace overrides the persisted namespace tag. Default: "borghash".
func WithNamespace(ns string) Option {
	return func(c *tableConfig) { c.namespace = ns }
}

// WithVersion overrides the persisted format version. Default: 1.
func WithVersion(v uint32) Option {
	return func(c *tableConfig) { c.version = v }
}

// WithHashTableOptions forwards options to the wrapped hashtable.Table.
func WithHashTableOptions(opts ...hashtable.Option) Option {
	return func(c *tableConfig) { c.htOpts = append(c.htOpts, opts...) }
}

// WithCompression enables zstd compression of the entry stream on Write,
// transparently decompressed on Read.
func WithCompression() Option {
	return func(c *tableConfig) { c.compression = true }
}

// Table wraps a hashtable.Table, exposing every entry as a structured
// Record instead of opaque value bytes.
type Table struct {
	id        string
	ht        *hashtable.Table
	shape     *Shape
	keySize   int
	namespace string
	version   uint32

	compression bool
}

// New constructs an empty Table over keys of keySize bytes, with values
// packed according to fields/format.
func New(keySize int, fields []string, format []FieldCode, opts ...Option) (*Table, error) {
	shape, err := NewShape(fields, format)
	if err != nil {
		return nil, err
	}
	cfg := &tableConfig{namespace: defaultNamespace, version: defaultVersion}
	for _, opt := range opts {
		opt(cfg)
	}
	ht, err := hashtable.New(keySize, shape.Size(), cfg.htOpts...)
	if err != nil {
		return nil, err
	}
	t := &Table{
		id:          uuid.New().String(),
		ht:          ht,
		shape:       shape,
		keySize:     keySize,
		namespace:   cfg.namespace,
		version:     cfg.version,
		compression: cfg.compression,
	}
	log.Debugw("created table", "id", t.id, "namespace", t.namespace, "version", t.version,
		"fields", shape.Fields(), "valueSize", shape.Size())
	return t, nil
}

// Shape returns the table's record layout.
func (t *Table) Shape() *Shape { return t.shape }

// NewRecord allocates a zeroed record matching this table's shape.
func (t *Table) NewRecord() *Record { return NewRecord(t.shape) }

func (t *Table) checkShape(rec *Record) error {
	if rec.shape != t.shape {
		return fmt.Errorf("structuredtable: record shape does not match table shape")
	}
	return nil
}

// Upsert inserts key/rec if key is absent, or overwrites the existing
// record if present.
func (t *Table) Upsert(key []byte, rec *Record) error {
	if err := t.checkShape(rec); err != nil {
		return err
	}
	return t.ht.Upsert(key, rec.row)
}

// Insert is an alias for Upsert.
func (t *Table) Insert(key []byte, rec *Record) error { return t.Upsert(key, rec) }

// Lookup returns the record stored for key, or ErrNotFound.
func (t *Table) Lookup(key []byte) (*Record, error) {
	v, err := t.ht.Lookup(key)
	if err != nil {
		return nil, err
	}
	return &Record{shape: t.shape, row: v}, nil
}

// Contains reports whether key is present.
func (t *Table) Contains(key []byte) bool { return t.ht.Contains(key) }

// Get returns the record for key, or def if key is absent.
func (t *Table) Get(key []byte, def *Record) *Record {
	v := t.ht.Get(key, nil)
	if v == nil {
		return def
	}
	return &Record{shape: t.shape, row: v}
}

// SetDefault returns the record for key, inserting rec for it first if
// key is absent.
func (t *Table) SetDefault(key []byte, rec *Record) (*Record, error) {
	if err := t.checkShape(rec); err != nil {
		return nil, err
	}
	v, err := t.ht.SetDefault(key, rec.row)
	if err != nil {
		return nil, err
	}
	return &Record{shape: t.shape, row: v}, nil
}

// Pop deletes key and returns its record, or ErrNotFound if absent.
func (t *Table) Pop(key []byte) (*Record, error) {
	v, err := t.ht.Pop(key)
	if err != nil {
		return nil, err
	}
	return &Record{shape: t.shape, row: v}, nil
}

// PopOr deletes key and returns its record, or def if key is absent.
func (t *Table) PopOr(key []byte, def *Record) *Record {
	v := t.ht.PopOr(key, nil)
	if v == nil {
		return def
	}
	return &Record{shape: t.shape, row: v}
}

// Remove deletes key. It returns ErrNotFound if key is absent.
func (t *Table) Remove(key []byte) error { return t.ht.Remove(key) }

// Clear removes all entries.
func (t *Table) Clear() { t.ht.Clear() }

// Len reports the number of live entries.
func (t *Table) Len() int { return t.ht.Len() }

// Stats returns the underlying hashtable.Table's statistics.
func (t *Table) Stats() hashtable.Stats { return t.ht.Stats() }

// Update bulk-upserts every (key, record) pair in items.
func (t *Table) Update(items []Item) error {
	for _, it := range items {
		if err := t.Upsert(it.Key, it.Record); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFrom bulk-upserts every entry of other, which must share this
// table's value size.
func (t *Table) UpdateFrom(other *Table) error {
	cur := other.ht.Items()
	for {
		k, v, ok := cur.Next()
		if !ok {
			return nil
		}
		if err := t.ht.Upsert(k, v); err != nil {
			return err
		}
	}
}

// Item is a (key, record) pair, used by Update.
type Item struct {
	Key    []byte
	Record *Record
}

// KToIdx returns the slot index currently holding key.
func (t *Table) KToIdx(key []byte) (uint64, error) { return t.ht.KToIdx(key) }

// IdxToK returns the key stored at slot idx.
func (t *Table) IdxToK(idx uint64) ([]byte, error) { return t.ht.IdxToK(idx) }

// IdxToKV returns the key and record stored at slot idx.
func (t *Table) IdxToKV(idx uint64) ([]byte, *Record, error) {
	k, v, err := t.ht.IdxToKV(idx)
	if err != nil {
		return nil, nil, err
	}
	return k, &Record{shape: t.shape, row: v}, nil
}

// KVToIdx returns the slot index holding key, provided its stored record
// equals rec.
func (t *Table) KVToIdx(key []byte, rec *Record) (uint64, error) {
	if err := t.checkShape(rec); err != nil {
		return 0, err
	}
	return t.ht.KVToIdx(key, rec.row)
}

// Cursor walks a Table's live entries in slot order.
type Cursor struct {
	shape *Shape
	cur   *hashtable.Cursor
}

// Items returns a Cursor over the table's current live entries.
func (t *Table) Items() *Cursor { return &Cursor{shape: t.shape, cur: t.ht.Items()} }

// Next advances the cursor and returns the next live key/record pair.
func (c *Cursor) Next() (key []byte, rec *Record, ok bool) {
	k, v, ok := c.cur.Next()
	if !ok {
		return nil, nil, false
	}
	return k, &Record{shape: c.shape, row: v}, true
}

// Size returns a byte-accurate estimate of the on-wire size Write would
// produce for the table's current contents, assuming no compression.
// With compression enabled the true size differs: usually smaller, but
// larger for small or incompressible entry streams.
func (t *Table) Size() int {
	hdr := t.header()
	return headerEncodedSize(hdr) + t.Len()*(t.keySize+t.shape.Size())
}
