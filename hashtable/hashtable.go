// Package hashtable implements an open-addressed, fixed-size-key/value
// associative array with linear probing and tombstone deletion.
package hashtable

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("hashtable")

type slotState byte

const (
	stateEmpty slotState = iota
	stateOccupied
	stateTombstone
)

// Table is an open-addressed hash table over fixed-size byte-slice keys
// and values. A zero Table is not usable; construct one with New.
//
// Keys and values are stored inline in a single backing array (kv),
// indexed in lock-step with a parallel slot-state array (meta). Neither
// array is safe for concurrent use without external synchronization.
type Table struct {
	id string

	keySize   int
	valueSize int
	stride    int

	capacity   uint64
	meta       []slotState
	kv         []byte
	used       uint64
	tombstones uint64

	initialCapacity   uint64
	maxLoadFactor     float64
	minLoadFactor     float64
	maxTombstoneRatio float64
	indexFunc         func(key []byte, capacity uint64) uint64

	stats Stats
}

// New constructs an empty Table holding keys of keySize bytes and values
// of valueSize bytes. Both must be positive.
func New(keySize, valueSize int, opts ...Option) (*Table, error) {
	if keySize <= 0 || valueSize <= 0 {
		return nil, fmt.Errorf("hashtable: %w", ErrInvalidSize)
	}

	t := &Table{
		id:                uuid.New().String(),
		keySize:           keySize,
		valueSize:         valueSize,
		stride:            keySize + valueSize,
		initialCapacity:   8,
		maxLoadFactor:     0.75,
		minLoadFactor:     0.30,
		maxTombstoneRatio: 0.25,
		indexFunc:         defaultIndexFunc,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.initialCapacity = nextPow2(t.initialCapacity)
	t.capacity = t.initialCapacity
	t.meta = make([]slotState, t.capacity)
	t.kv = make([]byte, t.capacity*uint64(t.stride))

	log.Debugw("created table", "id", t.id, "keySize", keySize, "valueSize", valueSize,
		"capacity", t.capacity)
	return t, nil
}

// Len reports the number of live entries.
func (t *Table) Len() int { return int(t.used) }

// Capacity reports the current number of slots, including empty and
// tombstoned ones.
func (t *Table) Capacity() int { return int(t.capacity) }

func (t *Table) checkKey(key []byte) error {
	if len(key) != t.keySize {
		return fmt.Errorf("hashtable: key length %d, want %d: %w", len(key), t.keySize, ErrInvalidSize)
	}
	return nil
}

func (t *Table) checkKV(key, value []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	if len(value) != t.valueSize {
		return fmt.Errorf("hashtable: value length %d, want %d: %w", len(value), t.valueSize, ErrInvalidSize)
	}
	return nil
}

func (t *Table) slotKey(i uint64) []byte {
	off := i * uint64(t.stride)
	return t.kv[off : off+uint64(t.keySize)]
}

func (t *Table) slotValue(i uint64) []byte {
	off := i*uint64(t.stride) + uint64(t.keySize)
	return t.kv[off : off+uint64(t.valueSize)]
}

// Upsert inserts key/value if key is absent, or overwrites the existing
// value if present.
func (t *Table) Upsert(key, value []byte) error {
	if err := t.checkKV(key, value); err != nil {
		return err
	}
	slot, tomb, found := t.findForInsert(key)
	t.stats.Set++
	t.stats.Lookup++
	if found {
		copy(t.slotValue(slot), value)
		return nil
	}
	copy(t.slotKey(slot), key)
	copy(t.slotValue(slot), value)
	t.meta[slot] = stateOccupied
	if tomb >= 0 {
		t.tombstones--
	}
	t.used++
	t.maybeGrow()
	return nil
}

// Insert is an alias for Upsert.
func (t *Table) Insert(key, value []byte) error { return t.Upsert(key, value) }

// Lookup returns a copy of the value stored for key, or ErrNotFound.
func (t *Table) Lookup(key []byte) ([]byte, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	idx, found := t.findForLookup(key)
	t.stats.Get++
	t.stats.Lookup++
	if !found {
		return nil, ErrNotFound
	}
	out := make([]byte, t.valueSize)
	copy(out, t.slotValue(idx))
	return out, nil
}

// Contains reports whether key is present.
func (t *Table) Contains(key []byte) bool {
	if err := t.checkKey(key); err != nil {
		return false
	}
	_, found := t.findForLookup(key)
	t.stats.Lookup++
	return found
}

// Get returns the value for key, or def if key is absent.
func (t *Table) Get(key, def []byte) []byte {
	if err := t.checkKey(key); err != nil {
		return def
	}
	idx, found := t.findForLookup(key)
	t.stats.Lookup++
	if !found {
		return def
	}
	out := make([]byte, t.valueSize)
	copy(out, t.slotValue(idx))
	return out
}

// SetDefault returns the value for key, inserting value for it first if
// key is absent.
func (t *Table) SetDefault(key, value []byte) ([]byte, error) {
	if err := t.checkKV(key, value); err != nil {
		return nil, err
	}
	idx, found := t.findForLookup(key)
	t.stats.Lookup++
	if found {
		out := make([]byte, t.valueSize)
		copy(out, t.slotValue(idx))
		return out, nil
	}
	if err := t.Upsert(key, value); err != nil {
		return nil, err
	}
	out := make([]byte, t.valueSize)
	copy(out, value)
	return out, nil
}

// Remove deletes key. It returns ErrNotFound if key is absent.
func (t *Table) Remove(key []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	idx, found := t.findForLookup(key)
	t.stats.Del++
	t.stats.Lookup++
	if !found {
		return ErrNotFound
	}
	t.removeAt(idx)
	return nil
}

// Pop deletes key and returns its value, or ErrNotFound if absent.
func (t *Table) Pop(key []byte) ([]byte, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	idx, found := t.findForLookup(key)
	t.stats.Lookup++
	if !found {
		return nil, ErrNotFound
	}
	out := make([]byte, t.valueSize)
	copy(out, t.slotValue(idx))
	t.removeAt(idx)
	t.stats.Del++
	return out, nil
}

// PopOr deletes key and returns its value, or def if key is absent.
func (t *Table) PopOr(key, def []byte) []byte {
	v, err := t.Pop(key)
	if err != nil {
		return def
	}
	return v
}

// Clear removes all entries and resets capacity to the table's configured
// initial capacity. Statistics counters are left untouched.
func (t *Table) Clear() {
	t.capacity = t.initialCapacity
	t.meta = make([]slotState, t.capacity)
	t.kv = make([]byte, t.capacity*uint64(t.stride))
	t.used = 0
	t.tombstones = 0
}

func (t *Table) removeAt(idx uint64) {
	t.meta[idx] = stateTombstone
	t.used--
	t.tombstones++
	t.maybeShrinkOrCompact()
}

// KToIdx returns the slot index currently holding key. The index is only
// valid until the next insert or remove triggers a resize; see spec's
// Open Questions on slot-index staleness for why this is not detected.
func (t *Table) KToIdx(key []byte) (uint64, error) {
	if err := t.checkKey(key); err != nil {
		return 0, err
	}
	idx, found := t.findForLookup(key)
	t.stats.Lookup++
	if !found {
		return 0, ErrNotFound
	}
	return idx, nil
}

// IdxToK returns the key stored at slot idx.
func (t *Table) IdxToK(idx uint64) ([]byte, error) {
	if idx >= t.capacity || t.meta[idx] != stateOccupied {
		return nil, ErrNotFound
	}
	t.stats.Get++
	out := make([]byte, t.keySize)
	copy(out, t.slotKey(idx))
	return out, nil
}

// IdxToKV returns the key and value stored at slot idx.
func (t *Table) IdxToKV(idx uint64) (key, value []byte, err error) {
	if idx >= t.capacity || t.meta[idx] != stateOccupied {
		return nil, nil, ErrNotFound
	}
	t.stats.Get++
	key = make([]byte, t.keySize)
	value = make([]byte, t.valueSize)
	copy(key, t.slotKey(idx))
	copy(value, t.slotValue(idx))
	return key, value, nil
}

// KVToIdx returns the slot index holding key, provided its stored value
// equals value. It returns ErrNotFound if key is absent or its value
// differs.
func (t *Table) KVToIdx(key, value []byte) (uint64, error) {
	if err := t.checkKV(key, value); err != nil {
		return 0, err
	}
	idx, found := t.findForLookup(key)
	t.stats.Lookup++
	if !found {
		return 0, ErrNotFound
	}
	if !bytes.Equal(t.slotValue(idx), value) {
		return 0, ErrNotFound
	}
	return idx, nil
}

func (t *Table) logResize(kind string, oldCap, newCap uint64) {
	log.Debugw("resized table", "id", t.id, "kind", kind,
		"oldCapacity", humanize.Comma(int64(oldCap)),
		"newCapacity", humanize.Comma(int64(newCap)))
}
