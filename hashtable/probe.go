package hashtable

import (
	"bytes"
	"encoding/binary"
)

// defaultIndexFunc derives a slot's home index from the leading 8 bytes
// of the key, interpreted little-endian, reduced modulo capacity. It
// assumes keys are already uniformly distributed (e.g. content digests);
// WithGeneralKeys trades that assumption for an xxhash pass.
func defaultIndexFunc(key []byte, capacity uint64) uint64 {
	var buf [8]byte
	copy(buf[:], key)
	h := binary.LittleEndian.Uint64(buf[:])
	return h & (capacity - 1)
}

func (t *Table) homeIndex(key []byte) uint64 {
	return t.indexFunc(key, t.capacity)
}

// findForLookup walks the probe sequence for key starting at its home
// index, stopping at the first empty slot. It reports the slot index and
// whether key was found there.
func (t *Table) findForLookup(key []byte) (uint64, bool) {
	idx := t.homeIndex(key)
	for i := uint64(0); i < t.capacity; i++ {
		switch t.meta[idx] {
		case stateEmpty:
			return 0, false
		case stateOccupied:
			if bytes.Equal(t.slotKey(idx), key) {
				return idx, true
			}
		}
		idx = (idx + 1) & (t.capacity - 1)
		t.stats.Linear++
	}
	return 0, false
}

// findForInsert walks the probe sequence for key, returning the slot to
// write to (found, a matching occupied slot, otherwise the first empty
// slot or the earliest tombstone seen along the way) and whether key was
// already present. tomb is the index of the earliest tombstone
// encountered, or -1 if none was seen.
func (t *Table) findForInsert(key []byte) (slot uint64, tomb int64, found bool) {
	idx := t.homeIndex(key)
	tomb = -1
	for i := uint64(0); i < t.capacity; i++ {
		switch t.meta[idx] {
		case stateEmpty:
			if tomb >= 0 {
				return uint64(tomb), tomb, false
			}
			return idx, -1, false
		case stateTombstone:
			if tomb < 0 {
				tomb = int64(idx)
			}
		case stateOccupied:
			if bytes.Equal(t.slotKey(idx), key) {
				return idx, tomb, true
			}
		}
		idx = (idx + 1) & (t.capacity - 1)
		t.stats.Linear++
	}
	if tomb >= 0 {
		return uint64(tomb), tomb, false
	}
	// maxLoadFactor keeps at least one empty slot reachable; reaching here
	// means growth failed to run ahead of inserts.
	panic("hashtable: no free slot found, load factor invariant violated")
}
