package hashtable

// maybeGrow doubles capacity once the live load factor crosses
// maxLoadFactor. Called after every successful insert.
func (t *Table) maybeGrow() {
	if float64(t.used)/float64(t.capacity) <= t.maxLoadFactor {
		return
	}
	old := t.capacity
	t.rehashTo(t.capacity * 2)
	t.stats.ResizeTable++
	t.stats.ResizeKV++
	t.logResize("grow", old, t.capacity)
}

// maybeShrinkOrCompact runs after every remove. Once tombstones build up
// past maxTombstoneRatio, the table is rehashed into a fresh backing
// array of the same size (compaction, dropping all tombstones) unless
// the live load factor has also fallen below minLoadFactor, in which
// case it shrinks instead — down to the smallest power-of-two capacity,
// never below initialCapacity, whose resulting load factor still
// satisfies maxLoadFactor. A single halving is not always enough to
// bring the load factor back into [minLoadFactor, maxLoadFactor]; this
// starts at initialCapacity and doubles until the load factor is at or
// below maxLoadFactor (or the current capacity is reached).
func (t *Table) maybeShrinkOrCompact() {
	if float64(t.tombstones)/float64(t.capacity) <= t.maxTombstoneRatio {
		return
	}
	old := t.capacity
	if float64(t.used)/float64(t.capacity) < t.minLoadFactor && t.capacity > t.initialCapacity {
		newCap := t.initialCapacity
		for newCap < t.capacity {
			if float64(t.used)/float64(newCap) <= t.maxLoadFactor {
				break
			}
			newCap *= 2
		}
		t.rehashTo(newCap)
		t.stats.ResizeTable++
		t.stats.ResizeKV++
		t.logResize("shrink", old, t.capacity)
		return
	}
	t.rehashTo(t.capacity)
	t.stats.ResizeTable++
	t.stats.ResizeKV++
	t.logResize("compact", old, t.capacity)
}

// rehashTo reallocates meta and kv at newCap and reinserts every live
// entry, clearing all tombstones. It does not touch used or the public
// statistics counters beyond what callers bump themselves.
func (t *Table) rehashTo(newCap uint64) {
	oldMeta := t.meta
	oldKV := t.kv
	oldCap := t.capacity

	t.meta = make([]slotState, newCap)
	t.kv = make([]byte, newCap*uint64(t.stride))
	t.capacity = newCap
	t.tombstones = 0

	for i := uint64(0); i < oldCap; i++ {
		if oldMeta[i] != stateOccupied {
			continue
		}
		off := i * uint64(t.stride)
		key := oldKV[off : off+uint64(t.keySize)]
		value := oldKV[off+uint64(t.keySize) : off+uint64(t.stride)]

		idx := t.homeIndex(key)
		for t.meta[idx] == stateOccupied {
			idx = (idx + 1) & (t.capacity - 1)
		}
		t.meta[idx] = stateOccupied
		copy(t.slotKey(idx), key)
		copy(t.slotValue(idx), value)
	}
}
