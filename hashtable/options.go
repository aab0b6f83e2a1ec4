package hashtable

import "github.com/cespare/xxhash/v2"

// Option configures a Table at construction time.
type Option func(*Table)

// WithInitialCapacity sets the table's minimum capacity. It is rounded up
// to the next power of two. Capacity never shrinks below this value.
// Default: 8.
func WithInitialCapacity(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.initialCapacity = nextPow2(uint64(n))
		}
	}
}

// WithMaxLoadFactor sets the load factor above which an insert triggers
// growth. Default: 0.75.
func WithMaxLoadFactor(f float64) Option {
	return func(t *Table) { t.maxLoadFactor = f }
}

// WithMinLoadFactor sets the load factor below which a remove may trigger
// a shrink, subject to WithInitialCapacity never being crossed. Default:
// 0.30.
func WithMinLoadFactor(f float64) Option {
	return func(t *Table) { t.minLoadFactor = f }
}

// WithMaxTombstoneRatio sets the tombstones/capacity ratio above which a
// remove triggers compaction (or shrink, see WithMinLoadFactor). Default:
// 0.25.
func WithMaxTombstoneRatio(f float64) Option {
	return func(t *Table) { t.maxTombstoneRatio = f }
}

// WithGeneralKeys swaps the default index function (the key's leading
// machine word, reduced modulo capacity — correct only for already
// uniformly distributed keys such as cryptographic digests) for one based
// on xxhash. Use this when keys are not pre-hashed; see spec.md's Open
// Questions for why the default stays as-is.
func WithGeneralKeys() Option {
	return func(t *Table) { t.indexFunc = generalIndexFunc }
}

func nextPow2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

func generalIndexFunc(key []byte, capacity uint64) uint64 {
	return xxhash.Sum64(key) & (capacity - 1)
}
