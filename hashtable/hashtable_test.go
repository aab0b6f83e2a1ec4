package hashtable

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func key8(n uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, n)
	return b
}

func TestBasicInsertLookup(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	k, v := key8(1), key8(100)
	require.NoError(t, tbl.Upsert(k, v))
	require.Equal(t, 1, tbl.Len())

	got, err := tbl.Lookup(k)
	require.NoError(t, err)
	require.Equal(t, v, got)

	require.True(t, tbl.Contains(k))
	require.False(t, tbl.Contains(key8(2)))
}

func TestUpsertOverwrites(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	k := key8(1)
	require.NoError(t, tbl.Upsert(k, key8(1)))
	require.NoError(t, tbl.Upsert(k, key8(2)))
	require.Equal(t, 1, tbl.Len())

	got, err := tbl.Lookup(k)
	require.NoError(t, err)
	require.Equal(t, key8(2), got)
}

func TestRemoveThenMiss(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	k := key8(1)
	require.NoError(t, tbl.Upsert(k, key8(1)))
	require.NoError(t, tbl.Remove(k))
	require.Equal(t, 0, tbl.Len())

	_, err = tbl.Lookup(k)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, tbl.Remove(k), ErrNotFound)
}

func TestGetDefaultAndSetDefault(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	require.Equal(t, key8(0xff), tbl.Get(key8(1), key8(0xff)))

	v, err := tbl.SetDefault(key8(1), key8(42))
	require.NoError(t, err)
	require.Equal(t, key8(42), v)

	v, err = tbl.SetDefault(key8(1), key8(99))
	require.NoError(t, err)
	require.Equal(t, key8(42), v)
}

func TestPopAndPopOr(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	require.NoError(t, tbl.Upsert(key8(1), key8(7)))
	v, err := tbl.Pop(key8(1))
	require.NoError(t, err)
	require.Equal(t, key8(7), v)
	require.Equal(t, 0, tbl.Len())

	require.Equal(t, key8(0), tbl.PopOr(key8(1), key8(0)))
}

func TestInvalidSizeRejected(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	err = tbl.Upsert(key8(1)[:4], key8(1))
	require.ErrorIs(t, err, ErrInvalidSize)
	require.Equal(t, 0, tbl.Len())

	_, err = tbl.Lookup(key8(1)[:4])
	require.ErrorIs(t, err, ErrInvalidSize)
}

// TestCollisionStorm drives heavy probe chains by keeping every key's low
// 32 bits (what defaultIndexFunc reduces on, for any capacity under 2^32)
// fixed at zero, so all homes land in a narrow range of slots.
func TestCollisionStorm(t *testing.T) {
	tbl, err := New(8, 8, WithInitialCapacity(16))
	require.NoError(t, err)

	const n = 10000
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(i)<<32)
		keys[i] = b
	}
	for i, k := range keys {
		require.NoError(t, tbl.Upsert(k, key8(uint64(i))))
	}
	require.Equal(t, n, tbl.Len())
	for i, k := range keys {
		v, err := tbl.Lookup(k)
		require.NoError(t, err)
		require.Equal(t, key8(uint64(i)), v)
	}
	require.Greater(t, tbl.Stats().Linear, uint64(0))
}

func TestResizeChurnWithDigestKeys(t *testing.T) {
	tbl, err := New(32, 8, WithGeneralKeys())
	require.NoError(t, err)

	const n = 10000
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		h := sha256.Sum256(key8(uint64(i)))
		keys[i] = h[:32]
	}
	for i, k := range keys {
		require.NoError(t, tbl.Upsert(k, key8(uint64(i))))
	}
	require.Equal(t, n, tbl.Len())

	for i := 0; i < n; i += 2 {
		require.NoError(t, tbl.Remove(keys[i]))
	}
	require.Equal(t, n/2, tbl.Len())

	for i := 1; i < n; i += 2 {
		v, err := tbl.Lookup(keys[i])
		require.NoError(t, err)
		require.Equal(t, key8(uint64(i)), v)
	}
	for i := 0; i < n; i += 2 {
		_, err := tbl.Lookup(keys[i])
		require.ErrorIs(t, err, ErrNotFound)
	}
	require.Greater(t, tbl.Stats().ResizeTable, uint64(0))
}

func TestClearResetsButKeepsStats(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	require.NoError(t, tbl.Upsert(key8(1), key8(1)))
	require.NoError(t, tbl.Upsert(key8(2), key8(2)))
	before := tbl.Stats()

	tbl.Clear()
	require.Equal(t, 0, tbl.Len())
	require.Equal(t, tbl.Capacity(), int(tbl.initialCapacity))
	require.Equal(t, before.Set, tbl.Stats().Set)

	_, err = tbl.Lookup(key8(1))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestItemsIteratesAllLiveEntries(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	want := map[uint64]uint64{1: 10, 2: 20, 3: 30}
	for k, v := range want {
		require.NoError(t, tbl.Upsert(key8(k), key8(v)))
	}
	require.NoError(t, tbl.Remove(key8(2)))
	delete(want, 2)

	got := map[uint64]uint64{}
	cur := tbl.Items()
	for {
		k, v, ok := cur.Next()
		if !ok {
			break
		}
		got[binary.LittleEndian.Uint64(k)] = binary.LittleEndian.Uint64(v)
	}
	require.Equal(t, want, got)
	require.Equal(t, uint64(1), tbl.Stats().Iter)
}

func TestKToIdxIdxToKRoundTrip(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	require.NoError(t, tbl.Upsert(key8(1), key8(100)))
	idx, err := tbl.KToIdx(key8(1))
	require.NoError(t, err)

	k, err := tbl.IdxToK(idx)
	require.NoError(t, err)
	require.Equal(t, key8(1), k)

	k2, v2, err := tbl.IdxToKV(idx)
	require.NoError(t, err)
	require.Equal(t, key8(1), k2)
	require.Equal(t, key8(100), v2)

	gotIdx, err := tbl.KVToIdx(key8(1), key8(100))
	require.NoError(t, err)
	require.Equal(t, idx, gotIdx)

	_, err = tbl.KVToIdx(key8(1), key8(999))
	require.ErrorIs(t, err, ErrNotFound)
}

// TestStatsCounters checks the per-operation-category counter contract:
// set/get/del each attributed to their own family of calls, with lookup
// as the shared master counter bumped by every keyed probe (insert,
// direct read, contains/get-with-default/setdefault/pop, and remove).
func TestStatsCounters(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	require.NoError(t, tbl.Upsert(key8(1), key8(1)))
	require.NoError(t, tbl.Insert(key8(2), key8(2)))
	_, _ = tbl.Lookup(key8(1))
	_ = tbl.Contains(key8(1))
	_ = tbl.Get(key8(1), nil)
	require.NoError(t, tbl.Remove(key8(2)))

	s := tbl.Stats()
	require.Equal(t, uint64(2), s.Set)
	require.Equal(t, uint64(1), s.Get)
	require.Equal(t, uint64(6), s.Lookup)
	require.Equal(t, uint64(1), s.Del)
}

// TestStatsLookupIsMasterCounter mirrors the original implementation's
// stats test sequence: insert, direct read, remove — each bumps its own
// counter AND the shared lookup counter, which counts every keyed probe.
func TestStatsLookupIsMasterCounter(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	k, v := key8(1), key8(100)
	require.NoError(t, tbl.Upsert(k, v))
	s := tbl.Stats()
	require.Equal(t, uint64(1), s.Set)
	require.Equal(t, uint64(1), s.Lookup)

	_, err = tbl.Lookup(k)
	require.NoError(t, err)
	s = tbl.Stats()
	require.Equal(t, uint64(1), s.Get)
	require.Equal(t, uint64(2), s.Lookup)

	require.NoError(t, tbl.Remove(k))
	s = tbl.Stats()
	require.Equal(t, uint64(1), s.Del)
	require.Equal(t, uint64(3), s.Lookup)
}

// TestLawLenMatchesLiveCount is property L1: Len always equals the
// number of keys reachable via Items.
func TestLawLenMatchesLiveCount(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, tbl.Upsert(key8(uint64(i)), key8(uint64(i))))
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, tbl.Remove(key8(uint64(i))))
	}

	count := 0
	cur := tbl.Items()
	for {
		_, _, ok := cur.Next()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, tbl.Len(), count)
}

// TestLawUsedPlusTombstonesNeverExceedsCapacity is property L2.
func TestLawUsedPlusTombstonesNeverExceedsCapacity(t *testing.T) {
	tbl, err := New(8, 8)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, tbl.Upsert(key8(uint64(i)), key8(uint64(i))))
		if i%3 == 0 {
			require.NoError(t, tbl.Remove(key8(uint64(i))))
		}
		require.LessOrEqual(t, tbl.used+tbl.tombstones, tbl.capacity)
	}
}
