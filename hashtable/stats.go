package hashtable

// Stats is an immutable snapshot of a Table's monotonic operation
// counters. Counters never decrease and are not reset by Clear (see
// Table.Clear).
type Stats struct {
	Get         uint64
	Set         uint64
	Del         uint64
	Iter        uint64
	Lookup      uint64
	Linear      uint64
	ResizeTable uint64
	ResizeKV    uint64
}

// Stats returns a snapshot of the table's statistics counters.
func (t *Table) Stats() Stats {
	return t.stats
}
