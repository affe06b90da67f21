package filestore

// entry is a stored blob's position in the content file (§3 "Stored entry").
// Ordering by offset and identity by id intentionally disagree (§9 open
// question b) — entries are kept in an offset-ordered slice for first-fit
// scans and in a separate id-keyed map for lookup; nothing assumes the two
// orderings coincide.
type entry struct {
	id     uint32
	offset uint32
	length uint32
}

// firstFit scans entries in ascending offset order and returns the offset of
// the first gap at least `required` bytes wide, or the offset following the
// last entry if no gap fits (§4.1 "First-fit placement").
//
// entries must already be sorted by offset.
func firstFit(entries []*entry, required uint32) uint32 {
	var cursor uint32
	for _, e := range entries {
		free := e.offset - cursor
		if free >= required {
			return cursor
		}
		end := e.offset + e.length
		if end > cursor {
			cursor = end
		}
	}
	return cursor
}
