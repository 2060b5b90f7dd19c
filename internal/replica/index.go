package replica

import (
	"cmp"
	"slices"
)

// position orders items by the log entry that inserted them.
type position struct {
	seq uint64
	op  int // -1 outside batches
	id  string
}

func opOf(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func (a position) compare(b position) int {
	if c := cmp.Compare(a.seq, b.seq); c != 0 {
		return c
	}
	if c := cmp.Compare(a.op, b.op); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// index is a sorted slice of positions. New writes carry the highest
// sequence number seen so far, so insert is an append in the common case.
type index []position

func (ix *index) insert(p position) {
	s := *ix
	if n := len(s); n == 0 || s[n-1].compare(p) < 0 {
		*ix = append(s, p)
		return
	}
	i, _ := slices.BinarySearchFunc(s, p, position.compare)
	*ix = slices.Insert(s, i, p)
}

func (ix *index) remove(p position) {
	s := *ix
	if i, ok := slices.BinarySearchFunc(s, p, position.compare); ok {
		*ix = slices.Delete(s, i, i+1)
	}
}

func (ix *index) reset(ps []position) {
	slices.SortFunc(ps, position.compare)
	*ix = ps
}
