package service

import (
	"hash/fnv"
	"sort"
	"sync"
)

const materialLockStripes = 64

// materialLocks serializes index mirroring per material. Distinct materials
// may share a stripe.
type materialLocks struct {
	stripes [materialLockStripes]sync.Mutex
}

func (l *materialLocks) stripe(materialID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(materialID))
	return int(h.Sum32() % materialLockStripes)
}

// lock takes the stripes of every material in ascending order and returns
// the matching unlock.
func (l *materialLocks) lock(materialIDs ...string) func() {
	seen := make(map[int]bool, len(materialIDs))
	idx := make([]int, 0, len(materialIDs))
	for _, id := range materialIDs {
		i := l.stripe(id)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
