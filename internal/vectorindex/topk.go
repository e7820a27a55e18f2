package vectorindex

import (
	"container/heap"
	"sort"

	"github.com/cloo-solutions/tutorcore/internal/domain"
)

// topK keeps the k best matches. The heap root is the worst kept match.
type topK struct {
	k     int
	items matchHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make(matchHeap, 0, k)}
}

func (t *topK) full() bool {
	return len(t.items) >= t.k
}

func (t *topK) offer(m domain.ChunkMatch) {
	if !t.full() {
		heap.Push(&t.items, m)
		return
	}
	if domain.LessMatch(m, t.items[0]) {
		t.items[0] = m
		heap.Fix(&t.items, 0)
	}
}

func (t *topK) sorted() []domain.ChunkMatch {
	out := append([]domain.ChunkMatch{}, t.items...)
	sort.Slice(out, func(i, j int) bool { return domain.LessMatch(out[i], out[j]) })
	return out
}

type matchHeap []domain.ChunkMatch

func (h matchHeap) Len() int { return len(h) }

// Less puts the worst match at the root.
func (h matchHeap) Less(i, j int) bool { return domain.LessMatch(h[j], h[i]) }

func (h matchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x any) { *h = append(*h, x.(domain.ChunkMatch)) }

func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
