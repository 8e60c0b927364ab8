package compute

import "container/heap"

// handleAllocator hands out the smallest non-negative id not currently in use.
// Released ids sit in a min-heap; every id at or above next has never been
// issued, so the heap minimum (if any) is always the smallest free id.
type handleAllocator struct {
	free idHeap
	next int
}

func (a *handleAllocator) acquire() int {
	if a.free.Len() > 0 {
		return heap.Pop(&a.free).(int)
	}
	id := a.next
	a.next++
	return id
}

func (a *handleAllocator) release(id int) {
	heap.Push(&a.free, id)
}

func (a *handleAllocator) reset() {
	a.free = nil
	a.next = 0
}

type idHeap []int

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *idHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
