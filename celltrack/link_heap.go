package celltrack

// Copied from container/heap - https://golang.org/pkg/container/heap/
// Why make copy? Just want to avoid type conversion

// linkHeap keeps candidate links of a single source object.
// Top of the heap is the strongest link; equal weights are ordered by lower target id.
type linkHeap []*Link

func (h linkHeap) Len() int { return len(h) }
func (h linkHeap) Less(i, j int) bool {
	if h[i].Weight != h[j].Weight {
		return h[i].Weight > h[j].Weight
	}
	return h[i].Target < h[j].Target
}
func (h linkHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *linkHeap) Push(x *Link) {
	*h = append(*h, x)
	h.up(h.Len() - 1)
}

// Pop removes and returns the top element (according to Less) from the heap.
// The complexity is O(log n) where n = h.Len().
func (h *linkHeap) Pop() *Link {
	n := h.Len() - 1
	h.Swap(0, n)
	h.down(0, n)
	heapSize := len(*h)
	lastNode := (*h)[heapSize-1]
	(*h)[heapSize-1] = nil
	*h = (*h)[0 : heapSize-1]
	return lastNode
}

func (h linkHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func (h linkHeap) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
	return i > i0
}
