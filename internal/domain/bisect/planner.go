// Package bisect plans which untested commits to cover next when narrowing
// down the first bad commit under a per-run budget.
package bisect

import "container/heap"

// Gap is an inclusive range [Lo, Hi] of uncovered positions.
type Gap struct {
	Lo int
	Hi int
}

// Len returns the number of positions in the gap.
func (g Gap) Len() int { return g.Hi - g.Lo + 1 }

// before reports whether g has higher priority than o: longer gaps first,
// then smaller Lo, then smaller Hi.
func (g Gap) before(o Gap) bool {
	if g.Len() != o.Len() {
		return g.Len() > o.Len()
	}
	if g.Lo != o.Lo {
		return g.Lo < o.Lo
	}
	return g.Hi < o.Hi
}

// gapHeap is a max-heap of gaps under Gap.before.
type gapHeap []Gap

func (h gapHeap) Len() int           { return len(h) }
func (h gapHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h gapHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *gapHeap) Push(x any)        { *h = append(*h, x.(Gap)) }

func (h *gapHeap) Pop() any {
	old := *h
	n := len(old)
	g := old[n-1]
	*h = old[:n-1]
	return g
}

// Limit returns a pointer to n, for passing a budget to Plan.
func Limit(n int) *int { return &n }

// Gaps returns the maximal runs of uncovered positions, in index order.
func Gaps(covered []bool) []Gap {
	var gaps []Gap
	start := -1
	for i, c := range covered {
		switch {
		case !c && start < 0:
			start = i
		case c && start >= 0:
			gaps = append(gaps, Gap{Lo: start, Hi: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		gaps = append(gaps, Gap{Lo: start, Hi: len(covered) - 1})
	}
	return gaps
}

// Plan returns which positions to newly cover. With a nil limit every
// uncovered position is marked. Otherwise the total covered count may reach
// *limit: the remaining budget is spent on midpoints of the largest gaps,
// splitting each probed gap in two, so each probe halves the biggest unknown
// range.
func Plan(covered []bool, limit *int) []bool {
	result := make([]bool, len(covered))

	if limit == nil {
		for i, c := range covered {
			result[i] = !c
		}
		return result
	}

	allowed := *limit - Count(covered)
	if allowed <= 0 {
		return result
	}

	h := gapHeap(Gaps(covered))
	heap.Init(&h)

	for allowed > 0 && h.Len() > 0 {
		g := heap.Pop(&h).(Gap)
		if g.Lo > g.Hi {
			continue
		}

		mid := (g.Lo + g.Hi) / 2
		if !covered[mid] && !result[mid] {
			result[mid] = true
			allowed--
		}

		if g.Lo <= mid-1 {
			heap.Push(&h, Gap{Lo: g.Lo, Hi: mid - 1})
		}
		if mid+1 <= g.Hi {
			heap.Push(&h, Gap{Lo: mid + 1, Hi: g.Hi})
		}
	}

	return result
}

// Count returns the number of true entries.
func Count(marks []bool) int {
	n := 0
	for _, m := range marks {
		if m {
			n++
		}
	}
	return n
}
