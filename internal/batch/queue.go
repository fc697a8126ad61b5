package batch

// queueEntry wraps an Item with its submission sequence number, the FIFO
// tiebreak for equal-priority items (spec.md §4.5 "descending priority then
// insertion order").
type queueEntry struct {
	item Item
	seq  int64
}

// priorityQueue is a container/heap.Interface ordering by descending
// priority, ascending seq.
type priorityQueue []*queueEntry

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].item.Priority != pq[j].item.Priority {
		return pq[i].item.Priority > pq[j].item.Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*queueEntry))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return entry
}
