package batch

import (
	"container/heap"
	"testing"
)

func TestPriorityQueue_OrdersByDescendingPriorityThenInsertion(t *testing.T) {
	pq := &priorityQueue{}
	heap.Init(pq)

	heap.Push(pq, &queueEntry{item: Item{ID: "a", Priority: 1}, seq: 1})
	heap.Push(pq, &queueEntry{item: Item{ID: "b", Priority: 5}, seq: 2})
	heap.Push(pq, &queueEntry{item: Item{ID: "c", Priority: 5}, seq: 3})
	heap.Push(pq, &queueEntry{item: Item{ID: "d", Priority: 2}, seq: 4})

	var order []string
	for pq.Len() > 0 {
		entry := heap.Pop(pq).(*queueEntry)
		order = append(order, entry.item.ID)
	}

	want := []string{"b", "c", "d", "a"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: got %q, want %q (full order %v)", i, order[i], want[i], order)
		}
	}
}
