package containers

import (
	"errors"
	"testing"
)

func TestRingQueueWrapsAround(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if v, _ := q.Dequeue(); v != 1 {
		t.Fatalf("expected 1, got %d", v)
	}
	if err := q.Enqueue(4); err != nil {
		t.Fatalf("enqueue after dequeue: %v", err)
	}
	want := []int{2, 3, 4}
	for _, w := range want {
		v, err := q.Dequeue()
		if err != nil || v != w {
			t.Fatalf("expected %d, got %d (%v)", w, v, err)
		}
	}
	if _, err := q.Peek(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestRingQueueClear(t *testing.T) {
	q := NewRingQueue[string](2)
	_ = q.Enqueue("a")
	_ = q.Enqueue("b")
	q.Clear()
	if !q.IsEmpty() || q.Len() != 0 {
		t.Fatalf("expected empty queue after clear, len=%d", q.Len())
	}
	if q.Capacity() != 2 {
		t.Fatalf("capacity changed to %d", q.Capacity())
	}
}
