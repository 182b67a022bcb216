package snapshot

import (
	"sync"
	"testing"
)

func TestRestoreAndCurrent(t *testing.T) {
	b := New(3)
	if b.Current() != nil {
		t.Fatalf("expected nil before first restore")
	}
	b.Restore([]float64{1, 2, 3})
	got := b.Current()
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected current: %v", got)
	}
}

func TestRestoreWrongWidthPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on width mismatch")
		}
	}()
	b := New(3)
	b.Restore([]float64{1, 2})
}

func TestHistoryDepthCap(t *testing.T) {
	b := New(1)
	for i := 0; i < 20; i++ {
		b.Restore([]float64{float64(i)})
	}
	if b.Size() != historyDepth {
		t.Fatalf("expected size capped at %d, got %d", historyDepth, b.Size())
	}
	cur := b.Current()
	if cur[0] != 19 {
		t.Fatalf("expected current value 19, got %v", cur[0])
	}
	oldest := b.At(historyDepth - 1)
	if oldest[0] != 9 {
		t.Fatalf("expected oldest retained value 9, got %v", oldest[0])
	}
}

func TestAtOutOfRangeReturnsNil(t *testing.T) {
	b := New(1)
	b.Restore([]float64{1})
	if b.At(5) != nil {
		t.Fatalf("expected nil for unpublished history depth")
	}
	if b.At(-1) != nil {
		t.Fatalf("expected nil for negative steps")
	}
}

func TestCopyOrdering(t *testing.T) {
	b := New(1)
	b.Restore([]float64{1})
	b.Restore([]float64{2})
	b.Restore([]float64{3})
	all := b.Copy()
	if len(all) != 3 || all[0][0] != 3 || all[1][0] != 2 || all[2][0] != 1 {
		t.Fatalf("unexpected copy order: %v", all)
	}
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	b := New(4)
	b.Restore([]float64{0, 0, 0, 0})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Restore([]float64{float64(i), float64(i), float64(i), float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = b.Current()
			_ = b.Copy()
		}
	}()
	wg.Wait()
}
