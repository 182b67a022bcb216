package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRunEveryFiresRepeatedly(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	var calls int32
	id, err := s.RunEvery(10*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	if err != nil {
		t.Fatalf("RunEvery: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 calls, got %d", calls)
	}

	if err := s.RemoveJob(id); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
}
