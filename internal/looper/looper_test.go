package looper

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLooper_RunsTasksInOrder(t *testing.T) {
	l := New("test")
	defer l.QuitSafely()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for tasks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLooper_TasksNeverOverlap(t *testing.T) {
	l := New("serial")
	defer l.QuitSafely()

	var running, maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go l.Post(func() {
			defer wg.Done()
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxRunning)
	}
}

func TestLooper_PostFromOwnTask(t *testing.T) {
	l := New("reentrant")
	defer l.QuitSafely()

	done := make(chan struct{})
	l.Post(func() {
		// must not deadlock; runs after the current task returns
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestLooper_QuitSafelyDrainsQueue(t *testing.T) {
	l := New("drain")

	block := make(chan struct{})
	ran := 0
	l.Post(func() { <-block })
	for i := 0; i < 5; i++ {
		l.Post(func() { ran++ })
	}
	l.QuitSafely()
	close(block)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("looper did not exit")
	}
	if ran != 5 {
		t.Errorf("ran = %d, want 5 queued tasks to complete", ran)
	}
}

func TestLooper_PostAfterQuitRejected(t *testing.T) {
	l := New("quit")
	l.QuitSafely()
	<-l.Done()

	if l.Post(func() { t.Error("task should not run") }) {
		t.Error("Post after quit should return false")
	}
	// second quit is harmless
	l.QuitSafely()
}

func TestLatch_BlockUntilOpen(t *testing.T) {
	latch := NewLatch(false)
	const delay = 30 * time.Millisecond

	go func() {
		time.Sleep(delay)
		latch.Open()
	}()

	start := time.Now()
	latch.Block()
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("Block returned after %v, want >= %v", elapsed, delay)
	}
}

func TestLatch_OpenIsSticky(t *testing.T) {
	latch := NewLatch(true)
	latch.Block()
	latch.Block()
	if !latch.IsOpen() {
		t.Error("latch should stay open")
	}
	latch.Open()
	if !latch.IsOpen() {
		t.Error("double open should keep it open")
	}
}

func TestLatch_CloseResetsStaleSignal(t *testing.T) {
	latch := NewLatch(true)
	latch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := latch.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait on reset latch = %v, want deadline exceeded", err)
	}

	latch.Open()
	if err := latch.Wait(context.Background()); err != nil {
		t.Errorf("Wait after Open = %v", err)
	}
}

func TestLatch_OpenReleasesAllWaiters(t *testing.T) {
	latch := NewLatch(false)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			latch.Block()
		}()
	}
	latch.Open()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not released")
	}
}
