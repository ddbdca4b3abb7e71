package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockerMutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	const workers = 32
	var wg sync.WaitGroup
	var inCritical int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "counter")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			if n := atomic.AddInt32(&inCritical, 1); n != 1 {
				t.Errorf("%d holders inside critical section", n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inCritical, -1)
			unlock()
		}()
	}
	wg.Wait()

	locker.mtx.Lock()
	leaked := len(locker.locks)
	locker.mtx.Unlock()
	if leaked != 0 {
		t.Errorf("%d lock entries leaked after release", leaked)
	}
}

func TestLocalLockerContextCancel(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "busy")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "busy"); err == nil {
		t.Fatal("Lock() on a held lock did not honor context cancellation")
	}
	unlock()

	// The lock must be acquirable again after the waiter gave up.
	unlock, err = locker.Lock(context.Background(), "busy")
	if err != nil {
		t.Fatalf("Lock() after cancelled waiter error = %v", err)
	}
	unlock()
}

func TestLocalLockerIndependentNames(t *testing.T) {
	locker := NewLocalLocker()
	unlockA, err := locker.Lock(context.Background(), "queue:prompts")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "phraseset:1")
	if err != nil {
		t.Fatalf("Lock() on an unrelated name blocked: %v", err)
	}
	unlockB()
}
