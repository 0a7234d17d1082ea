package governor

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWithWorkerBoundsConcurrency(t *testing.T) {
	g := New(10, 2)

	var mu sync.Mutex
	active, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.WithWorker(context.Background(), func() error {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithWorker failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}

	status := g.Status()
	if status.WorkersInUse != 0 {
		t.Errorf("workers in use after drain = %d, want 0", status.WorkersInUse)
	}
}

func TestWithConnectionRespectsContext(t *testing.T) {
	g := New(1, 1)

	release := make(chan struct{})
	go g.WithConnection(context.Background(), func() error {
		<-release
		return nil
	})

	// wait for the holder to take the only slot
	deadline := time.Now().Add(time.Second)
	for g.Status().ConnectionsInUse == 0 {
		if time.Now().After(deadline) {
			t.Fatal("holder never acquired the connection")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.WithConnection(ctx, func() error { return nil })
	if err == nil {
		t.Error("expected context error while slot is held")
	}
	close(release)
}

func TestStatusReportsLimits(t *testing.T) {
	g := New(50, 10)
	status := g.Status()
	if status.MaxConnections != 50 || status.MaxWorkers != 10 {
		t.Errorf("unexpected limits: %+v", status)
	}
}
