package governor

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Governor bounds concurrent database connections and worker threads
// across all pipeline processes with counting semaphores.
type Governor struct {
	connections chan struct{}
	workers     chan struct{}

	maxConnections int
	maxWorkers     int

	connectionsInUse int64
	workersInUse     int64
}

// Status is a point-in-time snapshot of resource usage
type Status struct {
	MaxConnections   int   `json:"max_connections"`
	ConnectionsInUse int64 `json:"connections_in_use"`
	MaxWorkers       int   `json:"max_workers"`
	WorkersInUse     int64 `json:"workers_in_use"`
}

func New(maxConnections, maxWorkers int) *Governor {
	if maxConnections <= 0 {
		maxConnections = 50
	}
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Governor{
		connections:    make(chan struct{}, maxConnections),
		workers:        make(chan struct{}, maxWorkers),
		maxConnections: maxConnections,
		maxWorkers:     maxWorkers,
	}
}

// WithConnection runs fn while holding a database connection slot
func (g *Governor) WithConnection(ctx context.Context, fn func() error) error {
	select {
	case g.connections <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for database connection: %w", ctx.Err())
	}
	atomic.AddInt64(&g.connectionsInUse, 1)
	defer func() {
		atomic.AddInt64(&g.connectionsInUse, -1)
		<-g.connections
	}()
	return fn()
}

// WithWorker runs fn while holding a worker slot
func (g *Governor) WithWorker(ctx context.Context, fn func() error) error {
	select {
	case g.workers <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker slot: %w", ctx.Err())
	}
	atomic.AddInt64(&g.workersInUse, 1)
	defer func() {
		atomic.AddInt64(&g.workersInUse, -1)
		<-g.workers
	}()
	return fn()
}

// Status returns current resource usage
func (g *Governor) Status() Status {
	return Status{
		MaxConnections:   g.maxConnections,
		ConnectionsInUse: atomic.LoadInt64(&g.connectionsInUse),
		MaxWorkers:       g.maxWorkers,
		WorkersInUse:     atomic.LoadInt64(&g.workersInUse),
	}
}
