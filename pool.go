package main

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize       = 4
	DefaultAcquireTimeout = 5 * time.Second
)

var (
	ErrPoolClosed     = errors.New("pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available scan slot")
)

// ScanPool bounds how many gallery scans run at once. Every scan is CPU bound
// over the whole gallery, so requests beyond the pool size wait for a slot.
type ScanPool struct {
	slots          chan struct{}
	size           int
	acquireTimeout time.Duration
	mu             sync.Mutex
	closed         bool
	metrics        *PoolMetrics
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolSnapshot is a copy of the pool metrics at one point in time.
type PoolSnapshot struct {
	Size            int           `json:"pool_size"`
	InUse           int           `json:"slots_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"wait_time_ns"`
}

func NewScanPool(size int, acquireTimeout time.Duration) *ScanPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	pool := &ScanPool{
		slots:          make(chan struct{}, size),
		size:           size,
		acquireTimeout: acquireTimeout,
		metrics:        &PoolMetrics{},
	}

	for i := 0; i < size; i++ {
		pool.slots <- struct{}{}
	}

	return pool
}

func (p *ScanPool) Acquire(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case _, ok := <-p.slots:
		if !ok {
			return ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return ErrAcquireTimeout
	case <-ctx.Done():
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return ctx.Err()
	}
}

func (p *ScanPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	if p.closed {
		return
	}
	p.slots <- struct{}{}
}

func (p *ScanPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.slots)
}

func (p *ScanPool) Size() int { return p.size }

func (p *ScanPool) GetMetrics() PoolSnapshot {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolSnapshot{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTime:        p.metrics.waitTime,
	}
}
