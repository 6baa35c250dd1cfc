// Package resource bounds the memory and IO the snapshot tooling may
// consume, so background backup and restore cannot starve the process that
// owns the shared region.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for managed memory (block cache,
	// transfer buffers). If 0, usage is tracked but not limited.
	MemoryLimitBytes int64

	// MaxTransfers is the maximum number of concurrent snapshot transfers.
	// If 0, defaults to 1.
	MaxTransfers int64

	// IOLimitBytesPerSec is the maximum throughput for snapshot transfers.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller enforces the configured limits. A nil Controller enforces
// nothing.
type Controller struct {
	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	transferSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller for the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = 1
	}

	c := &Controller{
		transferSem: semaphore.NewWeighted(cfg.MaxTransfers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireMemory reserves bytes of managed memory, blocking until available
// or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves bytes without blocking. Reports false when the
// limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory returns previously reserved bytes.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireTransfer reserves a snapshot-transfer slot, blocking while all
// slots are busy.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.transferSem.Acquire(ctx, 1)
}

// TryAcquireTransfer reserves a transfer slot without blocking.
func (c *Controller) TryAcquireTransfer() bool {
	if c == nil {
		return true
	}
	return c.transferSem.TryAcquire(1)
}

// ReleaseTransfer returns a transfer slot.
func (c *Controller) ReleaseTransfer() {
	if c == nil {
		return
	}
	c.transferSem.Release(1)
}

// AcquireIO waits until the IO limit admits the given number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
