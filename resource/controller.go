// Package resource governs the resources consumed by maintenance work on a
// volume: staging memory for snapshot payloads, concurrency of background
// scans, and snapshot IO throughput. The synchronous file data path is never
// throttled.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// StagingMemoryLimit is the hard limit in bytes for snapshot staging
	// buffers. If 0, usage is tracked but not limited.
	StagingMemoryLimit int64

	// MaxBackgroundTasks is the maximum number of concurrent background
	// tasks (verification scans, snapshot transfers). If 0, defaults to 1.
	MaxBackgroundTasks int64

	// SnapshotBytesPerSec caps snapshot IO throughput. If 0, unlimited.
	SnapshotBytesPerSec int64
}

// Controller enforces the limits in Config. A nil *Controller is valid and
// enforces nothing.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	taskSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundTasks <= 0 {
		cfg.MaxBackgroundTasks = 1
	}

	c := &Controller{
		cfg:     cfg,
		taskSem: semaphore.NewWeighted(cfg.MaxBackgroundTasks),
	}

	if cfg.StagingMemoryLimit > 0 {
		c.memSem = semaphore.NewWeighted(cfg.StagingMemoryLimit)
	}

	if cfg.SnapshotBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.SnapshotBytesPerSec), int(cfg.SnapshotBytesPerSec))
	}

	return c
}

// AcquireMemory reserves staging memory, blocking until the reservation
// fits under the limit or ctx is canceled.
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

// TryAcquireMemory reserves staging memory without blocking. It reports
// whether the reservation succeeded.
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

// ReleaseMemory returns a staging memory reservation.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently reserved staging memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireBackground reserves a background task slot, blocking while all
// slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.taskSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background task slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.taskSem.TryAcquire(1)
}

// ReleaseBackground returns a background task slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.taskSem.Release(1)
}

// AcquireIO waits until the snapshot throughput limit admits bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	if bytes > c.ioLimiter.Burst() {
		bytes = c.ioLimiter.Burst()
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
