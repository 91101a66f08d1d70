package base

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrShutdownTimeout is returned when graceful shutdown times out
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// LifecycleManager handles goroutine lifecycle and graceful shutdown
type LifecycleManager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger

	// Track running goroutines
	runningGoroutines atomic.Int32
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(ctx context.Context, logger *zap.Logger) *LifecycleManager {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &LifecycleManager{
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Start launches a goroutine with proper lifecycle management
func (lm *LifecycleManager) Start(name string, fn func()) {
	lm.wg.Add(1)
	lm.runningGoroutines.Add(1)

	go func() {
		defer lm.wg.Done()
		defer lm.runningGoroutines.Add(-1)

		lm.logger.Debug("Starting goroutine", zap.String("name", name))
		defer lm.logger.Debug("Goroutine stopped", zap.String("name", name))

		fn()
	}()
}

// StartPinned launches a goroutine that calls pin before fn and waits for pin to return.
// pin is expected to wire the goroutine to its OS thread; the thread goes away with the
// goroutine. If pin fails, fn never runs and the error is returned.
func (lm *LifecycleManager) StartPinned(name string, pin func() error, fn func()) error {
	pinned := make(chan error, 1)
	lm.Start(name, func() {
		if err := pin(); err != nil {
			pinned <- err
			return
		}
		pinned <- nil
		fn()
	})

	if err := <-pinned; err != nil {
		lm.logger.Error("Failed to pin goroutine to its thread",
			zap.String("name", name),
			zap.Error(err))
		return fmt.Errorf("failed to pin %s: %w", name, err)
	}
	return nil
}

// Stop initiates graceful shutdown. Calling Stop more than once is safe.
func (lm *LifecycleManager) Stop(timeout time.Duration) error {
	lm.logger.Info("Initiating graceful shutdown",
		zap.Int32("running_goroutines", lm.runningGoroutines.Load()),
		zap.Duration("timeout", timeout))

	lm.stopOnce.Do(func() {
		close(lm.stopCh)
		lm.cancel()
	})

	// Wait with timeout
	done := make(chan struct{})
	go func() {
		lm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-time.After(timeout):
		lm.logger.Warn("Shutdown timeout exceeded",
			zap.Int32("still_running", lm.runningGoroutines.Load()))
		return ErrShutdownTimeout
	}
}

// Context returns the lifecycle context
func (lm *LifecycleManager) Context() context.Context {
	return lm.ctx
}

// StopChannel returns the stop signal channel
func (lm *LifecycleManager) StopChannel() <-chan struct{} {
	return lm.stopCh
}

// IsShuttingDown checks if shutdown has been initiated
func (lm *LifecycleManager) IsShuttingDown() bool {
	select {
	case <-lm.stopCh:
		return true
	default:
		return false
	}
}

// GetRunningGoroutines returns the number of running goroutines
func (lm *LifecycleManager) GetRunningGoroutines() int32 {
	return lm.runningGoroutines.Load()
}
