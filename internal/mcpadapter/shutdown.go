package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Phase orders a shutdown into three ordered stages, collapsed from the
// teacher's six-phase coordinator down to what this process actually owns:
// stop admitting new dispatches, drain the ones already in flight, then
// release pooled resources.
type Phase int

const (
	// PhaseTransport stops accepting new tool calls from the stdio transport.
	PhaseTransport Phase = iota
	// PhaseDrain waits for in-flight dispatches to finish.
	PhaseDrain
	// PhaseStorage releases pooled sqlite/postgres connections.
	PhaseStorage
)

func (p Phase) String() string {
	switch p {
	case PhaseTransport:
		return "Transport"
	case PhaseDrain:
		return "Drain"
	case PhaseStorage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// ShutdownFunc performs one handler's shutdown work, bounded by ctx.
type ShutdownFunc func(ctx context.Context) error

// Handler is one named unit of shutdown work, scheduled within its Phase.
type Handler struct {
	Name    string
	Phase   Phase
	Fn      ShutdownFunc
	Timeout time.Duration // 0 = coordinator default
}

// Progress reports one handler's completion, for an optional observer (the
// status server's websocket stream, for instance).
type Progress struct {
	Phase     Phase
	Handler   string
	Completed bool
	Error     error
	Duration  time.Duration
}

// ShutdownCoordinator runs registered handlers phase by phase, bounding the
// whole sequence by a total timeout, adapted from the teacher's
// internal/shutdown.Coordinator down to this process's three phases.
type ShutdownCoordinator struct {
	mu       sync.Mutex
	handlers map[Phase][]*Handler
	logger   *zap.Logger

	once         sync.Once
	done         chan struct{}
	err          error
	shuttingDown atomic.Bool

	defaultTimeout time.Duration
	totalTimeout   time.Duration
	progressCh     chan Progress
}

// NewShutdownCoordinator builds a coordinator bounded by totalTimeout
// overall, with each handler's own timeout defaulting to the full
// totalTimeout unless it declares a Timeout.
func NewShutdownCoordinator(totalTimeout time.Duration, logger *zap.Logger) *ShutdownCoordinator {
	if totalTimeout <= 0 {
		totalTimeout = 10 * time.Second
	}
	return &ShutdownCoordinator{
		handlers:       make(map[Phase][]*Handler),
		logger:         logger,
		done:           make(chan struct{}),
		defaultTimeout: totalTimeout,
		totalTimeout:   totalTimeout,
		progressCh:     make(chan Progress, 16),
	}
}

// Register adds h to its declared phase.
func (c *ShutdownCoordinator) Register(h *Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.Timeout == 0 {
		h.Timeout = c.defaultTimeout
	}
	c.handlers[h.Phase] = append(c.handlers[h.Phase], h)
}

// IsShuttingDown reports whether Shutdown has been called.
func (c *ShutdownCoordinator) IsShuttingDown() bool {
	return c.shuttingDown.Load()
}

// Done closes once the shutdown sequence has finished.
func (c *ShutdownCoordinator) Done() <-chan struct{} {
	return c.done
}

// Progress streams per-handler completion events until shutdown finishes,
// at which point the channel is closed.
func (c *ShutdownCoordinator) Progress() <-chan Progress {
	return c.progressCh
}

// Shutdown runs every registered handler, phase by phase, bounded by the
// coordinator's total timeout. Safe to call more than once; only the first
// call executes.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.shuttingDown.Store(true)
		c.err = c.run(ctx)
		close(c.done)
		close(c.progressCh)
	})
	return c.err
}

func (c *ShutdownCoordinator) run(ctx context.Context) error {
	start := time.Now()
	shutdownCtx, cancel := context.WithTimeout(ctx, c.totalTimeout)
	defer cancel()

	var allErrors []error
	for _, phase := range []Phase{PhaseTransport, PhaseDrain, PhaseStorage} {
		if err := c.runPhase(shutdownCtx, phase); err != nil {
			allErrors = append(allErrors, fmt.Errorf("phase %s: %w", phase, err))
		}
		if shutdownCtx.Err() != nil {
			allErrors = append(allErrors, fmt.Errorf("shutdown timeout after %v: %w", time.Since(start), shutdownCtx.Err()))
			break
		}
	}

	if len(allErrors) > 0 {
		if c.logger != nil {
			c.logger.Warn("shutdown completed with errors", zap.Duration("elapsed", time.Since(start)), zap.Int("errors", len(allErrors)))
		}
		return errors.Join(allErrors...)
	}
	if c.logger != nil {
		c.logger.Info("shutdown complete", zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

func (c *ShutdownCoordinator) runPhase(ctx context.Context, phase Phase) error {
	c.mu.Lock()
	handlers := append([]*Handler(nil), c.handlers[phase]...)
	c.mu.Unlock()

	var phaseErrors []error
	for _, h := range handlers {
		if err := c.runHandler(ctx, h); err != nil {
			phaseErrors = append(phaseErrors, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	if len(phaseErrors) > 0 {
		return errors.Join(phaseErrors...)
	}
	return nil
}

func (c *ShutdownCoordinator) runHandler(ctx context.Context, h *Handler) error {
	start := time.Now()
	handlerCtx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- h.Fn(handlerCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-handlerCtx.Done():
		err = fmt.Errorf("handler timeout after %v", h.Timeout)
	}

	c.emit(Progress{Phase: h.Phase, Handler: h.Name, Completed: err == nil, Error: err, Duration: time.Since(start)})
	return err
}

func (c *ShutdownCoordinator) emit(p Progress) {
	select {
	case c.progressCh <- p:
	default:
		// Progress is best-effort observability; a full buffer never blocks
		// the shutdown sequence itself.
	}
}
