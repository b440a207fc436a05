package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
)

// CompletionChecker is the polling half of an Engine
type CompletionChecker interface {
	IsFinished(ctx context.Context, handle *models.ExecutionHandle) (bool, error)
}

// Waiter polls a dispatched run until it reaches a terminal state or the wait
// budget runs out. The remote run is never cancelled on timeout.
type Waiter struct {
	checker CompletionChecker
	log     zerolog.Logger
}

func NewWaiter(checker CompletionChecker, logger zerolog.Logger) *Waiter {
	return &Waiter{checker: checker, log: logger}
}

type pollResult struct {
	err error
}

// Await runs the poll loop on its own goroutine and blocks the caller on its
// completion. It checks once immediately, then every interval, for up to maxTotal.
func (w *Waiter) Await(ctx context.Context, handle *models.ExecutionHandle, interval, maxTotal time.Duration) error {
	pollCtx, cancel := context.WithTimeout(ctx, maxTotal)
	defer cancel()

	done := make(chan pollResult, 1)
	go func() {
		done <- pollResult{err: w.poll(pollCtx, handle, interval, maxTotal)}
	}()

	select {
	case res := <-done:
		return res.err
	case <-ctx.Done():
		// caller went away; the poll goroutine exits on pollCtx
		return ctx.Err()
	}
}

func (w *Waiter) poll(ctx context.Context, handle *models.ExecutionHandle, interval, maxTotal time.Duration) error {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	polls := 0
	for {
		polls++
		finished, err := w.checker.IsFinished(ctx, handle)
		switch {
		case err != nil && ctx.Err() == nil:
			lastErr = err
			w.log.Warn().Str("run", handle.RunName).Int("poll", polls).Err(err).Msg("completion check failed")
		case err == nil && finished:
			w.log.Info().
				Str("run", handle.RunName).
				Int("polls", polls).
				Dur("waited", time.Since(start)).
				Msg("run reached terminal state")
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				w.log.Warn().
					Str("run", handle.RunName).
					Str("host", handle.Host).
					Dur("budget", maxTotal).
					Msg("wait budget exceeded, remote run left running")
				return &TimeoutError{RunName: handle.RunName, Budget: maxTotal, LastErr: lastErr}
			}
			return ctx.Err()
		}
	}
}
