// Package scope is a cancellation scope for one connection attempt: a set
// of joined background tasks plus the release actions of every resource
// acquired while it was live.
package scope

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// ErrClosed is the cancellation cause once the scope has been closed.
var ErrClosed = errors.New("scope closed")

type release struct {
	name string
	fn   func() error
}

// Scope joins tasks started with Go. The first task to fail cancels every
// other task. Release actions registered with Defer run in reverse order,
// exactly once, when Close is called.
type Scope struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	pool   *pool.ContextPool

	mu       sync.Mutex
	releases []release
	closed   bool

	closeOnce sync.Once
	closeErr  error

	logger zerolog.Logger
}

func New(parent context.Context, logger zerolog.Logger) *Scope {
	ctx, cancel := context.WithCancelCause(parent)
	return &Scope{
		ctx:    ctx,
		cancel: cancel,
		pool:   pool.New().WithContext(ctx).WithCancelOnError().WithFirstError(),
		logger: logger,
	}
}

// Context is done once the scope is cancelled or closed.
func (s *Scope) Context() context.Context { return s.ctx }

// Defer registers the release action of an acquired resource. Registering
// on a closed scope releases immediately.
func (s *Scope) Defer(name string, fn func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.run(release{name: name, fn: fn})
		return
	}
	s.releases = append(s.releases, release{name: name, fn: fn})
	s.mu.Unlock()
}

// Go starts a task. A task that returns an error cancels the scope; a task
// that returns because the scope was cancelled does not count as failed.
func (s *Scope) Go(name string, fn func(ctx context.Context) error) {
	s.pool.Go(func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil
		}
		s.logger.Debug().Err(err).Str("task", name).Msg("task failed")
		return fmt.Errorf("%s: %w", name, err)
	})
}

// Cancel stops every task with cause.
func (s *Scope) Cancel(cause error) { s.cancel(cause) }

// Wait blocks until every task returned and reports the first failure.
func (s *Scope) Wait() error {
	return s.pool.Wait()
}

// Close cancels the scope and runs every release action, newest first.
// Release errors are aggregated, never short-circuited.
func (s *Scope) Close() error {
	s.closeOnce.Do(func() {
		s.cancel(ErrClosed)

		s.mu.Lock()
		s.closed = true
		releases := s.releases
		s.releases = nil
		s.mu.Unlock()

		var result *multierror.Error
		for i := len(releases) - 1; i >= 0; i-- {
			if err := s.run(releases[i]); err != nil {
				result = multierror.Append(result, err)
			}
		}
		s.closeErr = result.ErrorOrNil()
	})
	return s.closeErr
}

func (s *Scope) run(r release) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("release %s panicked: %v", r.name, p)
		}
	}()
	if err := r.fn(); err != nil {
		s.logger.Warn().Err(err).Str("resource", r.name).Msg("release failed")
		return fmt.Errorf("release %s: %w", r.name, err)
	}
	s.logger.Debug().Str("resource", r.name).Msg("released")
	return nil
}
