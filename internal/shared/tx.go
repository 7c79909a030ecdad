package shared

import (
	"context"
	"errors"
	"sync"
)

// Transactor runs fn inside a unit of work. Nested calls join the
// outermost unit instead of opening a new one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxHandle finishes a backend transaction.
type TxHandle interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxDriver opens backend transactions. The returned context carries
// whatever the backend needs to route writes into the transaction.
type TxDriver interface {
	Begin(ctx context.Context) (context.Context, TxHandle, error)
}

type scopeKey struct{}

// scope tracks work that must wait for the outermost transaction to end.
type scope struct {
	mu          sync.Mutex
	afterCommit []func(context.Context)
	releases    []func()
	held        map[string]struct{}
}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// InTx reports whether ctx belongs to an open unit of work.
func InTx(ctx context.Context) bool {
	return scopeFrom(ctx) != nil
}

// AfterCommit registers fn to run once the outermost transaction commits.
// Hooks are dropped on rollback. Outside a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	s := scopeFrom(ctx)
	if s == nil {
		fn(ctx)
		return
	}
	s.mu.Lock()
	s.afterCommit = append(s.afterCommit, fn)
	s.mu.Unlock()
}

func (s *scope) releaseAll() {
	s.mu.Lock()
	releases := s.releases
	s.releases = nil
	s.held = nil
	s.mu.Unlock()
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// TxRunner implements Transactor on top of a TxDriver.
type TxRunner struct {
	driver TxDriver
}

// NewTransactor wraps driver.
func NewTransactor(driver TxDriver) *TxRunner {
	return &TxRunner{driver: driver}
}

// WithinTx executes fn in a transaction. The caller's deadline is checked
// before commit so an expired context never leaves a partial commit behind.
func (t *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t == nil || t.driver == nil {
		return errors.New("shared: transactor not configured")
	}
	if scopeFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := &scope{}
	ctx = context.WithValue(ctx, scopeKey{}, s)
	released := false
	release := func() {
		if !released {
			released = true
			s.releaseAll()
		}
	}
	defer release()

	txCtx, handle, err := t.driver.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = handle.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = handle.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := handle.Commit(ctx); err != nil {
		_ = handle.Rollback(context.WithoutCancel(ctx))
		return err
	}
	release()

	s.mu.Lock()
	hooks := s.afterCommit
	s.afterCommit = nil
	s.mu.Unlock()
	hookCtx := context.WithValue(context.WithoutCancel(ctx), scopeKey{}, (*scope)(nil))
	for _, hook := range hooks {
		hook(hookCtx)
	}
	return nil
}
