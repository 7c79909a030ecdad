package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingDriver struct {
	begins    int
	commits   int
	rollbacks int
}

type recordingHandle struct {
	driver *recordingDriver
}

func (d *recordingDriver) Begin(ctx context.Context) (context.Context, TxHandle, error) {
	d.begins++
	return ctx, recordingHandle{driver: d}, nil
}

func (h recordingHandle) Commit(context.Context) error {
	h.driver.commits++
	return nil
}

func (h recordingHandle) Rollback(context.Context) error {
	h.driver.rollbacks++
	return nil
}

func TestWithinTxJoinsOuterScope(t *testing.T) {
	driver := &recordingDriver{}
	tx := NewTransactor(driver)

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		require.True(t, InTx(ctx))
		return tx.WithinTx(ctx, func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, driver.begins)
	require.Equal(t, 1, driver.commits)
	require.Zero(t, driver.rollbacks)
}

func TestAfterCommitRunsOnlyOnCommit(t *testing.T) {
	driver := &recordingDriver{}
	tx := NewTransactor(driver)
	var ran []string

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(ctx context.Context) {
			require.False(t, InTx(ctx))
			ran = append(ran, "committed")
		})
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.WithinTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { ran = append(ran, "rolled back") })
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"committed"}, ran)
	require.Equal(t, 1, driver.rollbacks)

	AfterCommit(context.Background(), func(context.Context) { ran = append(ran, "immediate") })
	require.Equal(t, []string{"committed", "immediate"}, ran)
}

func TestWithinTxAbortsOnExpiredDeadline(t *testing.T) {
	driver := &recordingDriver{}
	tx := NewTransactor(driver)
	ctx, cancel := context.WithCancel(context.Background())

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, driver.commits)
	require.Equal(t, 1, driver.rollbacks)
}

func TestLockReleasedWhenOutermostScopeEnds(t *testing.T) {
	tx := NewTransactor(&recordingDriver{})
	locker := NewKeyedMutex()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, Lock(ctx, locker, "b", "a"))
		// reentrant within the same scope
		require.NoError(t, Lock(ctx, locker, "a"))

		probe, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := locker.Lock(probe, "a")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		return nil
	})
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}

func TestLockOutsideScopeFails(t *testing.T) {
	err := Lock(context.Background(), NewKeyedMutex(), "a")
	require.ErrorIs(t, err, ErrNoTxScope)
}
