package sequencer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"qline/internal/errs"
	"qline/internal/models"
	"qline/internal/sequencer"
	"qline/internal/storage/storagetest"
)

func setup(t *testing.T) (*gorm.DB, *sequencer.Sequencer, *models.Queue) {
	t.Helper()
	db := storagetest.New(t)
	owner := storagetest.User(t, db, "owner")
	q := storagetest.Queue(t, db, owner)
	return db, sequencer.New(db), q
}

func join(t *testing.T, seq *sequencer.Sequencer, queueID, name string) *models.QueueEntry {
	t.Helper()
	e := &models.QueueEntry{UserData: datatypes.JSONMap{"name": name}}
	require.NoError(t, seq.Join(context.Background(), queueID, e))
	return e
}

func TestJoinAppendsToTail(t *testing.T) {
	db, seq, q := setup(t)

	a := join(t, seq, q.ID, "Alice")
	b := join(t, seq, q.ID, "Bob")
	c := join(t, seq, q.ID, "Carol")

	assert.Equal(t, 1, a.Position)
	assert.Equal(t, 2, b.Position)
	assert.Equal(t, 3, c.Position)
	assert.Equal(t, models.StatusWaiting, c.Status)
	assert.False(t, c.JoinedAt.IsZero())
	assert.Equal(t, []int{1, 2, 3}, storagetest.WaitingPositions(t, db, q.ID))
}

func TestJoinUnknownQueue(t *testing.T) {
	_, seq, _ := setup(t)

	err := seq.Join(context.Background(), "missing", &models.QueueEntry{})
	assert.ErrorIs(t, err, errs.ErrQueueNotFound)
}

func TestServeCompactsFollowers(t *testing.T) {
	db, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")
	b := join(t, seq, q.ID, "Bob")
	c := join(t, seq, q.ID, "Carol")

	m, err := seq.Serve(context.Background(), q.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.From)
	assert.Equal(t, models.StatusServed, m.Entry.Status)
	require.NotNil(t, m.Entry.ServedAt)

	assert.Equal(t, []int{1, 2}, storagetest.WaitingPositions(t, db, q.ID))
	assert.Equal(t, 1, storagetest.Entry(t, db, a.ID).Position)
	assert.Equal(t, 2, storagetest.Entry(t, db, c.ID).Position)

	served := storagetest.Entry(t, db, b.ID)
	assert.Equal(t, models.StatusServed, served.Status)
	assert.Equal(t, 2, served.Position)
}

func TestServeHead(t *testing.T) {
	db, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")
	b := join(t, seq, q.ID, "Bob")

	_, err := seq.Serve(context.Background(), q.ID, a.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, storagetest.Entry(t, db, b.ID).Position)
	assert.Equal(t, []int{1}, storagetest.WaitingPositions(t, db, q.ID))
}

func TestSkipMovesToBack(t *testing.T) {
	db, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")
	b := join(t, seq, q.ID, "Bob")
	c := join(t, seq, q.ID, "Carol")

	m, err := seq.Skip(context.Background(), q.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.From)
	assert.Equal(t, 3, m.To)
	assert.Equal(t, models.StatusWaiting, m.Entry.Status)

	assert.Equal(t, 1, storagetest.Entry(t, db, b.ID).Position)
	assert.Equal(t, 2, storagetest.Entry(t, db, c.ID).Position)
	skipped := storagetest.Entry(t, db, a.ID)
	assert.Equal(t, 3, skipped.Position)
	assert.Equal(t, 1, skipped.SkipCount)
	assert.Equal(t, []int{1, 2, 3}, storagetest.WaitingPositions(t, db, q.ID))
}

func TestSkipTailAndSingle(t *testing.T) {
	db, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")

	m, err := seq.Skip(context.Background(), q.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.From)
	assert.Equal(t, 1, m.To)

	b := join(t, seq, q.ID, "Bob")
	m, err = seq.Skip(context.Background(), q.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.From)
	assert.Equal(t, 2, m.To)

	assert.Equal(t, 2, storagetest.Entry(t, db, a.ID).SkipCount+storagetest.Entry(t, db, b.ID).SkipCount)
	assert.Equal(t, []int{1, 2}, storagetest.WaitingPositions(t, db, q.ID))
}

func TestRepeatedSkipIsUnlimited(t *testing.T) {
	db, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")
	join(t, seq, q.ID, "Bob")

	for i := 0; i < 5; i++ {
		_, err := seq.Skip(context.Background(), q.ID, a.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, storagetest.Entry(t, db, a.ID).SkipCount)
	assert.Equal(t, []int{1, 2}, storagetest.WaitingPositions(t, db, q.ID))
}

func TestLeaveCompactsAndFreezes(t *testing.T) {
	db, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")
	b := join(t, seq, q.ID, "Bob")

	m, err := seq.Leave(context.Background(), q.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.From)
	require.NotNil(t, m.Entry.LeftAt)

	left := storagetest.Entry(t, db, a.ID)
	assert.Equal(t, models.StatusLeft, left.Status)
	assert.Equal(t, 1, left.Position)
	assert.Equal(t, 1, storagetest.Entry(t, db, b.ID).Position)

	// новая запись встаёт за Бобом, замороженная позиция не учитывается
	c := join(t, seq, q.ID, "Carol")
	assert.Equal(t, 2, c.Position)
}

func TestTerminalEntriesRejectTransitions(t *testing.T) {
	_, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")
	b := join(t, seq, q.ID, "Bob")
	ctx := context.Background()

	_, err := seq.Serve(ctx, q.ID, a.ID)
	require.NoError(t, err)
	_, err = seq.Leave(ctx, q.ID, b.ID)
	require.NoError(t, err)

	_, err = seq.Serve(ctx, q.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = seq.Skip(ctx, q.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = seq.Leave(ctx, q.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = seq.Serve(ctx, q.ID, b.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestEntryOfAnotherQueue(t *testing.T) {
	db, seq, q := setup(t)
	other := storagetest.Queue(t, db, storagetest.User(t, db, "other"))
	e := join(t, seq, other.ID, "Alice")

	_, err := seq.Serve(context.Background(), q.ID, e.ID)
	assert.ErrorIs(t, err, errs.ErrEntryNotFound)

	_, err = seq.Skip(context.Background(), q.ID, "missing")
	assert.ErrorIs(t, err, errs.ErrEntryNotFound)
	assert.Equal(t, []int{1}, storagetest.WaitingPositions(t, db, other.ID))
}

func TestInQueueRollsBackOnError(t *testing.T) {
	db, seq, q := setup(t)
	a := join(t, seq, q.ID, "Alice")
	join(t, seq, q.ID, "Bob")
	boom := errors.New("boom")

	err := seq.InQueue(context.Background(), q.ID, func(tx *sequencer.Tx) error {
		e, err := tx.Entry(a.ID)
		if err != nil {
			return err
		}
		if _, err := tx.Serve(e); err != nil {
			return err
		}
		if err := tx.Append(&models.QueueEntry{}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, models.StatusWaiting, storagetest.Entry(t, db, a.ID).Status)
	assert.Equal(t, []int{1, 2}, storagetest.WaitingPositions(t, db, q.ID))
}

func TestTxWaitingAndCount(t *testing.T) {
	_, seq, q := setup(t)
	join(t, seq, q.ID, "Alice")
	b := join(t, seq, q.ID, "Bob")
	join(t, seq, q.ID, "Carol")
	_, err := seq.Skip(context.Background(), q.ID, b.ID)
	require.NoError(t, err)

	err = seq.InQueue(context.Background(), q.ID, func(tx *sequencer.Tx) error {
		n, err := tx.WaitingCount()
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		list, err := tx.Waiting()
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "Bob", list[2].Field("name"))

		next, err := tx.NextPosition()
		require.NoError(t, err)
		assert.Equal(t, 4, next)
		return nil
	})
	require.NoError(t, err)
}

func TestWithClock(t *testing.T) {
	_, seq, q := setup(t)
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	seq = seq.WithClock(func() time.Time { return at })

	e := join(t, seq, q.ID, "Alice")
	assert.True(t, e.JoinedAt.Equal(at))

	m, err := seq.Serve(context.Background(), q.ID, e.ID)
	require.NoError(t, err)
	assert.True(t, m.Entry.ServedAt.Equal(at))
}

func TestConcurrentJoinsStayDense(t *testing.T) {
	db, seq, q := setup(t)
	concurrentJoins(t, db, seq, q.ID, 10)
}

func TestConcurrentMixedOperationsStayDense(t *testing.T) {
	db, seq, q := setup(t)
	concurrentMixed(t, db, seq, q.ID)
}

// concurrentJoins запускает n вступлений одновременно и проверяет, что позиции 1..n.
func concurrentJoins(t *testing.T, db *gorm.DB, seq *sequencer.Sequencer, queueID string, n int) {
	t.Helper()
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- seq.Join(context.Background(), queueID, &models.QueueEntry{})
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, storagetest.WaitingPositions(t, db, queueID))
}

// concurrentMixed одновременно выполняет join, serve, skip и leave над одной очередью.
func concurrentMixed(t *testing.T, db *gorm.DB, seq *sequencer.Sequencer, queueID string) {
	t.Helper()
	var initial []*models.QueueEntry
	for i := 0; i < 6; i++ {
		initial = append(initial, join(t, seq, queueID, "seed"))
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, seq.Join(ctx, queueID, &models.QueueEntry{}))
		}()
	}
	ops := []func(string) error{
		func(id string) error { _, err := seq.Serve(ctx, queueID, id); return err },
		func(id string) error { _, err := seq.Skip(ctx, queueID, id); return err },
		func(id string) error { _, err := seq.Leave(ctx, queueID, id); return err },
	}
	for i, e := range initial {
		wg.Add(1)
		go func(op func(string) error, id string) {
			defer wg.Done()
			assert.NoError(t, op(id))
		}(ops[i%len(ops)], e.ID)
	}
	wg.Wait()

	// 6 + 4 вступивших, 4 завершены (по два serve и leave), 2 пропущены
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, storagetest.WaitingPositions(t, db, queueID))
}
