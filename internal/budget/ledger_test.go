package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ReserveCommitRelease(t *testing.T) {
	l := NewLedger(1.0)

	require.NoError(t, l.Reserve(0.4))
	assert.InDelta(t, 0.6, l.Remaining(), 1e-9)

	// Actual cost came in under the reservation.
	l.Commit(0.4, 0.3)
	assert.InDelta(t, 0.3, l.Spent(), 1e-9)
	assert.InDelta(t, 0.7, l.Remaining(), 1e-9)

	require.NoError(t, l.Reserve(0.5))
	l.Release(0.5)
	assert.InDelta(t, 0.7, l.Remaining(), 1e-9)
}

func TestLedger_RejectsOverrun(t *testing.T) {
	l := NewLedger(0.10)

	require.NoError(t, l.Reserve(0.08))
	assert.ErrorIs(t, l.Reserve(0.03), ErrExceeded)

	// Exact fit is allowed.
	assert.NoError(t, l.Reserve(0.02))
}

func TestLedger_NeverOverCommitsConcurrently(t *testing.T) {
	l := NewLedger(1.0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve(0.05); err == nil {
				l.Commit(0.05, 0.05)
			}
		}()
	}
	wg.Wait()

	// 100 tasks × 0.05 would be 5.0; only 20 can fit.
	assert.InDelta(t, 1.0, l.Spent(), 1e-9)
	assert.InDelta(t, 0, l.Remaining(), 1e-9)
}
