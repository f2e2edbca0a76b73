package reputation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_CountsAndRate(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()

	tr.Update(ctx, "coingecko", true, 100, 0.9)
	tr.Update(ctx, "coingecko", true, 200, 0.8)
	tr.Update(ctx, "coingecko", false, 300, 0.7)

	rec := tr.Get("coingecko")
	assert.Equal(t, int64(3), rec.TotalQueries)
	assert.Equal(t, int64(2), rec.CorrectCount)
	assert.Equal(t, int64(1), rec.WrongCount)
	assert.Equal(t, rec.TotalQueries, rec.CorrectCount+rec.WrongCount)
	assert.InDelta(t, 2.0/3.0, rec.SuccessRate, 1e-9)
	assert.InDelta(t, 200, rec.AvgResponseTimeMs, 1e-9)
	assert.InDelta(t, 0.8, rec.AvgConfidence, 1e-9)
}

func TestUpdate_Monotonicity(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()

	tr.Update(ctx, "s", true, 10, 0.9)
	tr.Update(ctx, "s", false, 10, 0.9)
	prev := tr.Get("s").SuccessRate

	// A correct answer never lowers the rate.
	tr.Update(ctx, "s", true, 10, 0.9)
	after := tr.Get("s").SuccessRate
	assert.GreaterOrEqual(t, after, prev)

	// A wrong answer never raises it.
	prev = after
	tr.Update(ctx, "s", false, 10, 0.9)
	assert.LessOrEqual(t, tr.Get("s").SuccessRate, prev)
}

func TestGet_UnknownSource(t *testing.T) {
	tr := NewTracker()

	rec := tr.Get("never-seen")
	assert.Equal(t, "never-seen", rec.SourceID)
	assert.Zero(t, rec.TotalQueries)
}

func TestTop_Ordering(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()

	// a: 100% over 2 queries; b: 100% over 5 queries; c: 50%.
	for i := 0; i < 2; i++ {
		tr.Update(ctx, "a", true, 10, 0.9)
	}
	for i := 0; i < 5; i++ {
		tr.Update(ctx, "b", true, 10, 0.9)
	}
	tr.Update(ctx, "c", true, 10, 0.9)
	tr.Update(ctx, "c", false, 10, 0.9)

	top := tr.Top(2)
	require.Len(t, top, 2)
	// Equal rates tie-break on more evidence.
	assert.Equal(t, "b", top[0].SourceID)
	assert.Equal(t, "a", top[1].SourceID)

	all := tr.Top(0)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[2].SourceID)
}

func TestUpdate_ConcurrentSameSource(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(correct bool) {
			defer wg.Done()
			tr.Update(ctx, "shared", correct, 50, 0.8)
		}(i%2 == 0)
	}
	wg.Wait()

	rec := tr.Get("shared")
	assert.Equal(t, int64(100), rec.TotalQueries)
	assert.Equal(t, int64(50), rec.CorrectCount)
	assert.Equal(t, int64(50), rec.WrongCount)
	assert.InDelta(t, 0.8, rec.AvgConfidence, 1e-9)
}
