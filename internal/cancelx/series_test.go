package cancelx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesNextCancelsPrevious(t *testing.T) {
	s := NewSeries(context.Background())
	defer s.Close()

	first, err := s.Next(nil)
	require.NoError(t, err)
	assert.NoError(t, first.Err())

	second, err := s.Next(nil)
	require.NoError(t, err)

	assert.ErrorIs(t, first.Err(), context.Canceled)
	assert.NoError(t, second.Err())

	third, err := s.Next(nil)
	require.NoError(t, err)
	assert.ErrorIs(t, second.Err(), context.Canceled)
	assert.NoError(t, third.Err())
}

func TestSeriesExternalCancellation(t *testing.T) {
	s := NewSeries(context.Background())
	defer s.Close()

	external, cancelExternal := context.WithCancel(context.Background())
	ctx, err := s.Next(external)
	require.NoError(t, err)

	cancelExternal()

	// context.AfterFunc delivers asynchronously.
	assert.Eventually(t, func() bool {
		return ctx.Err() != nil
	}, time.Second, time.Millisecond)
}

func TestSeriesSuperCancellation(t *testing.T) {
	super, cancelSuper := context.WithCancel(context.Background())
	s := NewSeries(super)
	defer s.Close()

	ctx, err := s.Next(nil)
	require.NoError(t, err)

	cancelSuper()
	assert.Eventually(t, func() bool {
		return ctx.Err() != nil
	}, time.Second, time.Millisecond)
}

func TestSeriesClose(t *testing.T) {
	s := NewSeries(context.Background())

	ctx, err := s.Next(nil)
	require.NoError(t, err)

	s.Close()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	_, err = s.Next(nil)
	assert.ErrorIs(t, err, ErrSeriesClosed)

	// Double close is a no-op.
	s.Close()
}

func TestSeriesConcurrentNext(t *testing.T) {
	s := NewSeries(context.Background())
	defer s.Close()

	var wg sync.WaitGroup
	ctxs := make([]context.Context, 32)
	for i := range ctxs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, err := s.Next(nil)
			require.NoError(t, err)
			ctxs[i] = ctx
		}(i)
	}
	wg.Wait()

	// Exactly one context survives: all but the last issued are canceled.
	live := 0
	for _, ctx := range ctxs {
		if ctx.Err() == nil {
			live++
		}
	}
	assert.Equal(t, 1, live)
}
