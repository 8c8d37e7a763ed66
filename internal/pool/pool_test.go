package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ExecutesTasks(t *testing.T) {
	t.Parallel()

	p := New(2, 16)
	defer p.Close()

	var ran atomic.Int64
	for i := 0; i < 8; i++ {
		err := p.Submit(context.Background(), func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	deadline := time.Now().Add(time.Second)
	for ran.Load() < 8 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(8), ran.Load())
	assert.Equal(t, int64(8), p.Snapshot().Completed)
}

func TestWorkerPool_CountsFailures(t *testing.T) {
	t.Parallel()

	p := New(1, 4)
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		panic("worse")
	}))
	p.Close()

	stats := p.Snapshot()
	assert.Equal(t, int64(2), stats.Failed)
}

func TestWorkerPool_RejectsWhenFull(t *testing.T) {
	t.Parallel()

	p := New(1, 1)
	defer p.Close()

	block := make(chan struct{})
	_ = p.Submit(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	})

	// Fill the queue, then overflow it.
	sawFull := false
	for i := 0; i < 8; i++ {
		if err := p.Submit(context.Background(), func(ctx context.Context) error { return nil }); errors.Is(err, ErrPoolFull) {
			sawFull = true
			break
		}
	}
	close(block)
	assert.True(t, sawFull)
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	t.Parallel()

	p := New(1, 1)
	p.Close()
	p.Close()
	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}
