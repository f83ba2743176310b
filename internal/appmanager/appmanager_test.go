package appmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunGracefulShutdownRunsStepsInOrderAndCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	am := New(cancel, zerolog.Nop())

	var mu sync.Mutex
	var order []string
	am.RegisterShutdownStep("stop-blocker", func(context.Context) error {
		mu.Lock()
		order = append(order, "stop-blocker")
		mu.Unlock()
		return nil
	})
	am.RegisterShutdownStep("close-db", func(context.Context) error {
		mu.Lock()
		order = append(order, "close-db")
		mu.Unlock()
		return nil
	})

	require.NoError(t, am.RunGracefulShutdown(context.Background(), "test"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"stop-blocker", "close-db"}, order)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected root context to be canceled after graceful shutdown")
	}
}

func TestRunGracefulShutdownCollectsStepErrors(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	am := New(cancel, zerolog.Nop())

	boom := errors.New("boom")
	am.RegisterShutdownStep("failing-step", func(context.Context) error { return boom })

	err := am.RunGracefulShutdown(context.Background(), "test")
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}

func TestRunGracefulShutdownOnlyRunsOnce(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	am := New(cancel, zerolog.Nop())

	var calls int
	var mu sync.Mutex
	am.RegisterShutdownStep("step", func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = am.RunGracefulShutdown(context.Background(), "concurrent")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestSpawnGracefulShutdownRunsInBackground(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	am := New(cancel, zerolog.Nop())

	var ran bool
	var mu sync.Mutex
	am.RegisterShutdownStep("step", func(context.Context) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	})

	am.SpawnGracefulShutdown(context.Background(), "async")

	select {
	case <-am.Done():
	case <-time.After(time.Second):
		t.Fatal("graceful shutdown never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, ran)
}
