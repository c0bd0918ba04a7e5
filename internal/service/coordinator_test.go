package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoordinator() *Coordinator {
	c := &Coordinator{
		concurrency: 4,
		logger:      zerolog.Nop(),
		states:      map[string]*targetState{},
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func TestRunSerialized_RunsAndReturnsError(t *testing.T) {
	c := testCoordinator()

	require.NoError(t, c.runSerialized("p1", func() error { return nil }))

	wantErr := errors.New("boom")
	assert.ErrorIs(t, c.runSerialized("p1", func() error { return wantErr }), wantErr)

	// A finished target reports idle again.
	assert.Equal(t, StatusIdle, c.Status("p1"))
}

func TestRunSerialized_CoalescesConcurrentTriggers(t *testing.T) {
	c := testCoordinator()

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	runs := 0

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.runSerialized("p1", func() error {
			mu.Lock()
			runs++
			first := runs == 1
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
			return nil
		})
	}()

	<-started
	assert.Equal(t, StatusRecomputing, c.Status("p1"))

	// Several triggers while the first run is in flight collapse into a
	// single follow-up run.
	for i := 0; i < 5; i++ {
		require.NoError(t, c.runSerialized("p1", func() error {
			t.Error("coalesced trigger must not run its own function")
			return nil
		}))
	}
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, runs)
}

func TestWithTarget_WaitsInsteadOfCoalescing(t *testing.T) {
	c := testCoordinator()

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	runs := 0

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.withTarget("p1", func() error {
			mu.Lock()
			runs++
			mu.Unlock()
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.Equal(t, StatusRecomputing, c.Status("p1"))

	// A second fold for the same target must wait for the first and then
	// run itself; dropping it would lose a match application.
	go func() {
		defer wg.Done()
		_ = c.withTarget("p1", func() error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		})
	}()

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, runs)
	assert.Equal(t, StatusIdle, c.Status("p1"))
}

func TestWithTarget_ExcludesInFlightRecompute(t *testing.T) {
	c := testCoordinator()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = c.runSerialized("p1", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = c.withTarget("p1", func() error { return nil })
		close(done)
	}()

	// The fold must not start while the recompute holds the slot.
	select {
	case <-done:
		t.Fatal("fold ran while a recompute for the same target was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fold never ran after the recompute finished")
	}
}

func TestRunSerialized_DistinctTargetsDoNotBlock(t *testing.T) {
	c := testCoordinator()

	blockP1 := make(chan struct{})
	startedP1 := make(chan struct{})
	go func() {
		_ = c.runSerialized("p1", func() error {
			close(startedP1)
			<-blockP1
			return nil
		})
	}()
	<-startedP1

	done := make(chan struct{})
	go func() {
		_ = c.runSerialized("p2", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run for a distinct target was blocked")
	}
	close(blockP1)
}
