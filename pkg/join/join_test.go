package join

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitAllSucceed(t *testing.T) {
	g := New()
	var n int32
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			atomic.AddInt32(&n, 1)
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.EqualValues(t, 5, atomic.LoadInt32(&n))
}

func TestWaitReturnsFirstFailureWithoutWaiting(t *testing.T) {
	g := New()
	release := make(chan struct{})
	defer close(release)

	boom := errors.New("tag fetch failed")
	g.Go(func() error {
		<-release
		return nil
	})
	g.Go(func() error { return boom })

	errc := make(chan error, 1)
	go func() { errc <- g.Wait() }()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on a slow task after a failure")
	}
}

func TestWaitKeepsOnlyFirstError(t *testing.T) {
	g := New()
	first := errors.New("first")
	second := make(chan struct{})

	g.Go(func() error { return first })
	g.Go(func() error {
		<-second
		return errors.New("second")
	})

	err := g.Wait()
	close(second)
	assert.ErrorIs(t, err, first)
}

func TestAfterAllRunsWhenTasksFinish(t *testing.T) {
	g := New()
	release := make(chan struct{})
	g.Go(func() error { return errors.New("fail") })
	g.Go(func() error {
		<-release
		return nil
	})

	require.Error(t, g.Wait())

	ran := make(chan struct{})
	g.AfterAll(func() { close(ran) })

	select {
	case <-ran:
		t.Fatal("AfterAll ran before the slow task finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("AfterAll never ran")
	}
}
