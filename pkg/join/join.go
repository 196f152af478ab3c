// Package join runs independent tasks concurrently and reports the first
// failure without waiting for the rest.
//
// Tasks are never cancelled. A task still running when Wait returns keeps
// going in the background and its result is dropped.
package join

import "sync"

type Group struct {
	wg    sync.WaitGroup
	once  sync.Once
	errCh chan error
	done  chan struct{}
	start sync.Once
}

func New() *Group {
	return &Group{
		errCh: make(chan error, 1),
		done:  make(chan struct{}),
	}
}

// Go starts fn. It must not be called after Wait.
func (g *Group) Go(fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.once.Do(func() { g.errCh <- err })
		}
	}()
}

// Wait returns the first error as soon as it happens, or nil once every
// task has succeeded.
func (g *Group) Wait() error {
	g.start.Do(func() {
		go func() {
			g.wg.Wait()
			close(g.done)
		}()
	})

	select {
	case err := <-g.errCh:
		return err
	case <-g.done:
		// A task may have failed right before the last one finished.
		select {
		case err := <-g.errCh:
			return err
		default:
			return nil
		}
	}
}

// AfterAll runs fn in the background once every task has finished,
// whatever Wait returned. Use it to release resources a late task may
// still produce.
func (g *Group) AfterAll(fn func()) {
	go func() {
		g.wg.Wait()
		fn()
	}()
}
