package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// NotifyContext returns a context that is cancelled when SIGINT or SIGTERM is received.
// The returned stop function should be called to release resources.
func NotifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Handlers are invoked from the signal goroutine.
type Handlers struct {
	// Interrupt runs on SIGINT. Returning false escalates to Terminate.
	Interrupt func() bool
	// Terminate runs once, on SIGTERM or an unhandled SIGINT.
	Terminate func()
}

// Handle routes SIGINT and SIGTERM to h until stop is called.
func Handle(h Handlers) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	stopRelay := relay(ch, h)
	return func() {
		signal.Stop(ch)
		stopRelay()
	}
}

func relay(ch <-chan os.Signal, h Handlers) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	var once sync.Once
	terminate := func() {
		once.Do(func() {
			if h.Terminate != nil {
				h.Terminate()
			}
		})
	}

	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				if sig == os.Interrupt && h.Interrupt != nil && h.Interrupt() {
					continue
				}
				terminate()
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			close(done)
			<-exited
		})
	}
}
