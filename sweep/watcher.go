package sweep

import (
	"context"
	"time"
)

// Reason tells why the run of a point was stopped.
type Reason string

const (
	// Converged means that convergence limit is achieved.
	Converged Reason = "converged"
	// Interrupted means that the point was interrupted externally.
	Interrupted Reason = "interrupted"
	// Cancelled means that the context was done.
	Cancelled Reason = "cancelled"
	// Finished means that the pipeline ended on its own.
	Finished Reason = "finished"
)

// watcher closes stop channel of the run. It's the only closer of stop.
// Optional progress function is called every interval until the run is
// stopped.
type watcher struct {
	stop     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	reason   Reason
	interval time.Duration
	progress func()
}

func newWatcher(interval time.Duration, progress func()) *watcher {
	return &watcher{
		stop:     make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		interval: interval,
		progress: progress,
	}
}

// watch starts a goroutine which waits for any stop condition.
func (w *watcher) watch(ctx context.Context, converged, interrupted <-chan struct{}) {
	go func() {
		defer close(w.done)
		defer close(w.stop)
		var tick <-chan time.Time
		if w.interval > 0 && w.progress != nil {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-tick:
				w.progress()
				continue
			case <-converged:
				w.reason = Converged
			case <-interrupted:
				w.reason = Interrupted
			case <-ctx.Done():
				w.reason = Cancelled
			case <-w.quit:
				w.reason = Finished
				// limits achieved by the last frames take precedence
				select {
				case <-converged:
					w.reason = Converged
				case <-interrupted:
					w.reason = Interrupted
				default:
				}
			}
			return
		}
	}()
}

// join stops the watcher and returns the reason. Progress is not called
// after join returns.
func (w *watcher) join() Reason {
	close(w.quit)
	<-w.done
	return w.reason
}
