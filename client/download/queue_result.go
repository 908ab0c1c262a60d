package download

import (
	"context"
)

// Result represents an in-flight or completed async download.
type Result struct {
	done   chan struct{}
	path   string
	err    error
	cancel context.CancelFunc
	group  *Queue
}

// Done returns a channel that is closed when the specific download completes.
func (r *Result) Done() <-chan struct{} { return r.done }

// Err blocks until this download completes and returns its error.
func (r *Result) Err() error {
	<-r.done
	return r.err
}

// Path blocks until this download completes and returns where the
// file was written, empty on failure.
func (r *Result) Path() string {
	<-r.done
	return r.path
}

// Wait blocks until all downloads in the queue complete.
// Returns all errors joined.
func (r *Result) Wait() error {
	return r.group.Wait()
}

// Cancel cancels this download's context.
func (r *Result) Cancel() {
	r.cancel()
}

// recordErr appends err to the queue's error slice under the mutex.
func (g *Queue) recordErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, err)
}
