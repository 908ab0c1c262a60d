package download

import (
	"io"
	"sync/atomic"
)

// countingWriter adds every written byte to a shared counter that a
// progress sampler reads concurrently.
type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n.Add(int64(n))
	return n, err
}
