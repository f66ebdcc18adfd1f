package resource

import (
	"context"
	"io"
)

// ThrottleWriter returns w with every write charged against the IO limit.
// Without a limit w is returned as is.
func (c *Controller) ThrottleWriter(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.ioLimiter == nil {
		return w
	}
	return &throttledWriter{ctx: ctx, c: c, w: w}
}

// ThrottleReader returns r with every read charged against the IO limit.
// Without a limit r is returned as is.
func (c *Controller) ThrottleReader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil || c.ioLimiter == nil {
		return r
	}
	return &throttledReader{ctx: ctx, c: c, r: r}
}

type throttledWriter struct {
	ctx context.Context
	c   *Controller
	w   io.Writer
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	if err := t.c.AcquireIO(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

type throttledReader struct {
	ctx context.Context
	c   *Controller
	r   io.Reader
}

// Read charges only the bytes actually read.
func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if aerr := t.c.AcquireIO(t.ctx, n); aerr != nil {
			return n, aerr
		}
	}
	return n, err
}
