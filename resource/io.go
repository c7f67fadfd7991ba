package resource

import (
	"context"
	"io"
)

// Writer wraps w so that every write first passes the controller's snapshot
// throughput limit.
func Writer(ctx context.Context, c *Controller, w io.Writer) io.Writer {
	if c == nil || c.ioLimiter == nil {
		return w
	}
	return &limitedWriter{ctx: ctx, c: c, w: w}
}

type limitedWriter struct {
	ctx context.Context
	c   *Controller
	w   io.Writer
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if err := lw.c.AcquireIO(lw.ctx, len(p)); err != nil {
		return 0, err
	}
	return lw.w.Write(p)
}

// Reader wraps r so that consumed bytes are charged against the
// controller's snapshot throughput limit. The charge happens after the
// read, for the bytes actually delivered.
func Reader(ctx context.Context, c *Controller, r io.Reader) io.Reader {
	if c == nil || c.ioLimiter == nil {
		return r
	}
	return &limitedReader{ctx: ctx, c: c, r: r}
}

type limitedReader struct {
	ctx context.Context
	c   *Controller
	r   io.Reader
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if err := lr.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.c.AcquireIO(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
