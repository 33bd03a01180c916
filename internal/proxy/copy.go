package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional relays bytes between left and right until one direction
// ends, then closes both. Canceling ctx also closes both. Errors caused by
// that close are not reported.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	g.Go(func() error {
		defer closeBoth()
		return relay(left, right)
	})

	g.Go(func() error {
		defer closeBoth()
		return relay(right, left)
	})

	return g.Wait()
}

func relay(dst, src net.Conn) error {
	buf := relayBuffers.Get()
	defer relayBuffers.Put(buf)

	_, err := io.CopyBuffer(dst, src, *buf)
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
