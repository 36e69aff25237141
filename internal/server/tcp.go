package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// MaxPortAttempts bounds how far Listen walks up from the requested port.
const MaxPortAttempts = 16

// Listen binds a TCP listener on host:port. While the address is in use it
// tries the following ports, up to MaxPortAttempts in total. Port 0 picks a
// free port.
func Listen(host string, port int) (net.Listener, error) {
	var lastErr error

	for i := 0; i < MaxPortAttempts; i++ {
		addr := net.JoinHostPort(host, fmt.Sprint(port+i))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) || port == 0 {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no free port in %d..%d: %w", port, port+MaxPortAttempts-1, lastErr)
}

// Serve accepts connections on ln until ctx is cancelled and runs handler
// for each one in its own goroutine. Connections are closed on cancellation
// and Serve returns once every handler has finished.
func Serve(ctx context.Context, ln net.Listener, log *zap.SugaredLogger, handler func(ctx context.Context, conn net.Conn)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	// When ctx is cancelled, close listener
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	// Accept Loop
	for {
		conn, err := ln.Accept()
		if err != nil {
			// When ln.Close() is called, Accept() returns an error.
			// This is how we break out of the loop cleanly.
			select {
			case <-ctx.Done():
				return nil // graceful shutdown
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warnf("Error accepting connection: %v", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			closeConn := context.AfterFunc(ctx, func() { conn.Close() })
			defer closeConn()
			defer conn.Close()

			handler(ctx, conn)
		}()
	}
}
