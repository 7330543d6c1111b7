package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/phuslu/log"
)

// Listen opens a TCP listener on port. If the port is taken the next one
// is tried, so the caller should read the bound address from the listener.
func Listen(port int) (net.Listener, error) {
	for {
		addr := fmt.Sprintf(":%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			if port != 0 && errors.Is(err, syscall.EADDRINUSE) {
				port++
				continue
			}
			return nil, err
		}
		return ln, nil
	}
}

// Serve accepts connections on ln until ctx is cancelled, running handler
// for each one on its own goroutine.
func Serve(ctx context.Context, ln net.Listener, handler func(conn net.Conn), logger *log.Logger) error {
	// When ctx is cancelled, close listener
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("server listening")

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
			logger.Warn().Err(err).Msg("error accepting connection")
			continue
		}

		go handler(conn)
	}
}

// Start listens on port and serves connections until ctx is cancelled.
func Start(ctx context.Context, port int, handler func(conn net.Conn), logger *log.Logger) error {
	ln, err := Listen(port)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, handler, logger)
}
