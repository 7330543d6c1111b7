package server_test

import (
	"context"
	"io"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/phuslu/log"

	"github.com/omriShneor/rustdex/core"
	"github.com/omriShneor/rustdex/internal/protocol"
	"github.com/omriShneor/rustdex/internal/server"
)

func quietLogger() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

func startHandler(t *testing.T) net.Conn {
	t.Helper()

	cfg := core.DefaultConfig()
	cfg.AutoCompact.Enabled = false
	cfg.Logger = quietLogger()

	bk, err := core.Open(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("failed to open bitcask: %v", err)
	}

	client, conn := net.Pipe()
	h := server.NewHandler(bk, quietLogger())
	done := make(chan struct{})
	go func() {
		h.ServeConn(conn)
		close(done)
	}()

	t.Cleanup(func() {
		client.Close()
		<-done
		bk.Close()
	})

	return client
}

func roundTrip(t *testing.T, conn net.Conn, cmd, key, val string) *protocol.Response {
	t.Helper()

	payload, err := protocol.EncodeCommand(cmd, []byte(key), []byte(val))
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	resp, err := protocol.DecodeResponse(conn)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	return resp
}

func expect(t *testing.T, resp *protocol.Response, status protocol.Status, body string) {
	t.Helper()
	if resp.Status != status || string(resp.Body) != body {
		t.Fatalf("got %v %q, want %v %q", resp.Status, resp.Body, status, body)
	}
}

func TestHandlerCommands(t *testing.T) {
	conn := startHandler(t)

	expect(t, roundTrip(t, conn, "PING", "", ""), protocol.StatusOK, "PONG!")
	expect(t, roundTrip(t, conn, "set", "foo", "bar"), protocol.StatusOK, "ok")
	expect(t, roundTrip(t, conn, "set", "city", "new york"), protocol.StatusOK, "ok")
	expect(t, roundTrip(t, conn, "get", "foo", ""), protocol.StatusOK, "bar")
	expect(t, roundTrip(t, conn, "get", "missing", ""), protocol.StatusNil, "")
	expect(t, roundTrip(t, conn, "exists", "city", ""), protocol.StatusOK, "true")
	expect(t, roundTrip(t, conn, "count", "", ""), protocol.StatusOK, "2")

	resp := roundTrip(t, conn, "list", "", "")
	keys, err := protocol.DecodeKeys(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, k := range keys {
		names = append(names, string(k))
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"city", "foo"}) {
		t.Fatalf("LIST returned %v", names)
	}

	expect(t, roundTrip(t, conn, "delete", "foo", ""), protocol.StatusOK, "ok")
	expect(t, roundTrip(t, conn, "get", "foo", ""), protocol.StatusNil, "")
	expect(t, roundTrip(t, conn, "exists", "foo", ""), protocol.StatusOK, "false")
	expect(t, roundTrip(t, conn, "compact", "", ""), protocol.StatusOK, "ok")
	expect(t, roundTrip(t, conn, "get", "city", ""), protocol.StatusOK, "new york")

	stats := roundTrip(t, conn, "stats", "", "")
	if stats.Status != protocol.StatusOK || !strings.Contains(string(stats.Body), "keys: 1") {
		t.Fatalf("unexpected STATS reply %v %q", stats.Status, stats.Body)
	}

	help := roundTrip(t, conn, "help", "", "")
	if !strings.HasPrefix(string(help.Body), "Available Commands:") {
		t.Fatalf("unexpected HELP reply %q", help.Body)
	}
}

func TestHandlerErrors(t *testing.T) {
	conn := startHandler(t)

	if resp := roundTrip(t, conn, "frobnicate", "", ""); resp.Status != protocol.StatusErr {
		t.Errorf("unknown command: got %v %q", resp.Status, resp.Body)
	}
	if resp := roundTrip(t, conn, "set", "", "value"); resp.Status != protocol.StatusErr {
		t.Errorf("empty key: got %v %q", resp.Status, resp.Body)
	}

	// The connection stays usable after an error.
	expect(t, roundTrip(t, conn, "ping", "", ""), protocol.StatusOK, "PONG!")
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := server.Listen(0)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, ln, func(conn net.Conn) {
			defer conn.Close()
			cmd, err := protocol.DecodeCommand(conn)
			if err != nil {
				return
			}
			conn.Write(protocol.EncodeResponse(protocol.OK([]byte(cmd.Cmd))))
		}, quietLogger())
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	expect(t, roundTrip(t, conn, "echo", "", ""), protocol.StatusOK, "echo")
	conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
