package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"testing/iotest"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/protocol"
)

func TestEncodeDecodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		key  string
		val  string
	}{
		{"SET command", "set", "foo", "bar"},
		{"GET command", "get", "hello", ""},
		{"COUNT command", "count", "", ""},
		{"empty key and value", "ping", "", ""},
		{"value with spaces", "set", "city", "new york"},
		{"unicode value", "set", "emoji", "🚀🔥"},
		{"binary key", "set", "\x00\xff\n", "v"},
		{"large value", "set", "big", string(make([]byte, 1024))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			payload, err := protocol.EncodeCommand(tt.cmd, []byte(tt.key), []byte(tt.val))
			if err != nil {
				t.Fatalf("EncodeCommand failed: %v", err)
			}

			go func() {
				_, _ = client.Write(payload)
			}()

			cmd, err := protocol.DecodeCommand(server)
			if err != nil {
				t.Fatalf("DecodeCommand failed: %v", err)
			}

			if cmd.Cmd != tt.cmd {
				t.Errorf("Cmd mismatch: got %q, want %q", cmd.Cmd, tt.cmd)
			}
			if string(cmd.Key) != tt.key {
				t.Errorf("Key mismatch: got %q, want %q", cmd.Key, tt.key)
			}
			if string(cmd.Val) != tt.val {
				t.Errorf("Val mismatch: got %q, want %q", cmd.Val, tt.val)
			}
		})
	}
}

func TestCommandName(t *testing.T) {
	cmd := &protocol.Command{Cmd: "SeT"}
	if cmd.Name() != protocol.CmdSet {
		t.Errorf("Name() = %q, want %q", cmd.Name(), protocol.CmdSet)
	}
}

func TestEncodeCommand_RejectsLongName(t *testing.T) {
	name := string(bytes.Repeat([]byte("x"), 256))
	if _, err := protocol.EncodeCommand(name, nil, nil); !errors.Is(errors.Invalid, err) {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestDecodeCommand_RejectsOversizedHeader(t *testing.T) {
	header := make([]byte, 9)
	header[0] = 3
	binary.BigEndian.PutUint32(header[1:5], protocol.MaxPayloadSize+1)

	if _, err := protocol.DecodeCommand(bytes.NewReader(header)); !errors.Is(errors.Invalid, err) {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestDecodeCommand_CleanEOF(t *testing.T) {
	if _, err := protocol.DecodeCommand(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("expected io.EOF between commands, got %v", err)
	}
}

func TestDecodeCommand_TruncatedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload, err := protocol.EncodeCommand("set", []byte("key"), []byte("value"))
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	// Write only part of the payload
	go func() {
		_, _ = client.Write(payload[:len(payload)/2])
		client.Close()
	}()

	if _, err := protocol.DecodeCommand(server); err == nil {
		t.Fatalf("expected error on truncated payload, got nil")
	}
}

func TestDecodeCommand_Pipelined(t *testing.T) {
	var stream bytes.Buffer
	want := []protocol.Command{
		{Cmd: "set", Key: []byte("a"), Val: []byte("1")},
		{Cmd: "get", Key: []byte("a")},
		{Cmd: "count"},
	}
	for _, c := range want {
		payload, err := protocol.EncodeCommand(c.Cmd, c.Key, c.Val)
		if err != nil {
			t.Fatalf("EncodeCommand failed: %v", err)
		}
		stream.Write(payload)
	}

	// A reader that returns one byte per call exercises every short read.
	r := iotest.OneByteReader(&stream)
	for i, c := range want {
		got, err := protocol.DecodeCommand(r)
		if err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
		if got.Cmd != c.Cmd || !bytes.Equal(got.Key, c.Key) || !bytes.Equal(got.Val, c.Val) {
			t.Fatalf("command %d: got %+v, want %+v", i, got, c)
		}
	}
	if _, err := protocol.DecodeCommand(r); err != io.EOF {
		t.Fatalf("expected io.EOF after the last command, got %v", err)
	}
}
