package protocol_test

import (
	"bytes"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/protocol"
)

func TestEncodeDecodeResponse(t *testing.T) {
	tests := []struct {
		name     string
		response *protocol.Response
	}{
		{"simple response", protocol.OK([]byte("ok"))},
		{"nil response", protocol.Nil()},
		{"empty response", protocol.OK(nil)},
		{"error response", protocol.Err(errors.Str("boom"))},
		{"multiline response", protocol.OK([]byte("line1\nline2\nline3"))},
		{"unicode response", protocol.OK([]byte("こんにちは世界"))},
		{"large response", protocol.OK(make([]byte, 2048))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			payload := protocol.EncodeResponse(tt.response)

			go func() {
				_, _ = client.Write(payload)
			}()

			resp, err := protocol.DecodeResponse(server)
			if err != nil {
				t.Fatalf("DecodeResponse failed: %v", err)
			}

			if resp.Status != tt.response.Status {
				t.Errorf("Status mismatch: got %v, want %v", resp.Status, tt.response.Status)
			}
			if !bytes.Equal(resp.Body, tt.response.Body) {
				t.Errorf("Body mismatch: got %q, want %q", resp.Body, tt.response.Body)
			}
		})
	}
}

func TestDecodeResponse_UnknownStatus(t *testing.T) {
	payload := protocol.EncodeResponse(protocol.OK(nil))
	payload[0] = 9

	if _, err := protocol.DecodeResponse(bytes.NewReader(payload)); !errors.Is(errors.Invalid, err) {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestDecodeResponse_TruncatedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := protocol.EncodeResponse(protocol.OK([]byte("hello world")))

	go func() {
		_, _ = client.Write(payload[:len(payload)/2])
		client.Close()
	}()

	if _, err := protocol.DecodeResponse(server); err == nil {
		t.Fatalf("expected error on truncated response, got nil")
	}
}

func TestDecodeResponse_BlocksUntilComplete(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := protocol.EncodeResponse(protocol.OK([]byte("blocking test")))

	done := make(chan struct{})

	go func() {
		_, _ = protocol.DecodeResponse(server)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("DecodeResponse returned early")
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = client.Write(payload)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("DecodeResponse did not return after full payload")
	}
}

func TestEncodeDecodeKeys(t *testing.T) {
	keys := [][]byte{[]byte("a"), {}, []byte("with\nnewline"), []byte("🚀")}

	got, err := protocol.DecodeKeys(protocol.EncodeKeys(keys))
	if err != nil {
		t.Fatalf("DecodeKeys failed: %v", err)
	}
	if !slices.EqualFunc(got, keys, bytes.Equal) {
		t.Errorf("DecodeKeys() = %q, want %q", got, keys)
	}

	if keys, err := protocol.DecodeKeys(nil); err != nil || len(keys) != 0 {
		t.Errorf("DecodeKeys(nil) = %q, %v", keys, err)
	}

	body := protocol.EncodeKeys([][]byte{[]byte("abcdef")})
	if _, err := protocol.DecodeKeys(body[:len(body)-1]); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error for truncated body, got %v", err)
	}
	if _, err := protocol.DecodeKeys(body[:2]); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error for truncated length, got %v", err)
	}
}
