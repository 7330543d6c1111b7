package bitcask

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal"
	"github.com/omriShneor/rustdex/internal/protocol"
)

// Client is a connection to a Bitcask server. It is safe for concurrent
// use; requests on one Client are sent one at a time.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Connect dials the server described by opts.
func Connect(opts ...Option) (*Client, error) {
	cfg := internal.DefaultConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
	if err != nil {
		return nil, errors.E("bitcask.Connect", errors.IO, err)
	}

	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Ping checks that the server is alive.
func (c *Client) Ping() error {
	_, err := c.call("bitcask.Ping", protocol.CmdPing, "", "")
	return err
}

// Get returns the value stored under key. A missing key fails with
// errors.NotExist.
func (c *Client) Get(key string) (string, error) {
	const op = "bitcask.Get"

	resp, err := c.call(op, protocol.CmdGet, key, "")
	if err != nil {
		return "", err
	}
	if resp.Status == protocol.StatusNil {
		return "", errors.E(op, errors.NotExist, errors.Errorf("key %q", key))
	}
	return string(resp.Body), nil
}

// Set stores value under key.
func (c *Client) Set(key, value string) error {
	_, err := c.call("bitcask.Set", protocol.CmdSet, key, value)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Client) Delete(key string) error {
	_, err := c.call("bitcask.Delete", protocol.CmdDelete, key, "")
	return err
}

// Exists reports whether key is stored.
func (c *Client) Exists(key string) (bool, error) {
	const op = "bitcask.Exists"

	resp, err := c.call(op, protocol.CmdExists, key, "")
	if err != nil {
		return false, err
	}
	ok, err := strconv.ParseBool(string(resp.Body))
	if err != nil {
		return false, errors.E(op, errors.Invalid, err)
	}
	return ok, nil
}

// Count returns the number of stored keys.
func (c *Client) Count() (int, error) {
	const op = "bitcask.Count"

	resp, err := c.call(op, protocol.CmdCount, "", "")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(resp.Body))
	if err != nil {
		return 0, errors.E(op, errors.Invalid, err)
	}
	return n, nil
}

// List returns every stored key, in no particular order.
func (c *Client) List() ([]string, error) {
	const op = "bitcask.List"

	resp, err := c.call(op, protocol.CmdList, "", "")
	if err != nil {
		return nil, err
	}
	keys, err := protocol.DecodeKeys(resp.Body)
	if err != nil {
		return nil, errors.E(op, err)
	}

	list := make([]string, len(keys))
	for i, k := range keys {
		list[i] = string(k)
	}
	return list, nil
}

// Compact asks the server to merge its sealed segments.
func (c *Client) Compact() error {
	_, err := c.call("bitcask.Compact", protocol.CmdCompact, "", "")
	return err
}

// Stats returns the server's storage statistics as text.
func (c *Client) Stats() (string, error) {
	resp, err := c.call("bitcask.Stats", protocol.CmdStats, "", "")
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// Execute sends an arbitrary command and renders the reply for display.
// It is what the interactive CLI uses.
func (c *Client) Execute(cmd, key, value string) (string, error) {
	resp, err := c.call("bitcask.Execute", cmd, key, value)
	if err != nil {
		return "", err
	}

	switch {
	case resp.Status == protocol.StatusNil:
		return "nil", nil
	case strings.ToLower(cmd) == protocol.CmdList:
		keys, err := protocol.DecodeKeys(resp.Body)
		if err != nil {
			return "", errors.E("bitcask.Execute", err)
		}
		if len(keys) == 0 {
			return "nil", nil
		}
		lines := make([]string, len(keys))
		for i, k := range keys {
			lines[i] = string(k)
		}
		return "----- KEYS START -----\n" + strings.Join(lines, "\n") + "\n----- KEYS END -----", nil
	}
	return string(resp.Body), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return errors.E("bitcask.Close", errors.IO, err)
	}
	return nil
}

// call sends one command and waits for its reply. An error reply is
// returned as an error.
func (c *Client) call(op, cmd, key, value string) (*protocol.Response, error) {
	payload, err := protocol.EncodeCommand(cmd, []byte(key), []byte(value))
	if err != nil {
		return nil, errors.E(op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(payload); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}

	resp, err := protocol.DecodeResponse(c.r)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if resp.Status == protocol.StatusErr {
		return nil, errors.E(op, errors.Str(string(resp.Body)))
	}
	return resp, nil
}
