package server

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"net"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"github.com/omriShneor/rustdex/core"
	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/protocol"
)

// Store is the engine surface the server exposes. *core.Bitcask implements it.
type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Exists(key []byte) (bool, error)
	Count() (int, error)
	ListKeys() (iter.Seq[[]byte], error)
	Compact() error
	Stats() (core.Stats, error)
}

// Handler serves the command protocol on top of a Store.
type Handler struct {
	store  Store
	logger *log.Logger
}

func NewHandler(store Store, logger *log.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// ServeConn reads commands from conn and writes one response for each until
// the client disconnects. It closes conn.
func (h *Handler) ServeConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	h.logger.Debug().Str("remote", remote).Msg("client connected")

	r := bufio.NewReader(conn)
	for {
		command, err := protocol.DecodeCommand(r)
		if err != nil {
			if err != io.EOF {
				h.logger.Debug().Err(err).Str("remote", remote).Msg("error reading command")
			}
			h.logger.Debug().Str("remote", remote).Msg("client disconnected")
			return
		}

		resp := h.Handle(command)
		if _, err := conn.Write(protocol.EncodeResponse(resp)); err != nil {
			h.logger.Debug().Err(err).Str("remote", remote).Msg("client disconnected")
			return
		}
	}
}

// Handle executes one command against the store.
func (h *Handler) Handle(command *protocol.Command) *protocol.Response {
	switch command.Name() {
	case protocol.CmdPing:
		return protocol.OK([]byte("PONG!"))
	case protocol.CmdSet:
		return h.handleSet(command)
	case protocol.CmdGet:
		return h.handleGet(command)
	case protocol.CmdDelete:
		return h.handleDelete(command)
	case protocol.CmdExists:
		return h.handleExists(command)
	case protocol.CmdCount:
		return h.handleCount()
	case protocol.CmdList:
		return h.handleList()
	case protocol.CmdCompact:
		return h.handleCompact()
	case protocol.CmdStats:
		return h.handleStats()
	case protocol.CmdHelp:
		return protocol.OK([]byte(strings.TrimSpace(helpString)))
	default:
		return protocol.Err(errors.Errorf("invalid command %q", command.Cmd))
	}
}

func (h *Handler) handleSet(command *protocol.Command) *protocol.Response {
	if err := h.store.Put(command.Key, command.Val); err != nil {
		return h.fail(command, err)
	}
	return protocol.OK([]byte("ok"))
}

func (h *Handler) handleGet(command *protocol.Command) *protocol.Response {
	value, err := h.store.Get(command.Key)
	if errors.Is(errors.NotExist, err) {
		return protocol.Nil()
	}
	if err != nil {
		return h.fail(command, err)
	}
	return protocol.OK(value)
}

func (h *Handler) handleDelete(command *protocol.Command) *protocol.Response {
	if err := h.store.Delete(command.Key); err != nil {
		return h.fail(command, err)
	}
	return protocol.OK([]byte("ok"))
}

func (h *Handler) handleExists(command *protocol.Command) *protocol.Response {
	ok, err := h.store.Exists(command.Key)
	if err != nil {
		return h.fail(command, err)
	}
	return protocol.OK([]byte(strconv.FormatBool(ok)))
}

func (h *Handler) handleCount() *protocol.Response {
	count, err := h.store.Count()
	if err != nil {
		return h.fail(&protocol.Command{Cmd: protocol.CmdCount}, err)
	}
	return protocol.OK([]byte(strconv.Itoa(count)))
}

func (h *Handler) handleList() *protocol.Response {
	seq, err := h.store.ListKeys()
	if err != nil {
		return h.fail(&protocol.Command{Cmd: protocol.CmdList}, err)
	}

	var keys [][]byte
	for k := range seq {
		keys = append(keys, k)
	}
	return protocol.OK(protocol.EncodeKeys(keys))
}

func (h *Handler) handleCompact() *protocol.Response {
	if err := h.store.Compact(); err != nil {
		return h.fail(&protocol.Command{Cmd: protocol.CmdCompact}, err)
	}
	return protocol.OK([]byte("ok"))
}

func (h *Handler) handleStats() *protocol.Response {
	s, err := h.store.Stats()
	if err != nil {
		return h.fail(&protocol.Command{Cmd: protocol.CmdStats}, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "segments: %d\n", s.Segments)
	fmt.Fprintf(&b, "active_segment: %d\n", s.ActiveSegment)
	fmt.Fprintf(&b, "keys: %d\n", s.Keys)
	fmt.Fprintf(&b, "total_bytes: %d\n", s.TotalBytes)
	fmt.Fprintf(&b, "dead_bytes: %d\n", s.DeadBytes)
	fmt.Fprintf(&b, "garbage_ratio: %.4f\n", s.GarbageRatio)
	fmt.Fprintf(&b, "compactions: %d\n", s.Compactions)
	fmt.Fprintf(&b, "reclaimed_bytes: %d", s.ReclaimedBytes)
	return protocol.OK([]byte(b.String()))
}

// fail turns a store error into an error response. Bad arguments are the
// client's problem; anything else is logged.
func (h *Handler) fail(command *protocol.Command, err error) *protocol.Response {
	if !errors.Is(errors.Invalid, err) {
		h.logger.Error().Err(err).Str("command", command.Name()).Msg("command failed")
	}
	return protocol.Err(err)
}

const helpString = `
Available Commands:

PING
  Check if the server is alive.
  Response: PONG!

SET <key> <value>
  Store a value for the given key.
  Overwrites the value if the key already exists.
  Response: ok

GET <key>
  Retrieve the value associated with the key.
  Response: value | nil

DELETE <key>
  Delete the key and its value.
  Response: ok

EXISTS <key>
  Check if a key exists.
  Response: true | false

COUNT
  Return the total number of keys stored.
  Response: integer

LIST
  List all stored keys.
  Response: list of keys | nil

COMPACT
  Merge sealed segments and reclaim space held by old values and deletes.
  Response: ok

STATS
  Show segment and garbage statistics.

HELP
  Show this help message.

EXIT (cli only)
  Close the client connection.
`
