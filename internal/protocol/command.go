package protocol

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/omriShneor/rustdex/errors"
)

// Command names understood by the server. Names are matched case-insensitively.
const (
	CmdPing    = "ping"
	CmdSet     = "set"
	CmdGet     = "get"
	CmdDelete  = "delete"
	CmdExists  = "exists"
	CmdCount   = "count"
	CmdList    = "list"
	CmdCompact = "compact"
	CmdStats   = "stats"
	CmdHelp    = "help"
)

// cmd_len (1) + key_len (4) + val_len (4)
const commandHeaderSize = 9

// MaxPayloadSize bounds the key and value lengths a decoder accepts, so a
// corrupt or hostile header cannot make it allocate without limit.
const MaxPayloadSize = 512 << 20

// Command represents a decoded client command received by the Bitcask server.
//
// A Command consists of a command name (Cmd), an optional key, and an optional
// value. The meaning of Key and Val depends on the command type (e.g. GET,
// SET, DELETE). Keys and values are arbitrary bytes.
type Command struct {
	Cmd string // Command name (e.g. "get", "set", "delete")
	Key []byte // Key argument (may be empty)
	Val []byte // Value argument (may be empty)
}

// Name returns the lower-cased command name.
func (c *Command) Name() string {
	return strings.ToLower(c.Cmd)
}

// EncodeCommand serializes a client command into its wire format.
//
// The command is encoded as:
//
//	<cmd_len:uint8><key_len:uint32><val_len:uint32><cmd><key><val>
//
// All integer fields are encoded using big-endian byte order.
// The command name length is limited to 255 bytes.
//
// The returned byte slice is suitable for writing directly to a TCP
// connection.
func EncodeCommand(cmd string, key, val []byte) ([]byte, error) {
	const op = "protocol.EncodeCommand"

	if len(cmd) > 255 {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("command name of %d bytes", len(cmd)))
	}
	if len(key) > MaxPayloadSize || len(val) > MaxPayloadSize {
		return nil, errors.E(op, errors.Invalid, errors.Str("payload too large"))
	}

	buf := make([]byte, commandHeaderSize, commandHeaderSize+len(cmd)+len(key)+len(val))
	buf[0] = uint8(len(cmd))
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(val)))

	buf = append(buf, cmd...)
	buf = append(buf, key...)
	buf = append(buf, val...)

	return buf, nil
}

// DecodeCommand reads and decodes one command from r.
//
// It first reads the length-prefixed header fields, then reads the
// command name, key, and value payloads in sequence.
//
// DecodeCommand blocks until the full command has been read or an
// error occurs. io.EOF is returned unchanged when r ends cleanly between
// commands.
func DecodeCommand(r io.Reader) (*Command, error) {
	const op = "protocol.DecodeCommand"

	var header [commandHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.E(op, errors.IO, err)
	}

	cmdLen := int(header[0])
	keyLen := binary.BigEndian.Uint32(header[1:5])
	valLen := binary.BigEndian.Uint32(header[5:9])
	if keyLen > MaxPayloadSize || valLen > MaxPayloadSize {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("payload of %d+%d bytes exceeds limit", keyLen, valLen))
	}

	// Read payload
	payload := make([]byte, cmdLen+int(keyLen)+int(valLen))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}

	keyEnd := cmdLen + int(keyLen)
	return &Command{
		Cmd: string(payload[:cmdLen]),
		Key: payload[cmdLen:keyEnd],
		Val: payload[keyEnd:],
	}, nil
}
