package protocol

import (
	"encoding/binary"
	"io"

	"github.com/omriShneor/rustdex/errors"
)

// Status classifies a response.
type Status uint8

const (
	StatusOK  Status = iota // Body carries the result, possibly empty
	StatusNil               // Key not found; body is empty
	StatusErr               // Body carries an error message
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNil:
		return "NIL"
	case StatusErr:
		return "ERR"
	}
	return "UNKNOWN"
}

// status (1) + body_len (4)
const responseHeaderSize = 5

// Response is a decoded server reply.
type Response struct {
	Status Status
	Body   []byte
}

// OK returns a successful response carrying body.
func OK(body []byte) *Response {
	return &Response{Status: StatusOK, Body: body}
}

// Nil returns the not-found response.
func Nil() *Response {
	return &Response{Status: StatusNil}
}

// Err returns an error response.
func Err(err error) *Response {
	return &Response{Status: StatusErr, Body: []byte(err.Error())}
}

// EncodeResponse serializes a response as
//
//	<status:uint8><body_len:uint32><body>
//
// with the length in big-endian byte order.
func EncodeResponse(resp *Response) []byte {
	buf := make([]byte, responseHeaderSize, responseHeaderSize+len(resp.Body))
	buf[0] = uint8(resp.Status)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(resp.Body)))
	return append(buf, resp.Body...)
}

// DecodeResponse reads one response from r.
func DecodeResponse(r io.Reader) (*Response, error) {
	const op = "protocol.DecodeResponse"

	var header [responseHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}

	status := Status(header[0])
	if status > StatusErr {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("unknown status %d", header[0]))
	}
	n := binary.BigEndian.Uint32(header[1:5])
	// A LIST reply holds every key, so it may exceed a single payload.
	if n > 2*MaxPayloadSize {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("response of %d bytes exceeds limit", n))
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return &Response{Status: status, Body: body}, nil
}

// EncodeKeys packs keys into a LIST response body as a sequence of
// <len:uint32><key> entries.
func EncodeKeys(keys [][]byte) []byte {
	n := 0
	for _, k := range keys {
		n += 4 + len(k)
	}
	buf := make([]byte, 0, n)
	for _, k := range keys {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(k)))
		buf = append(buf, k...)
	}
	return buf
}

// DecodeKeys unpacks a body produced by EncodeKeys.
func DecodeKeys(body []byte) ([][]byte, error) {
	var keys [][]byte
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, errors.E("protocol.DecodeKeys", errors.Invalid, errors.Str("truncated key length"))
		}
		n := binary.BigEndian.Uint32(body[:4])
		body = body[4:]
		if uint64(n) > uint64(len(body)) {
			return nil, errors.E("protocol.DecodeKeys", errors.Invalid, errors.Errorf("key of %d bytes, %d remaining", n, len(body)))
		}
		keys = append(keys, body[:n])
		body = body[n:]
	}
	return keys, nil
}
