package record

import (
	"encoding/binary"
	"math"

	"github.com/omriShneor/rustdex/errors"
)

// DiskRecord is a single entry of a segment file.
//
// The encoded layout is little-endian and fixed-width up to the key:
//
//	<crc:uint32><timestamp:uint64><key_size:uint32><value_size:uint32><key><value>
//
// The checksum covers every byte after the checksum field. A tombstone is a
// record whose ValueSize is TombstoneValueSize; it carries no value bytes.
type DiskRecord struct {
	CRC       uint32 // Checksum of everything after this field
	Timestamp uint64 // Unix timestamp in nanoseconds
	KeySize   uint32 // Length of Key in bytes
	ValueSize uint32 // Length of Value in bytes, or TombstoneValueSize
	Key       []byte
	Value     []byte
}

// CRC (4) + Timestamp (8) + KeySize (4) + ValueSize (4)
const DiskRecordHeaderSizeBytes = 20

// TombstoneValueSize is the ValueSize sentinel marking a deleted key.
const TombstoneValueSize = math.MaxUint32

// Header is the fixed-width prefix of an encoded record.
type Header struct {
	CRC       uint32
	Timestamp uint64
	KeySize   uint32
	ValueSize uint32
}

// IsTombstone reports whether the header belongs to a tombstone record.
func (h Header) IsTombstone() bool {
	return h.ValueSize == TombstoneValueSize
}

// ValueLen is the number of value bytes that follow the key.
func (h Header) ValueLen() uint32 {
	if h.IsTombstone() {
		return 0
	}
	return h.ValueSize
}

// RecordSize is the total encoded size of the record the header describes.
func (h Header) RecordSize() int64 {
	return DiskRecordHeaderSizeBytes + int64(h.KeySize) + int64(h.ValueLen())
}

// CreateRecord builds a value-bearing record. The checksum is filled in by
// EncodeRecordToBytes.
func CreateRecord(key, value []byte, timestamp uint64) DiskRecord {
	return DiskRecord{
		Timestamp: timestamp,
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Key:       key,
		Value:     value,
	}
}

// CreateTombstoneRecord builds a record marking key as deleted at timestamp.
func CreateTombstoneRecord(key []byte, timestamp uint64) DiskRecord {
	return DiskRecord{
		Timestamp: timestamp,
		KeySize:   uint32(len(key)),
		ValueSize: TombstoneValueSize,
		Key:       key,
	}
}

// IsTombstone reports whether r marks a deletion.
func (r *DiskRecord) IsTombstone() bool {
	return r.ValueSize == TombstoneValueSize
}

// Size is the encoded size of r in bytes.
func (r *DiskRecord) Size() int64 {
	return r.Header().RecordSize()
}

// Header returns the fixed-width fields of r.
func (r *DiskRecord) Header() Header {
	return Header{CRC: r.CRC, Timestamp: r.Timestamp, KeySize: r.KeySize, ValueSize: r.ValueSize}
}

// Encode returns the encoded form of a value-bearing record.
func Encode(key, value []byte, timestamp uint64) []byte {
	r := CreateRecord(key, value, timestamp)
	return EncodeRecordToBytes(&r)
}

// EncodeTombstone returns the encoded form of a tombstone for key.
func EncodeTombstone(key []byte, timestamp uint64) []byte {
	r := CreateTombstoneRecord(key, timestamp)
	return EncodeRecordToBytes(&r)
}

// EncodeRecordToBytes serializes r, computing its checksum. r.CRC is
// updated to the value written.
func EncodeRecordToBytes(r *DiskRecord) []byte {
	buf := make([]byte, r.Size())

	binary.LittleEndian.PutUint64(buf[4:12], r.Timestamp)
	binary.LittleEndian.PutUint32(buf[12:16], r.KeySize)
	binary.LittleEndian.PutUint32(buf[16:20], r.ValueSize)
	n := copy(buf[DiskRecordHeaderSizeBytes:], r.Key)
	if !r.IsTombstone() {
		copy(buf[DiskRecordHeaderSizeBytes+n:], r.Value)
	}

	r.CRC = CalculateCRC(buf[4:])
	binary.LittleEndian.PutUint32(buf[0:4], r.CRC)

	return buf
}

// ParseHeader decodes the fixed-width prefix of an encoded record.
func ParseHeader(data []byte) (Header, error) {
	const op = "record.ParseHeader"
	if len(data) < DiskRecordHeaderSizeBytes {
		return Header{}, truncated(op, DiskRecordHeaderSizeBytes, int64(len(data)))
	}
	return Header{
		CRC:       binary.LittleEndian.Uint32(data[0:4]),
		Timestamp: binary.LittleEndian.Uint64(data[4:12]),
		KeySize:   binary.LittleEndian.Uint32(data[12:16]),
		ValueSize: binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// DecodeRecordFromBytes decodes the record at the start of data and
// verifies its checksum. It fails with errors.Truncated when data is
// shorter than the record's declared lengths and with errors.Corrupt when
// the checksum does not match. Bytes past the end of the record are ignored.
//
// The returned Key and Value alias data.
func DecodeRecordFromBytes(data []byte) (*DiskRecord, error) {
	const op = "record.Decode"

	h, err := ParseHeader(data)
	if err != nil {
		return nil, errors.E(op, err)
	}

	size := h.RecordSize()
	if int64(len(data)) < size {
		return nil, truncated(op, size, int64(len(data)))
	}

	if !ValidateCRC(data[4:size], h.CRC) {
		return nil, errors.E(op, errors.Corrupt, errors.Str("checksum mismatch"))
	}

	keyEnd := DiskRecordHeaderSizeBytes + int64(h.KeySize)
	r := &DiskRecord{
		CRC:       h.CRC,
		Timestamp: h.Timestamp,
		KeySize:   h.KeySize,
		ValueSize: h.ValueSize,
		Key:       data[DiskRecordHeaderSizeBytes:keyEnd],
	}
	if !h.IsTombstone() {
		r.Value = data[keyEnd:size]
	}
	return r, nil
}

// truncated reports a record that needs more bytes than are available.
// A truncated record is also a corrupt one as far as callers that cannot
// tolerate a torn tail are concerned.
func truncated(op string, need, have int64) error {
	return errors.E(op, errors.Truncated, &errors.Error{
		Kind: errors.Corrupt,
		Err:  errors.Errorf("need %d bytes, have %d", need, have),
	})
}
