package record

import (
	"encoding/binary"

	"github.com/omriShneor/rustdex/errors"
)

// HintRecord locates one record of a sealed segment without its value.
// Tombstones are kept so a hint-driven recovery removes deleted keys exactly
// as a full scan would.
type HintRecord struct {
	Timestamp uint64
	KeySize   uint32
	ValueSize uint32 // same sentinel as DiskRecord for tombstones
	Offset    uint64 // start of the record in the segment
	Key       []byte
}

// Timestamp (8) + KeySize (4) + ValueSize (4) + Offset (8)
const HintRecordHeaderSizeBytes = 24

// Magic (4) + SegmentID (4) + DataSize (8)
const HintFileHeaderSizeBytes = 16

// HintFileMagic identifies a hint file ("BKH1").
const HintFileMagic uint32 = 0x31484b42

// IsTombstone reports whether the hinted record is a tombstone.
func (h *HintRecord) IsTombstone() bool {
	return h.ValueSize == TombstoneValueSize
}

// RecordSize is the size of the data record the hint points at.
func (h *HintRecord) RecordSize() int64 {
	return Header{KeySize: h.KeySize, ValueSize: h.ValueSize}.RecordSize()
}

// EncodeHintFile serializes the hints of one segment. dataSize is the size
// of the segment's data file; a hint file is only trusted when it still
// matches. The file ends with a CRC32 of everything before it.
func EncodeHintFile(segmentID uint32, dataSize int64, hints []HintRecord) []byte {
	n := HintFileHeaderSizeBytes + 4
	for i := range hints {
		n += HintRecordHeaderSizeBytes + len(hints[i].Key)
	}

	buf := make([]byte, n)
	binary.LittleEndian.PutUint32(buf[0:4], HintFileMagic)
	binary.LittleEndian.PutUint32(buf[4:8], segmentID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(dataSize))

	off := HintFileHeaderSizeBytes
	for i := range hints {
		h := &hints[i]
		binary.LittleEndian.PutUint64(buf[off:], h.Timestamp)
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(len(h.Key)))
		binary.LittleEndian.PutUint32(buf[off+12:], h.ValueSize)
		binary.LittleEndian.PutUint64(buf[off+16:], h.Offset)
		off += HintRecordHeaderSizeBytes
		off += copy(buf[off:], h.Key)
	}

	binary.LittleEndian.PutUint32(buf[off:], CalculateCRC(buf[:off]))
	return buf
}

// DecodeHintFile parses a hint file and checks that it belongs to segment
// segmentID with a data file of dataSize bytes. Any mismatch is reported as
// errors.Corrupt so the caller can fall back to scanning the segment.
func DecodeHintFile(data []byte, segmentID uint32, dataSize int64) ([]HintRecord, error) {
	const op = "record.DecodeHintFile"

	if len(data) < HintFileHeaderSizeBytes+4 {
		return nil, errors.E(op, errors.Corrupt, errors.Str("short hint file"))
	}
	body := data[:len(data)-4]
	if !ValidateCRC(body, binary.LittleEndian.Uint32(data[len(data)-4:])) {
		return nil, errors.E(op, errors.Corrupt, errors.Str("checksum mismatch"))
	}
	if binary.LittleEndian.Uint32(body[0:4]) != HintFileMagic {
		return nil, errors.E(op, errors.Corrupt, errors.Str("bad magic"))
	}
	if id := binary.LittleEndian.Uint32(body[4:8]); id != segmentID {
		return nil, errors.E(op, errors.Corrupt, errors.Errorf("hint for segment %d, want %d", id, segmentID))
	}
	if size := int64(binary.LittleEndian.Uint64(body[8:16])); size != dataSize {
		return nil, errors.E(op, errors.Corrupt, errors.Errorf("hint covers %d bytes, segment has %d", size, dataSize))
	}

	var hints []HintRecord
	off := HintFileHeaderSizeBytes
	for off < len(body) {
		if len(body)-off < HintRecordHeaderSizeBytes {
			return nil, errors.E(op, errors.Corrupt, errors.Str("short hint entry"))
		}
		h := HintRecord{
			Timestamp: binary.LittleEndian.Uint64(body[off:]),
			KeySize:   binary.LittleEndian.Uint32(body[off+8:]),
			ValueSize: binary.LittleEndian.Uint32(body[off+12:]),
			Offset:    binary.LittleEndian.Uint64(body[off+16:]),
		}
		off += HintRecordHeaderSizeBytes
		if len(body)-off < int(h.KeySize) {
			return nil, errors.E(op, errors.Corrupt, errors.Str("short hint key"))
		}
		h.Key = body[off : off+int(h.KeySize)]
		off += int(h.KeySize)

		if int64(h.Offset)+h.RecordSize() > dataSize {
			return nil, errors.E(op, errors.Corrupt, errors.Str("hint points past end of segment"))
		}
		hints = append(hints, h)
	}

	return hints, nil
}
