package core

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/omriShneor/rustdex/errors"
	"github.com/omriShneor/rustdex/internal/record"
	"github.com/omriShneor/rustdex/internal/utils"
)

// manifest records which segment is active and which segments have been
// superseded by a compaction. It disambiguates state after a crash during
// rotation or compaction:
//
//   - Active is written before the segment it names is created, so a data
//     file with a higher id cannot be legitimate.
//   - Floor is written once a merge output is durable; every segment below
//     it is obsolete and is removed, not replayed.
type manifest struct {
	Active uint32
	Floor  uint32
}

const (
	manifestMagic uint32 = 0x314d4b42 // "BKM1"
	manifestSize         = 16         // magic + active + floor + crc
)

func (m manifest) encode() []byte {
	buf := make([]byte, manifestSize)
	binary.LittleEndian.PutUint32(buf[0:4], manifestMagic)
	binary.LittleEndian.PutUint32(buf[4:8], m.Active)
	binary.LittleEndian.PutUint32(buf[8:12], m.Floor)
	binary.LittleEndian.PutUint32(buf[12:16], record.CalculateCRC(buf[:12]))
	return buf
}

func decodeManifest(data []byte) (manifest, error) {
	const op = "core.decodeManifest"

	if len(data) != manifestSize {
		return manifest{}, errors.E(op, errors.Corrupt, errors.Errorf("manifest is %d bytes, want %d", len(data), manifestSize))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != manifestMagic {
		return manifest{}, errors.E(op, errors.Corrupt, errors.Str("bad manifest magic"))
	}
	if !record.ValidateCRC(data[:12], binary.LittleEndian.Uint32(data[12:16])) {
		return manifest{}, errors.E(op, errors.Corrupt, errors.Str("manifest checksum mismatch"))
	}
	return manifest{
		Active: binary.LittleEndian.Uint32(data[4:8]),
		Floor:  binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}

// readManifest loads the manifest in dir. ok is false if there is none.
func readManifest(dir string) (m manifest, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return manifest{}, false, nil
		}
		return manifest{}, false, errors.E("core.readManifest", errors.IO, err)
	}
	m, err = decodeManifest(data)
	if err != nil {
		return manifest{}, false, err
	}
	return m, true, nil
}

func writeManifest(dir string, m manifest) error {
	if err := utils.WriteFileAtomic(filepath.Join(dir, ManifestFileName), m.encode()); err != nil {
		return errors.E("core.writeManifest", errors.IO, err)
	}
	return nil
}
