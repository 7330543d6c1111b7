package record

import "hash/crc32"

// CalculateCRC computes the CRC32 checksum (IEEE polynomial) of a record body:
// everything in the encoded record after the checksum field itself.
func CalculateCRC(body []byte) uint32 {
	return crc32.ChecksumIEEE(body)
}

// ValidateCRC returns true if the provided checksum matches the computed CRC32 of body.
func ValidateCRC(body []byte, checksum uint32) bool {
	return CalculateCRC(body) == checksum
}
