package record

import (
	"hash/crc32"
	"testing"
)

func TestCRC(t *testing.T) {
	bodies := [][]byte{
		nil,
		[]byte("language=go"),
		EncodeTombstone([]byte("gone"), 7)[4:],
	}

	for _, body := range bodies {
		want := crc32.ChecksumIEEE(body)
		if got := CalculateCRC(body); got != want {
			t.Errorf("CalculateCRC(%q) = %v, want %v", body, got, want)
		}
		if !ValidateCRC(body, want) {
			t.Errorf("ValidateCRC(%q) rejected its own checksum", body)
		}
		if ValidateCRC(body, want+1) {
			t.Errorf("ValidateCRC(%q) accepted a wrong checksum", body)
		}
	}
}

func TestCRCDetectsBitFlips(t *testing.T) {
	body := []byte("key=value")
	sum := CalculateCRC(body)

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), body...)
			flipped[i] ^= 1 << bit
			if ValidateCRC(flipped, sum) {
				t.Fatalf("flip of bit %d in byte %d went undetected", bit, i)
			}
		}
	}
}
