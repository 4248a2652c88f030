package util

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// SHA256Chunks hashes the chunks with a length prefix each, so ("ab","c") and
// ("a","bc") differ.
func SHA256Chunks(chunks ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, c := range chunks {
		l := uint64(len(c))
		for i := 0; i < 8; i++ {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(c)
	}
	return hex.EncodeToString(h.Sum(nil))
}
