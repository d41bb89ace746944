package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// PayloadHash returns the content fingerprint stored as sync_hash on a
// mapping. Two payloads with the same hash are treated as already synced.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
