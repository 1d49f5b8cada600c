// Package hashutil provides content hashing for ingestion change detection
// and cache keying.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded sha256 of input. Used both as the
// content_hash recorded per source document and as the key for
// embedding/query caches.
func Sum(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}
