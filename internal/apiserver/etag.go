package apiserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// computeETag returns a strong ETag for body, grounded on the teacher's use
// of crypto hashing elsewhere for content fingerprints.
func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`"%s"`, hex.EncodeToString(sum[:])[:32])
}

// marshalForETag serializes v for fingerprinting. On failure it returns a
// fixed sentinel so computeETag still produces a valid (if not perfectly
// stable) tag rather than panicking.
func marshalForETag(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("etag-marshal-error")
	}
	return data
}
