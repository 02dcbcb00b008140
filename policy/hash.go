package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalHash serialises v with encoding/json (map keys sort since Go
// 1.12) and returns the hex SHA-256 digest, the same json+sha256 pairing
// the teacher uses for computeDedupKey in runtime/fanout.go.
func canonicalHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
