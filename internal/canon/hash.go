// Package canon computes the hashes stamped into every artifact.
//
// Objects are hashed over their canonical JSON form: keys sorted, no insignificant
// whitespace, non-ASCII text kept as UTF-8 and no HTML escaping. Two payloads that
// differ only in key order or formatting therefore share a hash.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}

	// Round-trip through a generic value so struct field order does not leak into the hash.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to normalize: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SumObject returns the hex SHA-256 of the canonical JSON encoding of v.
func SumObject(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return SumBytes(b), nil
}

// SumBytes returns the hex SHA-256 of b.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SumFile returns the hex SHA-256 of the file at path, byte for byte.
func SumFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return SumBytes(b), nil
}

// ToMap converts a struct to its generic JSON object form.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}
	return m, nil
}
