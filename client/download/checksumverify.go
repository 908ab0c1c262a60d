package download

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// checksumVerifier hashes the bytes written through it and compares
// the digest with the expected hex string once the copy finishes.
type checksumVerifier struct {
	hash     hash.Hash
	expected string
}

func (v *checksumVerifier) Write(p []byte) (int, error) {
	return v.hash.Write(p)
}

// Verify is a no-op on a nil verifier. Hex case is ignored.
func (v *checksumVerifier) Verify() error {
	if v == nil {
		return nil
	}

	actual := hex.EncodeToString(v.hash.Sum(nil))
	if !strings.EqualFold(actual, v.expected) {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %s, got %s", strings.ToLower(v.expected), actual),
		}
	}

	return nil
}
