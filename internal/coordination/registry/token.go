package registry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// tokenBytes is the entropy of an issued agent token.
const tokenBytes = 32

// tokenDomainKey separates token digests from every other blake3 use.
var tokenDomainKey = [32]byte{
	'i', 'm', 'p', 'e', 'l', '.', 'a', 'g', 'e', 'n', 't', '.',
	't', 'o', 'k', 'e', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// IssueToken returns a new random agent token and its digest. Only the
// digest is ever recorded; the token is handed to the agent once.
func IssueToken() (token, digest string, err error) {
	var raw [tokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", fmt.Errorf("issue token: %w", err)
	}
	token = "impel_" + hex.EncodeToString(raw[:])
	return token, Digest(token), nil
}

// Digest returns the hex blake3 keyed digest of token.
func Digest(token string) string {
	hasher, err := blake3.NewKeyed(tokenDomainKey[:])
	if err != nil {
		panic("registry: blake3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}
