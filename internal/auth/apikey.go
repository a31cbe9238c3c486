package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Argon2id parameters for API key hashing. Tuned for interactive
// request-path verification, not password storage at rest.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
	prefixLen     = 4 // 32-bit prefix
)

// apiKeyRecord holds the Argon2id-hashed form of a configured API key.
type apiKeyRecord struct {
	prefix string
	salt   []byte
	hash   []byte
	user   *models.User
}

// keyPrefix derives the 32-bit clear-text lookup prefix for a key: the
// first 4 bytes of SHA-256(key), hex-encoded. The prefix is not part of
// the key material itself, so indexing by it leaks nothing beyond what
// an attacker could already compute by guessing the key.
func keyPrefix(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:prefixLen])
}

// hashAPIKey computes an Argon2id hash of key using a freshly generated
// salt.
func hashAPIKey(key string) (salt, hash []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	hash = argon2.IDKey([]byte(key), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return salt, hash, nil
}

// verifyAPIKey recomputes the Argon2id hash for key with the stored salt
// and compares it to the stored hash in constant time.
func verifyAPIKey(key string, salt, wantHash []byte) bool {
	gotHash := argon2.IDKey([]byte(key), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return subtle.ConstantTimeCompare(gotHash, wantHash) == 1
}

// encodeAPIKeyHash renders a PHC-like string for storage/debugging.
func encodeAPIKeyHash(salt, hash []byte) string {
	return fmt.Sprintf("argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
