// Package crypto provides the keyed hash used for passcode state and the
// symmetric encryption applied to stored credential fields.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Hash computes a deterministic keyed hash of data under salt and returns
// it base64-encoded. The same (data, salt) pair always yields the same
// string, so it is safe to compare stored hashes directly.
func Hash(data, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// newAEAD derives an AEAD cipher from an arbitrary key string.
func newAEAD(key string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}

// Encrypt seals plain under key and returns base64(nonce || ciphertext).
func Encrypt(plain, key string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ct := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. It fails on malformed input or a key mismatch.
func Decrypt(encoded, key string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(ct) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, data := ct[:aead.NonceSize()], ct[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}
