// Package e2e derives per-room chat keys from a shared password and seals
// chat payloads with them. Keys never leave the client.
package e2e

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100000
	KeySize    = 32
	NonceSize  = 12

	// Placeholder is shown instead of a message that fails to open.
	Placeholder = "[Encrypted Message - Wrong Password?]"
)

var ErrAuthFailure = errors.New("e2e: message authentication failed")

// Key is an AES-256 key. The zero value is unusable.
type Key struct {
	b [KeySize]byte
}

// DeriveKey runs PBKDF2-HMAC-SHA256 over password with roomID as salt, so
// one password reused across rooms yields unrelated keys.
func DeriveKey(password, roomID string) Key {
	var k Key
	copy(k.b[:], pbkdf2.Key([]byte(password), []byte(roomID), Iterations, KeySize, sha256.New))
	return k
}

// Wipe zeroes the key material.
func (k *Key) Wipe() {
	clear(k.b[:])
}

func (k *Key) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.b[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under a fresh random nonce.
func Seal(k *Key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := k.aead()
	if err != nil {
		return nil, nil, fmt.Errorf("e2e: %w", err)
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("e2e: nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts. A wrong key, tampered ciphertext or a
// malformed nonce all yield ErrAuthFailure.
func Open(k *Key, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrAuthFailure
	}
	gcm, err := k.aead()
	if err != nil {
		return nil, fmt.Errorf("e2e: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plain, nil
}
