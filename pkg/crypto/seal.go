// Package crypto provides the at-rest sealing used by the file-backed
// credential store, plus small hashing helpers shared by the audit layer.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for deriving the sealing key from a passphrase.
//
// @ref https://cheatsheetseries.owasp.org/cheatsheets/Password_Storage_Cheat_Sheet.html
const (
	kdfMemory      = 64 * 1024 // KiB
	kdfIterations  = 3
	kdfParallelism = 2
	saltLength     = 16
)

var ErrSealedTooShort = errors.New("sealed payload too short")

// Seal encrypts plaintext under a key derived from the passphrase. Output
// layout: salt || nonce || ciphertext.
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltLength+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal. A wrong passphrase or tampered
// payload fails authentication.
func Open(passphrase string, sealed []byte) ([]byte, error) {
	if len(sealed) < saltLength+chacha20poly1305.NonceSizeX {
		return nil, ErrSealedTooShort
	}

	salt := sealed[:saltLength]
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := sealed[saltLength : saltLength+aead.NonceSize()]
	ciphertext := sealed[saltLength+aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, kdfIterations, kdfMemory, kdfParallelism, chacha20poly1305.KeySize)
	return chacha20poly1305.NewX(key)
}
