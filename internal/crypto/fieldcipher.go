// Package crypto provides field-level encryption for personally identifiable
// data stored by the visa tracker. Values are encrypted with AES-256-CBC under
// a key derived from the configured secret via scrypt, and serialized as a
// self-describing hex envelope of the form "iv:ciphertext".
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// kdfSalt is the fixed application-wide salt for key derivation. The derived
// key's strength comes from the configured secret, not the salt; rotating the
// salt is a non-goal.
const kdfSalt = "salt"

// FieldCipher encrypts and decrypts individual PII string fields.
type FieldCipher struct {
	key []byte
}

// NewFieldCipher derives the AES-256 key from the configured secret. An empty
// secret is a configuration error and must abort startup rather than letting
// records be written unencrypted.
func NewFieldCipher(secret string) (*FieldCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption key not configured")
	}

	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	return &FieldCipher{key: key}, nil
}

// Encrypt encrypts a field value and returns the hex "iv:ciphertext" envelope.
// Empty values pass through unchanged.
func (f *FieldCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}

	block, err := aes.NewCipher(f.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A value that is not a well-formed envelope, or
// that fails to decrypt, is returned unchanged so records holding legacy
// plaintext still read. Callers that must distinguish the two cases should
// use DecryptChecked.
func (f *FieldCipher) Decrypt(envelope string) string {
	plaintext, _ := f.DecryptChecked(envelope)
	return plaintext
}

// DecryptChecked decrypts an envelope and reports whether decryption actually
// happened. On failure the original value is returned with ok=false.
func (f *FieldCipher) DecryptChecked(envelope string) (string, bool) {
	if envelope == "" {
		return envelope, false
	}

	ivHex, ctHex, found := strings.Cut(envelope, ":")
	if !found {
		return envelope, false
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return envelope, false
	}

	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return envelope, false
	}

	block, err := aes.NewCipher(f.key)
	if err != nil {
		return envelope, false
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return envelope, false
	}

	return string(plaintext), true
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
