// Copyright (c) 2024 djtezos contributors

// Package cryptutil implements the encrypt/decrypt primitive from spec §6:
// symmetric AES in CBC mode with a 32-byte key and 16-byte IV both derived
// from a single process-wide secret. There is no authentication and no key
// derivation function — the secret is pre-shared and sliced directly, so
// this stays on crypto/aes + crypto/cipher rather than reaching for
// golang.org/x/crypto: that dependency adds KDFs, stream ciphers and curve
// implementations, none of which spec §6's construction calls for (see
// DESIGN.md).
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	keyLen = 32
	ivLen  = 16
)

// ErrShortSecret is returned when the configured secret is too small to
// slice a 32-byte key and 16-byte IV from.
type ErrShortSecret struct {
	Len int
}

func (e ErrShortSecret) Error() string {
	return fmt.Sprintf("cryptutil: secret too short: need at least %d bytes, got %d", keyLen, e.Len)
}

// Cipher holds the key/IV pair derived from a process-wide secret, per
// spec §6: key = secret[:32], iv = secret[-16:]. Threaded through as an
// explicit configuration value per spec §9 ("Global mutable state"); the
// primitive never reads ambient environment itself.
type Cipher struct {
	key []byte
	iv  []byte
}

// New derives a Cipher from secret. secret must be at least 32 bytes (the
// same bytes may supply both key and IV material, per spec).
func New(secret []byte) (Cipher, error) {
	if len(secret) < keyLen {
		return Cipher{}, ErrShortSecret{Len: len(secret)}
	}
	key := make([]byte, keyLen)
	copy(key, secret[:keyLen])
	iv := make([]byte, ivLen)
	copy(iv, secret[len(secret)-ivLen:])
	return Cipher{key: key, iv: iv}, nil
}

// Encrypt returns the AES-CBC ciphertext of plaintext, PKCS#7 padded to the
// block size. A nil or empty plaintext encrypts to nil, mirroring the
// null-in/null-out behavior Decrypt requires.
func (c Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt. Null or empty ciphertext decrypts to null, per
// spec §6.
func (c Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("cryptutil: ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cryptutil: empty plaintext after decrypt")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("cryptutil: invalid padding")
	}
	return data[:len(data)-padLen], nil
}
