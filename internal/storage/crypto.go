package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	ivLength  = 12
	tagLength = 16
)

var (
	ErrInvalidKey     = errors.New("STORAGE_ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
	ErrCorruptPayload = errors.New("encrypted payload is too short")
)

// Cipher шифрует AES-256-GCM, конверт: iv(12) | tag(16) | ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

func ParseHexKey(hexKey string) ([]byte, error) {
	if len(hexKey) != 64 {
		return nil, ErrInvalidKey
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func NewCipher(hexKey string) (*Cipher, error) {
	key, err := ParseHexKey(hexKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	// Seal дописывает тег в конец, переставляем его сразу за iv.
	sealed := c.aead.Seal(nil, iv, plain, nil)
	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	out := make([]byte, 0, ivLength+tagLength+len(ciphertext))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

func (c *Cipher) Decrypt(payload []byte) ([]byte, error) {
	if len(payload) < ivLength+tagLength {
		return nil, ErrCorruptPayload
	}
	iv := payload[:ivLength]
	tag := payload[ivLength : ivLength+tagLength]
	ciphertext := payload[ivLength+tagLength:]

	sealed := make([]byte, 0, len(ciphertext)+tagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plain, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plain, nil
}

type encryptedStorage struct {
	backend Adapter
	cipher  *Cipher
}

// NewEncrypted прозрачно шифрует всё, что пишется в backend.
func NewEncrypted(backend Adapter, c *Cipher) Adapter {
	return &encryptedStorage{backend: backend, cipher: c}
}

func (s *encryptedStorage) Save(ctx context.Context, key string, data []byte) error {
	payload, err := s.cipher.Encrypt(data)
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, key, payload)
}

func (s *encryptedStorage) Read(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.cipher.Decrypt(payload)
}

func (s *encryptedStorage) Remove(ctx context.Context, key string) error {
	return s.backend.Remove(ctx, key)
}
