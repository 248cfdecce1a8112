// Package keycustody stores wallet signing keys with hybrid encryption:
// a per-wallet AES-256-GCM key encrypted under a long-lived operator RSA
// public key. The GCM nonce is derived from (userID, salt) with scrypt,
// so no nonce is ever persisted alongside the ciphertext.
package keycustody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	symmetricKeySize = 32
	nonceSize        = 16
	saltSize         = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// ErrDecryptFailed is a hard fault: fund access for the wallet is halted
// until an operator intervenes. It deliberately carries no detail about
// which step failed.
var ErrDecryptFailed = errors.New("failed to decrypt wallet key")

// Service performs hybrid encryption of wallet signing keys. The RSA
// private key is loaded once at process start and never transmitted.
type Service struct {
	publicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
}

// NewService builds a custody service. Either key may be nil when only
// one direction is needed (the API server encrypts, workers decrypt).
func NewService(publicKey *rsa.PublicKey, privateKey *rsa.PrivateKey) *Service {
	return &Service{publicKey: publicKey, privateKey: privateKey}
}

// Encrypt seals plaintext key material for one user. It returns the
// ciphertext, the RSA-wrapped symmetric key and the fresh salt, all
// ready for persistence on the wallet row.
func (s *Service) Encrypt(plaintext, userID string) (encryptedKey, encryptedSymmetricKey, salt string, err error) {
	if s.publicKey == nil {
		return "", "", "", errors.New("custody public key not loaded")
	}

	symKey := make([]byte, symmetricKeySize)
	if _, err := rand.Read(symKey); err != nil {
		return "", "", "", fmt.Errorf("failed to generate symmetric key: %w", err)
	}
	saltBytes := make([]byte, saltSize)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt = hex.EncodeToString(saltBytes)

	nonce, err := deriveNonce(userID, salt)
	if err != nil {
		return "", "", "", err
	}
	gcm, err := newGCM(symKey)
	if err != nil {
		return "", "", "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, s.publicKey, []byte(hex.EncodeToString(symKey)), nil)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to wrap symmetric key: %w", err)
	}

	return hex.EncodeToString(sealed), base64.StdEncoding.EncodeToString(wrapped), salt, nil
}

// Decrypt recovers a wallet signing key from its stored material. Any
// failure collapses into ErrDecryptFailed.
func (s *Service) Decrypt(encryptedKey, encryptedSymmetricKey, userID, salt string) (string, error) {
	if s.privateKey == nil {
		return "", errors.New("custody private key not loaded")
	}

	wrapped, err := base64.StdEncoding.DecodeString(encryptedSymmetricKey)
	if err != nil {
		return "", ErrDecryptFailed
	}
	symKeyHex, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, s.privateKey, wrapped, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	symKey, err := hex.DecodeString(string(symKeyHex))
	if err != nil || len(symKey) != symmetricKeySize {
		return "", ErrDecryptFailed
	}

	sealed, err := hex.DecodeString(encryptedKey)
	if err != nil {
		return "", ErrDecryptFailed
	}
	nonce, err := deriveNonce(userID, salt)
	if err != nil {
		return "", ErrDecryptFailed
	}
	gcm, err := newGCM(symKey)
	if err != nil {
		return "", ErrDecryptFailed
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

func deriveNonce(userID, salt string) ([]byte, error) {
	nonce, err := scrypt.Key([]byte(userID), []byte(salt), scryptN, scryptR, scryptP, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive nonce: %w", err)
	}
	return nonce, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
