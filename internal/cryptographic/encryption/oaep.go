package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"bone_chat/internal/cryptographic/keys"
)

// MaxPlaintextBytes is the RSA-OAEP payload ceiling for a 2048-bit key with
// SHA-256: k - 2*hLen - 2 = 190 bytes. Every chat message is encrypted
// directly with the peer's RSA key, so longer messages cannot be sent.
const MaxPlaintextBytes = keys.ModulusBits/8 - 2*sha256.Size - 2

var (
	// ErrEncryptionFailed is local and recoverable: the message was not sent
	// and the user may shorten it and retry.
	ErrEncryptionFailed = errors.New("encryption: encrypt failed")

	// ErrDecryptionFailed means the ciphertext is malformed or was not
	// produced for our key. Callers drop the message and keep the session.
	ErrDecryptionFailed = errors.New("encryption: decrypt failed")
)

type (
	// Cipher encrypts chat messages for a peer public key and decrypts
	// inbound ciphertext with the session private key.
	Cipher struct {
		rand io.Reader
	}
)

func NewCipher() *Cipher {
	return &Cipher{rand: rand.Reader}
}

func NewCipherWithRand(r io.Reader) *Cipher {
	return &Cipher{rand: r}
}

// Encrypt returns base64 of the RSA-OAEP ciphertext of plaintext under the
// peer's public key.
func (c *Cipher) Encrypt(plaintext string, peerPub *rsa.PublicKey) (string, error) {
	if len(plaintext) > MaxPlaintextBytes {
		return "", fmt.Errorf("%w: message is %d bytes, limit is %d", ErrEncryptionFailed, len(plaintext), MaxPlaintextBytes)
	}

	ct, err := rsa.EncryptOAEP(sha256.New(), c.rand, peerPub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt is the inverse of Encrypt for ciphertext addressed to priv.
func (c *Cipher) Decrypt(data string, priv *rsa.PrivateKey) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plain, err := rsa.DecryptOAEP(sha256.New(), c.rand, priv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plain), nil
}
