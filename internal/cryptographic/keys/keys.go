package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ModulusBits is the RSA modulus size every client must use; the OAEP hash
// is SHA-256 throughout.
const ModulusBits = 2048

var (
	// ErrCryptoUnavailable means the platform could not supply a secure
	// keypair. Starting a chat session without one is not allowed.
	ErrCryptoUnavailable = errors.New("keys: secure keypair generation unavailable")

	// ErrMalformedKey means a peer key did not decode to a valid RSA public
	// key of the expected encoding.
	ErrMalformedKey = errors.New("keys: malformed public key")
)

type (
	// KeyPair is generated fresh per chat session and never persisted.
	KeyPair struct {
		Private *rsa.PrivateKey
		Public  *rsa.PublicKey
	}

	// Provider generates session keypairs from an injectable entropy source,
	// so tests can substitute a deterministic reader.
	Provider struct {
		rand io.Reader
		bits int
	}
)

func NewProvider() *Provider {
	return &Provider{rand: rand.Reader, bits: ModulusBits}
}

func NewProviderWithRand(r io.Reader) *Provider {
	return &Provider{rand: r, bits: ModulusBits}
}

// GenerateKeyPair produces a fresh RSA keypair for one session.
func (p *Provider) GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(p.rand, p.bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}

	return &KeyPair{
		Private: priv,
		Public:  &priv.PublicKey,
	}, nil
}

// ExportPublicKey serializes the key as base64 of its PKIX (SPKI) DER
// encoding, the wire form exchanged through the relay.
func ExportPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKey is the inverse of ExportPublicKey.
func ImportPublicKey(s string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrMalformedKey)
	}
	return pub, nil
}
