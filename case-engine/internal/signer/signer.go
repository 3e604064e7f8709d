package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Signer signs audit hashes. The returned id names the key that produced the signature.
type Signer interface {
	Sign(hash []byte) (sig []byte, signerID string, err error)
	PublicKey() ed25519.PublicKey
}

// LocalSigner keeps an Ed25519 key in process memory.
type LocalSigner struct {
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	signerID string
}

// NewLocalSigner generates a fresh key. Signatures from it cannot be verified
// after a restart unless the public key is exported.
func NewLocalSigner(signerID string) (*LocalSigner, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &LocalSigner{priv: priv, pub: pub, signerID: signerID}, nil
}

// NewLocalSignerFromB64 accepts either a 32-byte seed or a 64-byte private key.
func NewLocalSignerFromB64(b64Key, signerID string) (*LocalSigner, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("decode signer key: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(keyBytes) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(keyBytes)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(keyBytes)
	default:
		return nil, fmt.Errorf("invalid ed25519 key length: got %d want %d or %d", len(keyBytes), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
	return &LocalSigner{
		priv:     priv,
		pub:      priv.Public().(ed25519.PublicKey),
		signerID: signerID,
	}, nil
}

func (l *LocalSigner) Sign(hash []byte) ([]byte, string, error) {
	if l == nil || l.priv == nil {
		return nil, "", errors.New("local signer: private key not initialized")
	}
	return ed25519.Sign(l.priv, hash), l.signerID, nil
}

func (l *LocalSigner) PublicKey() ed25519.PublicKey {
	return l.pub
}
