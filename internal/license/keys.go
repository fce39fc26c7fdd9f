// Package license implements signed entitlement grants and offline license
// verification for Tailwag.
package license

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
)

// KeyPair holds Ed25519 signing keys for the license authority.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair generates a new Ed25519 key pair for signing grants.
func GenerateKeyPair() (*KeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return &KeyPair{
		PublicKey:  public,
		PrivateKey: private,
	}, nil
}

// PublicKeyToBase64 encodes the public key to base64 for distribution.
func (kp *KeyPair) PublicKeyToBase64() string {
	return base64.StdEncoding.EncodeToString(kp.PublicKey)
}

// PrivateKeyToBase64 encodes the private key to base64 for storage.
func (kp *KeyPair) PrivateKeyToBase64() string {
	return base64.StdEncoding.EncodeToString(kp.PrivateKey)
}

// KeyID returns the identifier of the pair's public key.
func (kp *KeyPair) KeyID() string {
	return KeyID(kp.PublicKey)
}

// PublicKeyToBase64 encodes a public key to base64 for distribution.
func PublicKeyToBase64(publicKey ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(publicKey)
}

// PublicKeyFromBase64 decodes a base64-encoded public key.
func PublicKeyFromBase64(encoded string) (ed25519.PublicKey, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return ed25519.PublicKey(data), nil
}

// PrivateKeyFromBase64 decodes a base64-encoded private key.
func PrivateKeyFromBase64(encoded string) (ed25519.PrivateKey, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	return ed25519.PrivateKey(data), nil
}

// KeyID derives a stable identifier for a public key: the first 16 hex
// characters of its SHA-256 digest. Grants embed this so a verifier holding
// several keys can pick the right one.
func KeyID(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:])[:16]
}

// KeySet holds the verification public keys known to a client, indexed by
// key ID. A grant signed by a key not in the set is untrusted.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewKeySet creates a key set from the given public keys.
func NewKeySet(publicKeys ...ed25519.PublicKey) (*KeySet, error) {
	ks := &KeySet{keys: make(map[string]ed25519.PublicKey)}
	for _, pk := range publicKeys {
		if err := ks.Add(pk); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

// NewKeySetFromBase64 creates a key set from base64-encoded public keys,
// as distributed by the hub's keys endpoint.
func NewKeySetFromBase64(encodedKeys ...string) (*KeySet, error) {
	ks := &KeySet{keys: make(map[string]ed25519.PublicKey)}
	for _, encoded := range encodedKeys {
		pk, err := PublicKeyFromBase64(encoded)
		if err != nil {
			return nil, err
		}
		if err := ks.Add(pk); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

// Add registers a public key in the set. Adding a key already present is a
// no-op, which makes key refreshes idempotent.
func (ks *KeySet) Add(publicKey ed25519.PublicKey) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[KeyID(publicKey)] = publicKey
	return nil
}

// Lookup returns the public key with the given ID, or false if unknown.
func (ks *KeySet) Lookup(keyID string) (ed25519.PublicKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	pk, ok := ks.keys[keyID]
	return pk, ok
}

// Len returns the number of keys in the set.
func (ks *KeySet) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}
