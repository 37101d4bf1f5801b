package secrets

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// TokenPrefix marks a value produced by Encrypt.
const TokenPrefix = "enc:rsa:v1:"

// ErrUndecipherable means a stored value is neither a usable plaintext target
// nor something this keyring can decrypt into one.
var ErrUndecipherable = errors.New("undecipherable secret")

// Keyring holds the process keypair derived from the operator seed.
type Keyring struct {
	key *rsa.PrivateKey
}

func NewKeyring(seed string, bits int) (*Keyring, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	key, err := DeriveKey(strings.TrimSpace(seed), bits)
	if err != nil {
		return nil, err
	}
	return &Keyring{key: key}, nil
}

func (k *Keyring) PrivateKey() *rsa.PrivateKey { return k.key }

func (k *Keyring) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("secrets: refusing to encrypt empty value")
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &k.key.PublicKey, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("secrets: encrypt: %w", err)
	}
	return TokenPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt accepts a token with or without the version prefix. Every failure
// wraps ErrUndecipherable.
func (k *Keyring) Decrypt(token string) (string, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(token), TokenPrefix)
	if raw == "" {
		return "", fmt.Errorf("%w: empty ciphertext", ErrUndecipherable)
	}
	ct, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64: %v", ErrUndecipherable, err)
	}
	if len(ct) == 0 {
		return "", fmt.Errorf("%w: empty ciphertext", ErrUndecipherable)
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, k.key, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecipherable, err)
	}
	return string(pt), nil
}

// Resolve returns raw untouched when it already has the expected shape,
// otherwise decrypts it and checks the shape of the result.
func (k *Keyring) Resolve(raw string, shape ShapeDetector) (string, error) {
	v := strings.TrimSpace(raw)
	if shape != nil && shape(v) {
		return v, nil
	}
	pt, err := k.Decrypt(v)
	if err != nil {
		return "", err
	}
	if shape != nil && !shape(pt) {
		return "", fmt.Errorf("%w: decrypted value has unexpected shape", ErrUndecipherable)
	}
	return pt, nil
}
