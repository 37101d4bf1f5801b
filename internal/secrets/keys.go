package secrets

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
)

const (
	DefaultKeyBits = 2048
	publicExponent = 65537
)

var ErrMissingSeed = errors.New("secrets: seed is empty")

// seedStream yields SHA-256(seed || counter) blocks, counter big-endian uint64.
type seedStream struct {
	seed    []byte
	counter uint64
	buf     []byte
}

// NewSeedStream returns a deterministic reader: the same seed always produces
// the same byte sequence.
func NewSeedStream(seed []byte) io.Reader {
	s := make([]byte, len(seed))
	copy(s, seed)
	return &seedStream{seed: s}
}

func (s *seedStream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(s.buf) == 0 {
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], s.counter)
			s.counter++
			h := sha256.New()
			h.Write(s.seed)
			h.Write(ctr[:])
			s.buf = h.Sum(nil)
		}
		c := copy(p[n:], s.buf)
		s.buf = s.buf[c:]
		n += c
	}
	return n, nil
}

// DeriveKey builds an RSA keypair whose primes come from the seeded stream.
// rsa.GenerateKey is not used: it deliberately mixes or ignores the supplied
// reader, so its output is not reproducible from a seed.
func DeriveKey(seed string, bits int) (*rsa.PrivateKey, error) {
	if seed == "" {
		return nil, ErrMissingSeed
	}
	if bits < 1024 || bits%2 != 0 {
		return nil, fmt.Errorf("secrets: unsupported key size %d", bits)
	}
	r := NewSeedStream([]byte(seed))
	e := big.NewInt(publicExponent)
	one := big.NewInt(1)

	for {
		p, err := seededPrime(r, bits/2, e)
		if err != nil {
			return nil, err
		}
		q, err := seededPrime(r, bits-bits/2, e)
		if err != nil {
			return nil, err
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)
		phi := new(big.Int).Mul(pm1, qm1)
		d := new(big.Int).ModInverse(e, phi)
		if d == nil {
			continue
		}
		key := &rsa.PrivateKey{
			PublicKey: rsa.PublicKey{N: n, E: publicExponent},
			D:         d,
			Primes:    []*big.Int{p, q},
		}
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("secrets: derived key invalid: %w", err)
		}
		key.Precompute()
		return key, nil
	}
}

// seededPrime reads bits from r, forces the top two bits and the low bit, and
// walks upward by 2 until it finds a probable prime p with gcd(e, p-1) = 1.
func seededPrime(r io.Reader, bits int, e *big.Int) (*big.Int, error) {
	buf := make([]byte, (bits+7)/8)
	one := big.NewInt(1)
	two := big.NewInt(2)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if extra := uint(len(buf)*8 - bits); extra > 0 {
			buf[0] &= byte(0xff >> extra)
		}
		p := new(big.Int).SetBytes(buf)
		p.SetBit(p, bits-1, 1)
		p.SetBit(p, bits-2, 1)
		p.SetBit(p, 0, 1)
		for p.BitLen() == bits {
			if p.ProbablyPrime(20) {
				pm1 := new(big.Int).Sub(p, one)
				if new(big.Int).GCD(nil, nil, e, pm1).Cmp(one) == 0 {
					return p, nil
				}
			}
			p.Add(p, two)
		}
	}
}

// WriteKeys dumps the keypair as PEM for operational inspection. Only the
// seed is needed to decrypt; the files are never read back.
func WriteKeys(dir string, key *rsa.PrivateKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	priv := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(filepath.Join(dir, "private.pem"), priv, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(filepath.Join(dir, "public.pem"), pub, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}
