package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrKeyNotFound = errors.New("key not found")

// KeyProvider defines the interface for providing RS256 signing material.
type KeyProvider interface {
	GetSigningKey() (kid string, key *rsa.PrivateKey, err error)
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
	ListVerificationKeys() map[string]*rsa.PublicKey
}

// FileKeyProvider loads PEM encoded RSA keys from a directory. The file name without
// extension is the kid. The preferred kid signs when it holds a private key, otherwise the
// first private key in lexical order does.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKID string
	signingKey *rsa.PrivateKey
}

// NewFileKeyProvider reads every key in keyDir.
func NewFileKeyProvider(keyDir, preferredKID string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		if !file.IsDir() {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	provider := &FileKeyProvider{keys: make(map[string]*rsa.PublicKey)}
	privates := make(map[string]*rsa.PrivateKey)

	for _, name := range names {
		path := filepath.Join(keyDir, name)
		kid := strings.TrimSuffix(name, filepath.Ext(name))

		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block from %s", path)
		}

		priv, pub, err := parseRSAKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key from file %s: %w", path, err)
		}
		if priv != nil {
			privates[kid] = priv
			pub = &priv.PublicKey
		}
		provider.keys[kid] = pub
	}

	if key, ok := privates[preferredKID]; ok {
		provider.signingKID, provider.signingKey = preferredKID, key
	} else {
		for _, name := range names {
			kid := strings.TrimSuffix(name, filepath.Ext(name))
			if key, ok := privates[kid]; ok {
				provider.signingKID, provider.signingKey = kid, key
				break
			}
		}
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil, nil
		}
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return nil, key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
	}
	return nil, nil, errors.New("unsupported key type")
}

func (p *FileKeyProvider) GetSigningKey() (string, *rsa.PrivateKey, error) {
	return p.signingKID, p.signingKey, nil
}

func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

func (p *FileKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}
