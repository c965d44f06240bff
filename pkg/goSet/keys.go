package goSet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

/*
KeyProvider supplies the Ed25519 keypair used to sign and verify SETs. Key
generation and storage live outside FLAGSHIP; the provider only hands back
PEM material. A nil Keypair with a nil error means no key is configured.
*/
type KeyProvider interface {
	LoadKeypair() (*Keypair, error)
}

// Keypair holds a PKCS8-encoded Ed25519 private key and its SPKI-encoded
// public key, both in PEM form.
type Keypair struct {
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

func (k *Keypair) PrivateKey() (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(k.PrivateKeyPEM)
	if block == nil {
		return nil, errors.New("no PEM block found in private key material")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS8 private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not Ed25519")
	}
	return key, nil
}

func (k *Keypair) PublicKey() (ed25519.PublicKey, error) {
	block, _ := pem.Decode(k.PublicKeyPEM)
	if block == nil {
		return nil, errors.New("no PEM block found in public key material")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing SPKI public key: %w", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not Ed25519")
	}
	return key, nil
}

// StaticKeyProvider returns a fixed in-memory keypair. A zero value provider
// reports no key configured.
type StaticKeyProvider struct {
	Keypair *Keypair
}

func (p *StaticKeyProvider) LoadKeypair() (*Keypair, error) {
	return p.Keypair, nil
}

// FileKeyProvider reads PEM files from disk on every load so that rotated
// key material is picked up without a restart.
type FileKeyProvider struct {
	PrivateKeyPath string
	PublicKeyPath  string
}

func (p *FileKeyProvider) LoadKeypair() (*Keypair, error) {
	if p.PrivateKeyPath == "" && p.PublicKeyPath == "" {
		return nil, nil
	}
	var keypair Keypair
	if p.PrivateKeyPath != "" {
		privPem, err := os.ReadFile(p.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key %s: %w", p.PrivateKeyPath, err)
		}
		keypair.PrivateKeyPEM = privPem
	}
	if p.PublicKeyPath != "" {
		pubPem, err := os.ReadFile(p.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading public key %s: %w", p.PublicKeyPath, err)
		}
		keypair.PublicKeyPEM = pubPem
	}
	return &keypair, nil
}

/*
GenerateKeypair creates a fresh Ed25519 keypair in PEM form. FLAGSHIP itself
never generates production keys; this exists for tests and local tooling.
*/
func GenerateKeypair() (*Keypair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	return &Keypair{
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}),
		PublicKeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}),
	}, nil
}
