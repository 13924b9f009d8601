package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

var (
	ErrPEMDecode          = errors.New("PEM decode failed")
	ErrCertificateKeyPair = errors.New("certificate does not match private key")
)

func BytesToPrivateKey(b []byte) (crypto.Signer, jose.SignatureAlgorithm, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, "", ErrPEMDecode
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return privateKey, jose.RS256, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, "", err
	}
	switch privateKey := key.(type) {
	case *rsa.PrivateKey:
		return privateKey, jose.RS256, nil
	case ed25519.PrivateKey:
		return privateKey, jose.EdDSA, nil
	case *ecdsa.PrivateKey:
		return privateKey, jose.ES256, nil
	default:
		return nil, "", fmt.Errorf("unsupported key type: %T", privateKey)
	}
}

// BytesToCertificate parses the first PEM encoded certificate.
func BytesToCertificate(b []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, ErrPEMDecode
	}
	return x509.ParseCertificate(block.Bytes)
}

// KeyPair is a private key together with its certificate.
// The key ID is the RFC 7638 thumbprint of the public key.
type KeyPair struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
	Algorithm   jose.SignatureAlgorithm
	KeyID       string
}

// LoadKeyPair parses a PEM certificate and PEM private key.
func LoadKeyPair(certPEM, keyPEM []byte) (*KeyPair, error) {
	cert, err := BytesToCertificate(certPEM)
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	key, alg, err := BytesToPrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return NewKeyPair(cert, key, alg)
}

func NewKeyPair(cert *x509.Certificate, key crypto.Signer, alg jose.SignatureAlgorithm) (*KeyPair, error) {
	if cert != nil {
		if pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool }); !ok || !pub.Equal(cert.PublicKey) {
			return nil, ErrCertificateKeyPair
		}
	}
	kid, err := Thumbprint(key.Public())
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Certificate: cert,
		PrivateKey:  key,
		Algorithm:   alg,
		KeyID:       kid,
	}, nil
}

// SigningKey returns the private JWK, carrying the key ID and algorithm.
func (k *KeyPair) SigningKey() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       k.PrivateKey,
		KeyID:     k.KeyID,
		Algorithm: string(k.Algorithm),
		Use:       KeyUseSignature,
	}
}

// DecryptionKey returns the private JWK for decryption.
func (k *KeyPair) DecryptionKey() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:   k.PrivateKey,
		KeyID: k.KeyID,
		Use:   KeyUseEncryption,
	}
}

// PublicKey returns the public JWK for the given use.
func (k *KeyPair) PublicKey(use string) jose.JSONWebKey {
	jwk := jose.JSONWebKey{
		Key:   k.PrivateKey.Public(),
		KeyID: k.KeyID,
		Use:   use,
	}
	if use == KeyUseSignature {
		jwk.Algorithm = string(k.Algorithm)
	}
	if k.Certificate != nil {
		jwk.Certificates = []*x509.Certificate{k.Certificate}
	}
	return jwk
}

// Thumbprint returns the base64url encoded RFC 7638 SHA-256 thumbprint of a public key.
func Thumbprint(publicKey any) (string, error) {
	jwk := jose.JSONWebKey{Key: publicKey}
	if k, ok := publicKey.(jose.JSONWebKey); ok {
		jwk = k
	}
	if k, ok := publicKey.(*jose.JSONWebKey); ok {
		jwk = *k
	}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
