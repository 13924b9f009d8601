package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/zitadel/oidc-rp/pkg/crypto"
)

const SignatureAlgorithm = jose.RS256

var (
	keysOnce      sync.Once
	signingKey    *crypto.KeyPair
	encryptionKey *crypto.KeyPair
)

func initKeys() {
	keysOnce.Do(func() {
		signingKey = NewKeyPair("op-signing")
		encryptionKey = NewKeyPair("op-encryption")
	})
}

// SigningKey is the RSA key pair the test OP signs ID Tokens with.
// It is the same for the whole test run.
func SigningKey() *crypto.KeyPair {
	initKeys()
	return signingKey
}

// EncryptionKey is the RSA key pair the test OP publishes with `use=enc`.
func EncryptionKey() *crypto.KeyPair {
	initKeys()
	return encryptionKey
}

// JWKS returns the public signing and encryption keys of the test OP.
func JWKS() *jose.JSONWebKeySet {
	set, err := crypto.PublishKeyPairs(SigningKey(), EncryptionKey())
	if err != nil {
		panic(err)
	}
	return set
}

// NewKeyPair generates a RSA key with a self-signed certificate.
func NewKeyPair(commonName string) *crypto.KeyPair {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	pair, err := crypto.NewKeyPair(NewCertificate(key, commonName), key, SignatureAlgorithm)
	if err != nil {
		panic(err)
	}
	return pair
}

// NewCertificate creates a self-signed certificate for key.
func NewCertificate(key *rsa.PrivateKey, commonName string) *x509.Certificate {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return cert
}

// PEM returns the PEM encoded certificate and PKCS#1 private key of a pair.
func PEM(pair *crypto.KeyPair) (certPEM, keyPEM []byte) {
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: pair.Certificate.Raw})
	keyPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(pair.PrivateKey.(*rsa.PrivateKey)),
	})
	return certPEM, keyPEM
}
