package crypto

import (
	"crypto/x509"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

var ErrNoCertificate = errors.New("no certificate to publish")

// PublishKeys builds the JWK Set an RP publishes at its jwks_uri:
// the signing certificate as `use=sig` key and the encryption
// certificate as `use=enc` key. Either certificate may be nil,
// but not both. Key IDs are the RFC 7638 thumbprints, so a certificate
// used for both is published once, without `use`.
func PublishKeys(signCert, encCert *x509.Certificate) (*jose.JSONWebKeySet, error) {
	var sign, enc *jose.JSONWebKey
	if signCert != nil {
		key, err := CertificateKey(signCert, KeyUseSignature)
		if err != nil {
			return nil, err
		}
		sign = &key
	}
	if encCert != nil {
		key, err := CertificateKey(encCert, KeyUseEncryption)
		if err != nil {
			return nil, err
		}
		enc = &key
	}
	return keySet(sign, enc)
}

// CertificateKey returns the public JWK of a certificate with the x5c chain.
func CertificateKey(cert *x509.Certificate, use string) (jose.JSONWebKey, error) {
	kid, err := Thumbprint(cert.PublicKey)
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("%s key: %w", use, err)
	}
	return jose.JSONWebKey{
		Key:          cert.PublicKey,
		KeyID:        kid,
		Use:          use,
		Certificates: []*x509.Certificate{cert},
	}, nil
}

// PublishKeyPairs is PublishKeys for key pairs. Pairs without
// certificate are published as bare public keys.
func PublishKeyPairs(sign, enc *KeyPair) (*jose.JSONWebKeySet, error) {
	var signKey, encKey *jose.JSONWebKey
	if sign != nil {
		key := sign.PublicKey(KeyUseSignature)
		signKey = &key
	}
	if enc != nil {
		key := enc.PublicKey(KeyUseEncryption)
		encKey = &key
	}
	return keySet(signKey, encKey)
}

// keySet merges sign and enc into one untagged key when they share
// the key ID, as SelectKey accepts untagged keys for either use.
func keySet(sign, enc *jose.JSONWebKey) (*jose.JSONWebKeySet, error) {
	set := new(jose.JSONWebKeySet)
	if sign != nil && enc != nil && sign.KeyID == enc.KeyID {
		merged := *sign
		merged.Use = ""
		merged.Algorithm = ""
		set.Keys = append(set.Keys, merged)
		return set, nil
	}
	for _, key := range []*jose.JSONWebKey{sign, enc} {
		if key != nil {
			set.Keys = append(set.Keys, *key)
		}
	}
	if len(set.Keys) == 0 {
		return nil, ErrNoCertificate
	}
	return set, nil
}
