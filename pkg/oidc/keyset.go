package oidc

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/zitadel/oidc-rp/pkg/crypto"
)

const (
	KeyUseSignature  = crypto.KeyUseSignature
	KeyUseEncryption = crypto.KeyUseEncryption

	KeyTypeRSA = "RSA"
	KeyTypeEC  = "EC"
	KeyTypeOKP = "OKP"
)

var (
	ErrKeyMultiple    = errors.New("multiple possible keys match")
	ErrKeyNone        = errors.New("no possible keys matches")
	ErrKeyIDDuplicate = errors.New("key set contains duplicate key id")
)

// KeySet represents a set of JSON Web Keys
// - remotely fetch via discovery and jwks_uri -> `remoteKeySet`
// - embedded in a self-issued ID Token -> `subjectKeySet`
type KeySet interface {
	// VerifySignature verifies the signature with the given keyset and returns the raw payload
	VerifySignature(ctx context.Context, jws *jose.JSONWebSignature) (payload []byte, err error)
}

// GetKeyIDAndAlg returns the `kid` and `alg` claim from the JWS header
func GetKeyIDAndAlg(jws *jose.JSONWebSignature) (string, string) {
	keyID := ""
	alg := ""
	for _, sig := range jws.Signatures {
		keyID = sig.Header.KeyID
		alg = sig.Header.Algorithm
		break
	}
	return keyID, alg
}

// FindMatchingKey searches the given JSON Web Keys for the requested key ID, usage and alg type
//
// will return the key immediately if matches exact (id, usage, type)
//
// will return a specific error if none (ErrKeyNone) or multiple (ErrKeyMultiple) match
func FindMatchingKey(keyID, use, expectedAlg string, keys ...jose.JSONWebKey) (key jose.JSONWebKey, err error) {
	var validKeys []jose.JSONWebKey
	for _, k := range keys {
		// ignore all keys with wrong use (let empty use of published key pass)
		if k.Use != use && k.Use != "" {
			continue
		}
		// ignore all keys with wrong algorithm type
		if !algToKeyType(k.Key, expectedAlg) {
			continue
		}
		// if we get here, use and alg match, so an equal (not empty) keyID is an exact match
		if k.KeyID == keyID && keyID != "" {
			return k, nil
		}
		// keyIDs did not match or at least one was empty (if later, then it could be a match)
		if k.KeyID == "" || keyID == "" {
			validKeys = append(validKeys, k)
		}
	}
	// if we get here, no match was possible at all (use / alg) or no exact match due to
	// the signed JWT and / or the published keys didn't have a kid
	// if later applies and only one key could be found, we'll return it
	// otherwise a corresponding error will be thrown
	if len(validKeys) == 1 {
		return validKeys[0], nil
	}
	if len(validKeys) > 1 {
		return key, ErrKeyMultiple
	}
	return key, ErrKeyNone
}

// SelectKey returns the first key of the set with the given use and key type.
// Keys tagged with exactly that use are preferred, keys without use tag
// are the fallback. A `sig` key never satisfies `enc` and vice versa.
// An empty kty matches any key type.
func SelectKey(set *jose.JSONWebKeySet, use, kty string) (jose.JSONWebKey, error) {
	if set == nil {
		return jose.JSONWebKey{}, fmt.Errorf("%w: use %q, kty %q", ErrKeyNone, use, kty)
	}
	var untagged *jose.JSONWebKey
	for i, k := range set.Keys {
		if kty != "" && KeyType(k.Key) != kty {
			continue
		}
		switch k.Use {
		case use:
			return k, nil
		case "":
			if untagged == nil {
				untagged = &set.Keys[i]
			}
		}
	}
	if untagged != nil {
		return *untagged, nil
	}
	return jose.JSONWebKey{}, fmt.Errorf("%w: use %q, kty %q", ErrKeyNone, use, kty)
}

// CheckKeyIDs returns ErrKeyIDDuplicate if a non-empty key ID
// is used by more than one key of the set.
func CheckKeyIDs(set *jose.JSONWebKeySet) error {
	seen := make(map[string]struct{}, len(set.Keys))
	for _, k := range set.Keys {
		if k.KeyID == "" {
			continue
		}
		if _, ok := seen[k.KeyID]; ok {
			return fmt.Errorf("%w: %q", ErrKeyIDDuplicate, k.KeyID)
		}
		seen[k.KeyID] = struct{}{}
	}
	return nil
}

// KeyType returns the JWK `kty` of a public or private key.
func KeyType(key any) string {
	switch key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return KeyTypeRSA
	case *ecdsa.PublicKey, *ecdsa.PrivateKey:
		return KeyTypeEC
	case ed25519.PublicKey, ed25519.PrivateKey:
		return KeyTypeOKP
	default:
		return ""
	}
}

func algToKeyType(key any, alg string) bool {
	if alg == "" {
		return false
	}
	if alg == string(jose.EdDSA) {
		return KeyType(key) == KeyTypeOKP
	}
	switch alg[0] {
	case 'R', 'P':
		_, ok := key.(*rsa.PublicKey)
		return ok
	case 'E':
		_, ok := key.(*ecdsa.PublicKey)
		return ok
	default:
		return false
	}
}
