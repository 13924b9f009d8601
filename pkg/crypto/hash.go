package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"

	jose "github.com/go-jose/go-jose/v4"
)

// GetHashAlgorithm returns the hash used for the token hash claims
// (at_hash, c_hash) of tokens signed with sigAlgorithm.
func GetHashAlgorithm(sigAlgorithm jose.SignatureAlgorithm) (hash.Hash, error) {
	switch sigAlgorithm {
	case jose.RS256, jose.ES256, jose.PS256:
		return sha256.New(), nil
	case jose.RS384, jose.ES384, jose.PS384:
		return sha512.New384(), nil
	case jose.RS512, jose.ES512, jose.PS512:
		return sha512.New(), nil

	// Not yet standardized for OIDC token hashes.
	// There is consensus here: https://bitbucket.org/openid/connect/issues/1125/_hash-algorithm-for-eddsa-id-tokens
	// Currently Go and go-jose only supports the ed25519 curve key for EdDSA, so we can safely assume sha512 here.
	// It is unlikely ed448 will ever be supported: https://github.com/golang/go/issues/29390
	case jose.EdDSA:
		return sha512.New(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, sigAlgorithm)
	}
}

// HashString hashes s and returns the base64url encoding of the
// (left half of the) digest.
func HashString(hash hash.Hash, s string, firstHalf bool) string {
	if hash == nil {
		return s
	}
	//nolint:errcheck
	hash.Write([]byte(s))
	size := hash.Size()
	if firstHalf {
		size = size / 2
	}
	sum := hash.Sum(nil)[:size]
	return base64.RawURLEncoding.EncodeToString(sum)
}

// TokenHash computes the at_hash / c_hash value of token
// for an ID Token signed with sigAlgorithm.
func TokenHash(token string, sigAlgorithm jose.SignatureAlgorithm) (string, error) {
	hash, err := GetHashAlgorithm(sigAlgorithm)
	if err != nil {
		return "", err
	}
	return HashString(hash, token, true), nil
}
