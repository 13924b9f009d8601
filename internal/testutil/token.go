// Package testutil helps setting up required data for testing,
// such as keys, tokens, claims and verifiers.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/zitadel/oidc-rp/pkg/crypto"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

// KeySet implements oidc.KeySet with the public key of SigningKey.
type KeySet struct{}

// VerifySignature implments oidc.KeySet.
func (KeySet) VerifySignature(ctx context.Context, jws *jose.JSONWebSignature) (payload []byte, err error) {
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	return jws.Verify(SigningKey().PrivateKey.Public())
}

// SignClaims signs claims with SigningKey.
func SignClaims(claims any) string {
	token, err := crypto.SignObject(claims, SigningKey().SigningKey(), SignatureAlgorithm)
	if err != nil {
		panic(err)
	}
	return token
}

// EncryptToken wraps a signed token into a JWE for the key
// (sign then encrypt), using RSA1_5 and A128CBC-HS256.
func EncryptToken(token string, key any) string {
	jwe, err := crypto.EncryptSigned(token, key, jose.RSA1_5, jose.A128CBC_HS256)
	if err != nil {
		panic(err)
	}
	return jwe
}

func claimsMap(claims any) map[string]any {
	data, err := json.Marshal(claims)
	if err != nil {
		panic(err)
	}
	dst := make(map[string]any)
	if err = json.Unmarshal(data, &dst); err != nil {
		panic(err)
	}
	return dst
}

// NewIDToken creates a new IDTokenClaims with passed data and returns a signed token and claims.
func NewIDToken(issuer, subject string, audience []string, expiration, authTime time.Time, nonce string, acr string, amr []string, clientID string, skew time.Duration, atHash string) (string, *oidc.IDTokenClaims) {
	claims := oidc.NewIDTokenClaims(issuer, subject, audience, expiration, authTime, nonce, acr, amr, clientID, skew)
	claims.AccessTokenHash = atHash
	return SignIDToken(claims)
}

// SignIDToken signs claims and completes them the way
// oidc.ParseToken and the verifiers return them.
func SignIDToken(claims *oidc.IDTokenClaims) (string, *oidc.IDTokenClaims) {
	token := SignClaims(claims)

	// set this so that assertion in tests will work
	claims.SignatureAlg = SignatureAlgorithm
	claims.Claims = claimsMap(claims)
	return token, claims
}

// These variables always result in a valid token
// for the same test run.
var (
	ValidIssuer      = "https://op.local.com"
	ValidSubject     = "tim@local.com"
	ValidAudience    = []string{"unit", "test"}
	ValidAuthTime    = time.Now().Add(-time.Minute)       // authtime is always 1 minute in the past
	ValidExpiration  = ValidAuthTime.Add(2 * time.Minute) // token is always 1 more minute available
	ValidNonce       = "12345"
	ValidACR         = "something"
	ValidAMR         = []string{"foo", "bar"}
	ValidClientID    = "555666"
	ValidSkew        = time.Second
	ValidAccessToken = "access-token-of-tim"
	ValidCode        = "code-of-tim"
)

// ValidIDToken returns a token and claims that are in the token.
// It uses the Valid* global variables and the token always passes
// verification within the same test run.
func ValidIDToken() (string, *oidc.IDTokenClaims) {
	return NewIDToken(ValidIssuer, ValidSubject, ValidAudience, ValidExpiration, ValidAuthTime, ValidNonce, ValidACR, ValidAMR, ValidClientID, ValidSkew, "")
}

// ValidIDTokenWithHashes is ValidIDToken bound to
// ValidAccessToken and ValidCode by at_hash and c_hash.
func ValidIDTokenWithHashes() (string, *oidc.IDTokenClaims) {
	claims := oidc.NewIDTokenClaims(ValidIssuer, ValidSubject, ValidAudience, ValidExpiration, ValidAuthTime, ValidNonce, ValidACR, ValidAMR, ValidClientID, ValidSkew)
	claims.AccessTokenHash = mustClaimHash(ValidAccessToken)
	claims.CodeHash = mustClaimHash(ValidCode)
	return SignIDToken(claims)
}

func mustClaimHash(value string) string {
	hash, err := oidc.ClaimHash(value, SignatureAlgorithm)
	if err != nil {
		panic(err)
	}
	return hash
}

// ValidUserInfo returns the UserInfo of ValidSubject.
func ValidUserInfo() *oidc.UserInfo {
	return &oidc.UserInfo{
		Subject: ValidSubject,
		UserInfoProfile: oidc.UserInfoProfile{
			Name:       "Tim Tester",
			GivenName:  "Tim",
			FamilyName: "Tester",
			Nickname:   "timmy",
		},
		UserInfoEmail: oidc.UserInfoEmail{
			Email:         "tim@local.com",
			EmailVerified: true,
		},
		UserInfoPhone: oidc.UserInfoPhone{
			PhoneNumber: "+41 79 123 45 67",
		},
		Address: &oidc.UserInfoAddress{
			StreetAddress: "Main Street 1",
			Locality:      "Springfield",
			Country:       "US",
		},
	}
}

// ACRVerify is a oidc.ACRVerifier func.
func ACRVerify(acr string) error {
	if acr != ValidACR {
		return errors.New("invalid acr")
	}
	return nil
}
