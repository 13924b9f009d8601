package oidc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/zitadel/oidc-rp/pkg/crypto"
)

type Claims interface {
	GetIssuer() string
	GetSubject() string
	GetAudience() []string
	GetExpiration() time.Time
	GetIssuedAt() time.Time
	GetNonce() string
	GetAuthenticationContextClassReference() string
	GetAuthTime() time.Time
	GetAuthorizedParty() string
	ClaimsSignature
}

type ClaimsSignature interface {
	SetSignatureAlgorithm(algorithm jose.SignatureAlgorithm)
}

var (
	ErrParse                   = errors.New("parsing of request failed")
	ErrIssuerInvalid           = errors.New("issuer does not match")
	ErrDiscoveryFailed         = errors.New("OpenID Provider Configuration Discovery has failed")
	ErrSubjectMissing          = errors.New("subject missing")
	ErrAudience                = errors.New("audience is not valid")
	ErrAzpMissing              = errors.New("authorized party is not set. If Token is valid for multiple audiences, azp must not be empty")
	ErrAzpInvalid              = errors.New("authorized party is not valid")
	ErrSignatureMissing        = errors.New("id_token does not contain a signature")
	ErrSignatureMultiple       = errors.New("id_token contains multiple signatures")
	ErrSignatureUnsupportedAlg = fmt.Errorf("%w: signature algorithm not supported", crypto.ErrUnsupportedAlgorithm)
	ErrSignatureInvalidPayload = errors.New("signature does not match Payload")
	ErrSignatureInvalid        = fmt.Errorf("%w: invalid signature", crypto.ErrBadSignature)
	ErrExpired                 = errors.New("token has expired")
	ErrIatMissing              = errors.New("issuedAt of token is missing")
	ErrIatInFuture             = errors.New("issuedAt of token is in the future")
	ErrIatToOld                = errors.New("issuedAt of token is to old")
	ErrNonceInvalid            = errors.New("nonce does not match")
	ErrAcrInvalid              = errors.New("acr is invalid")
	ErrAuthTimeNotPresent      = errors.New("claim `auth_time` of token is missing")
	ErrAuthTimeToOld           = errors.New("auth time of token is to old")
	ErrStateMismatch           = errors.New("state does not match")
	ErrHashBindingMismatch     = errors.New("token hash binding does not match")
	ErrAtHash                  = fmt.Errorf("%w: at_hash does not correspond to access token", ErrHashBindingMismatch)
	ErrCHash                   = fmt.Errorf("%w: c_hash does not correspond to code", ErrHashBindingMismatch)
	ErrSelfIssuedSubject       = errors.New("self-issued id_token subject must equal issuer and sub_jwk thumbprint")
	ErrSubJWKMissing           = errors.New("self-issued id_token does not contain sub_jwk")
)

// Verifier caries configuration for the various token verification
// functions. Use package specific constructor functions to know
// which values need to be set.
type Verifier struct {
	Issuer            string
	MaxAgeIAT         time.Duration
	Offset            time.Duration
	ClientID          string
	SupportedSignAlgs []string
	MaxAge            time.Duration
	ACR               ACRVerifier
	KeySet            KeySet
	Nonce             func(ctx context.Context) string

	// DecryptionKey decrypts encrypted tokens. Encrypted tokens
	// are rejected when it is nil.
	DecryptionKey any
}

// ACRVerifier specifies the function to be used by the `DefaultVerifier` for validating the acr claim
type ACRVerifier func(string) error

// DefaultACRVerifier implements `ACRVerifier` returning an error
// if none of the provided values matches the acr claim
func DefaultACRVerifier(possibleValues []string) ACRVerifier {
	return func(acr string) error {
		for _, v := range possibleValues {
			if v == acr {
				return nil
			}
		}
		return fmt.Errorf("expected one of: %v, got: %q", possibleValues, acr)
	}
}

// DecryptToken returns the nested JWS of an encrypted token.
// Tokens which are not encrypted are returned unchanged.
func DecryptToken(tokenString string, key any) (string, error) {
	header, err := crypto.ParseHeader(tokenString)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrParse, err)
	}
	if !header.Encrypted() {
		return tokenString, nil
	}
	if key == nil {
		return "", fmt.Errorf("%w: no key to decrypt token", crypto.ErrDecryption)
	}
	plaintext, err := crypto.Decrypt(tokenString, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func ParseToken(tokenString string, claims any) ([]byte, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token contains an invalid number of segments", ErrParse)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed jwt payload: %v", ErrParse, err)
	}
	err = json.Unmarshal(payload, claims)
	return payload, err
}

func CheckSubject(claims Claims) error {
	if claims.GetSubject() == "" {
		return ErrSubjectMissing
	}
	return nil
}

func CheckIssuer(claims Claims, issuer string) error {
	if claims.GetIssuer() != issuer {
		return fmt.Errorf("%w: Expected: %s, got: %s", ErrIssuerInvalid, issuer, claims.GetIssuer())
	}
	return nil
}

func CheckAudience(claims Claims, clientID string) error {
	if !Audience(claims.GetAudience()).Contains(clientID) {
		return fmt.Errorf("%w: Audience must contain client_id %q", ErrAudience, clientID)
	}
	return nil
}

func CheckAuthorizedParty(claims Claims, clientID string) error {
	if len(claims.GetAudience()) > 1 {
		if claims.GetAuthorizedParty() == "" {
			return ErrAzpMissing
		}
	}
	if claims.GetAuthorizedParty() != "" && claims.GetAuthorizedParty() != clientID {
		return fmt.Errorf("%w: azp %q must be equal to client_id %q", ErrAzpInvalid, claims.GetAuthorizedParty(), clientID)
	}
	return nil
}

// CheckSignature verifies the JWS against the KeySet and checks the
// signed payload is the payload the claims were parsed from.
// An unsecured (alg=none) token is never accepted.
func CheckSignature(ctx context.Context, token string, payload []byte, claims ClaimsSignature, supportedSigAlgs []string, set KeySet) error {
	if len(supportedSigAlgs) == 0 {
		supportedSigAlgs = []string{string(jose.RS256)}
	}
	jws, err := jose.ParseSigned(token, toJoseSignatureAlgorithms(supportedSigAlgs))
	if err != nil {
		if strings.HasPrefix(err.Error(), "go-jose/go-jose: unexpected signature algorithm") {
			return ErrSignatureUnsupportedAlg
		}
		return ErrParse
	}
	if len(jws.Signatures) == 0 {
		return ErrSignatureMissing
	}
	if len(jws.Signatures) > 1 {
		return ErrSignatureMultiple
	}
	sig := jws.Signatures[0]

	signedPayload, err := set.VerifySignature(ctx, jws)
	if err != nil {
		return fmt.Errorf("%w (%v)", ErrSignatureInvalid, err)
	}

	if !bytes.Equal(signedPayload, payload) {
		return ErrSignatureInvalidPayload
	}

	claims.SetSignatureAlgorithm(jose.SignatureAlgorithm(sig.Header.Algorithm))

	return nil
}

func toJoseSignatureAlgorithms(algorithms []string) []jose.SignatureAlgorithm {
	out := make([]jose.SignatureAlgorithm, len(algorithms))
	for i := range algorithms {
		out[i] = jose.SignatureAlgorithm(algorithms[i])
	}
	return out
}

func CheckExpiration(claims Claims, offset time.Duration) error {
	expiration := claims.GetExpiration()
	if !time.Now().Add(offset).Before(expiration) {
		return ErrExpired
	}
	return nil
}

func CheckIssuedAt(claims Claims, maxAgeIAT, offset time.Duration) error {
	issuedAt := claims.GetIssuedAt()
	if issuedAt.IsZero() {
		return ErrIatMissing
	}
	nowWithOffset := time.Now().Add(offset).Round(time.Second)
	if issuedAt.After(nowWithOffset) {
		return fmt.Errorf("%w: (iat: %v, now with offset: %v)", ErrIatInFuture, issuedAt, nowWithOffset)
	}
	if maxAgeIAT == 0 {
		return nil
	}
	maxAge := time.Now().Add(-maxAgeIAT).Round(time.Second)
	if issuedAt.Before(maxAge) {
		return fmt.Errorf("%w: must not be older than %v, but was %v (%v to old)", ErrIatToOld, maxAge, issuedAt, maxAge.Sub(issuedAt))
	}
	return nil
}

func CheckNonce(claims Claims, nonce string) error {
	if claims.GetNonce() != nonce {
		return fmt.Errorf("%w: expected %q but was %q", ErrNonceInvalid, nonce, claims.GetNonce())
	}
	return nil
}

func CheckAuthorizationContextClassReference(claims Claims, acr ACRVerifier) error {
	if acr != nil {
		if err := acr(claims.GetAuthenticationContextClassReference()); err != nil {
			return fmt.Errorf("%w: %v", ErrAcrInvalid, err)
		}
	}
	return nil
}

func CheckAuthTime(claims Claims, maxAge time.Duration) error {
	if maxAge == 0 {
		return nil
	}
	if claims.GetAuthTime().IsZero() {
		return ErrAuthTimeNotPresent
	}
	authTime := claims.GetAuthTime()
	maxAuthTime := time.Now().Add(-maxAge).Round(time.Second)
	if authTime.Before(maxAuthTime) {
		return fmt.Errorf("%w: must not be older than %v, but was %v (%v to old)", ErrAuthTimeToOld, maxAge, authTime, maxAuthTime.Sub(authTime))
	}
	return nil
}

// CheckState compares the state of a response to the state sent.
func CheckState(got, want string) error {
	if want == "" || got != want {
		return fmt.Errorf("%w: expected %q but was %q", ErrStateMismatch, want, got)
	}
	return nil
}

// CheckAccessTokenHash checks the at_hash claim binds the access token.
// The claim is required when an access token was issued
// together with the ID Token.
func CheckAccessTokenHash(claims *IDTokenClaims, accessToken string) error {
	return checkHash(claims.AccessTokenHash, accessToken, claims.SignatureAlg, ErrAtHash)
}

// CheckCodeHash checks the c_hash claim binds the authorization code.
func CheckCodeHash(claims *IDTokenClaims, code string) error {
	return checkHash(claims.CodeHash, code, claims.SignatureAlg, ErrCHash)
}

func checkHash(claimHash, value string, sigAlg jose.SignatureAlgorithm, errMismatch error) error {
	if claimHash == "" {
		return fmt.Errorf("%w: claim missing", errMismatch)
	}
	actual, err := ClaimHash(value, sigAlg)
	if err != nil {
		return err
	}
	if actual != claimHash {
		return errMismatch
	}
	return nil
}

// CheckSelfIssued checks the identity binding of a self-issued ID Token:
// iss and sub must be equal, and sub must be the thumbprint of sub_jwk.
func CheckSelfIssued(claims *IDTokenClaims) error {
	if claims.SubjectJWK == nil {
		return ErrSubJWKMissing
	}
	if claims.Issuer != claims.Subject {
		return fmt.Errorf("%w: iss %q, sub %q", ErrSelfIssuedSubject, claims.Issuer, claims.Subject)
	}
	thumbprint, err := crypto.Thumbprint(claims.SubjectJWK)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubJWKMissing, err)
	}
	if thumbprint != claims.Subject {
		return fmt.Errorf("%w: sub %q, thumbprint %q", ErrSelfIssuedSubject, claims.Subject, thumbprint)
	}
	return nil
}
