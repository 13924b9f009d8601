package crypto

import (
	"crypto"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	KeyUseSignature  = "sig"
	KeyUseEncryption = "enc"

	// NoneAlgorithm is the `alg` value of an unsecured JWS.
	NoneAlgorithm jose.SignatureAlgorithm = "none"

	// ContentTypeJWT marks a JWE whose plaintext is a nested JWT.
	ContentTypeJWT = "JWT"
)

var (
	ErrMalformed            = errors.New("malformed JOSE object")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrBadSignature         = errors.New("signature verification failed")
	ErrDecryption           = errors.New("decryption failed")
)

var (
	SignatureAlgorithms = []jose.SignatureAlgorithm{
		jose.RS256, jose.RS384, jose.RS512,
		jose.PS256, jose.PS384, jose.PS512,
		jose.ES256, jose.ES384, jose.ES512,
		jose.EdDSA,
	}
	KeyAlgorithms = []jose.KeyAlgorithm{
		jose.RSA1_5, jose.RSA_OAEP, jose.RSA_OAEP_256,
		jose.ECDH_ES, jose.ECDH_ES_A128KW, jose.ECDH_ES_A192KW, jose.ECDH_ES_A256KW,
	}
	ContentEncryptions = []jose.ContentEncryption{
		jose.A128CBC_HS256, jose.A192CBC_HS384, jose.A256CBC_HS512,
		jose.A128GCM, jose.A192GCM, jose.A256GCM,
	}
)

// Header is the protected header of a compact JWS or JWE.
type Header struct {
	Algorithm   string `json:"alg"`
	Encryption  string `json:"enc,omitempty"`
	ContentType string `json:"cty,omitempty"`
	Type        string `json:"typ,omitempty"`
	KeyID       string `json:"kid,omitempty"`

	segments int
}

// Encrypted reports whether the token is a JWE.
func (h *Header) Encrypted() bool {
	return h.segments == 5
}

// Nested reports whether the JWE plaintext is a JWT.
func (h *Header) Nested() bool {
	return strings.EqualFold(h.ContentType, ContentTypeJWT)
}

// ParseHeader decodes the protected header of a compact serialized token
// without verifying or decrypting it. A JWS has three segments, a JWE five.
func ParseHeader(token string) (*Header, error) {
	segments := strings.Count(token, ".") + 1
	if segments != 3 && segments != 5 {
		return nil, fmt.Errorf("%w: compact serialization has %d segments", ErrMalformed, segments)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token[:strings.IndexByte(token, '.')])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	header := &Header{segments: segments}
	if err = json.Unmarshal(raw, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if header.Algorithm == "" {
		return nil, fmt.Errorf("%w: header without alg", ErrMalformed)
	}
	if header.Encrypted() && header.Encryption == "" {
		return nil, fmt.Errorf("%w: JWE header without enc", ErrMalformed)
	}
	return header, nil
}

// Sign creates a compact JWS over payload.
// NoneAlgorithm creates an unsecured JWS and ignores key.
func Sign(payload []byte, key any, alg jose.SignatureAlgorithm) (string, error) {
	if alg == NoneAlgorithm {
		return signUnsecured(payload)
	}
	if !contains(SignatureAlgorithms, alg) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return jws.CompactSerialize()
}

// SignObject marshals object to JSON and signs it.
func SignObject(object any, key any, alg jose.SignatureAlgorithm) (string, error) {
	payload, err := json.Marshal(object)
	if err != nil {
		return "", err
	}
	return Sign(payload, key, alg)
}

type verifyConfig struct {
	allowUnsecured bool
	algorithms     []jose.SignatureAlgorithm
}

type VerifyOption func(*verifyConfig)

// AllowUnsecured accepts `alg=none` JWS objects, and JWE objects
// whose plaintext is not signed. It must only be used by callers which
// explicitly negotiated unsigned objects.
func AllowUnsecured() VerifyOption {
	return func(c *verifyConfig) {
		c.allowUnsecured = true
	}
}

// WithAlgorithms restricts the accepted signature algorithms.
func WithAlgorithms(algs ...jose.SignatureAlgorithm) VerifyOption {
	return func(c *verifyConfig) {
		c.algorithms = algs
	}
}

func newVerifyConfig(opts []VerifyOption) *verifyConfig {
	c := &verifyConfig{algorithms: SignatureAlgorithms}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify checks the signature of a compact JWS and returns the payload.
// An unsecured JWS is rejected unless AllowUnsecured is passed.
func Verify(token string, key any, opts ...VerifyOption) ([]byte, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	return verify(token, header, key, newVerifyConfig(opts))
}

func verify(token string, header *Header, key any, config *verifyConfig) ([]byte, error) {
	if header.Encrypted() {
		return nil, fmt.Errorf("%w: expected JWS, got JWE", ErrMalformed)
	}
	alg := jose.SignatureAlgorithm(header.Algorithm)
	if alg == NoneAlgorithm {
		if !config.allowUnsecured {
			return nil, fmt.Errorf("%w: unsecured JWS not accepted", ErrUnsupportedAlgorithm)
		}
		return verifyUnsecured(token)
	}
	if !contains(config.algorithms, alg) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{alg})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	payload, err := jws.Verify(publicKey(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return payload, nil
}

// Encrypt creates a compact JWE over payload for the recipient key.
func Encrypt(payload []byte, key any, alg jose.KeyAlgorithm, enc jose.ContentEncryption) (string, error) {
	return encrypt(payload, key, alg, enc, nil)
}

// EncryptSigned wraps a signed JWT into a JWE (nested JWT, cty=JWT).
func EncryptSigned(signed string, key any, alg jose.KeyAlgorithm, enc jose.ContentEncryption) (string, error) {
	return encrypt([]byte(signed), key, alg, enc, (&jose.EncrypterOptions{}).WithContentType(ContentTypeJWT))
}

func encrypt(payload []byte, key any, alg jose.KeyAlgorithm, enc jose.ContentEncryption, opts *jose.EncrypterOptions) (string, error) {
	if !contains(KeyAlgorithms, alg) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if !contains(ContentEncryptions, enc) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, enc)
	}
	recipient := jose.Recipient{Algorithm: alg, Key: key}
	switch k := key.(type) {
	case jose.JSONWebKey:
		recipient.Key, recipient.KeyID = k.Key, k.KeyID
	case *jose.JSONWebKey:
		recipient.Key, recipient.KeyID = k.Key, k.KeyID
	}
	encrypter, err := jose.NewEncrypter(enc, recipient, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	}
	jwe, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", err
	}
	return jwe.CompactSerialize()
}

// Decrypt decrypts a compact JWE and returns the plaintext.
func Decrypt(token string, key any) ([]byte, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	return decrypt(token, header, key)
}

func decrypt(token string, header *Header, key any) ([]byte, error) {
	if !header.Encrypted() {
		return nil, fmt.Errorf("%w: expected JWE, got JWS", ErrMalformed)
	}
	alg := jose.KeyAlgorithm(header.Algorithm)
	enc := jose.ContentEncryption(header.Encryption)
	if !contains(KeyAlgorithms, alg) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if !contains(ContentEncryptions, enc) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, enc)
	}
	jwe, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{alg}, []jose.ContentEncryption{enc})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	plaintext, err := jwe.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

// Open unwraps a token which may be signed, encrypted, or signed then encrypted.
// Encrypted tokens are decrypted first, the nested JWS is then verified.
// A JWE with an unsigned plaintext is treated like an unsecured JWS
// and requires AllowUnsecured.
func Open(token string, decryptionKey, verificationKey any, opts ...VerifyOption) ([]byte, error) {
	config := newVerifyConfig(opts)
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	if !header.Encrypted() {
		return verify(token, header, verificationKey, config)
	}
	if decryptionKey == nil {
		return nil, fmt.Errorf("%w: no decryption key for JWE", ErrDecryption)
	}
	plaintext, err := decrypt(token, header, decryptionKey)
	if err != nil {
		return nil, err
	}
	inner, err := ParseHeader(string(plaintext))
	if err != nil {
		if header.Nested() {
			return nil, err
		}
		if !config.allowUnsecured {
			return nil, fmt.Errorf("%w: encrypted object is not signed", ErrUnsupportedAlgorithm)
		}
		return plaintext, nil
	}
	return verify(string(plaintext), inner, verificationKey, config)
}

// publicKey returns the public part of private keys,
// which go-jose does not accept for verification.
func publicKey(key any) any {
	switch k := key.(type) {
	case jose.JSONWebKey:
		if !k.IsPublic() {
			return k.Public()
		}
	case *jose.JSONWebKey:
		if !k.IsPublic() {
			return k.Public()
		}
	case crypto.Signer:
		return k.Public()
	}
	return key
}

func contains[T comparable](list []T, value T) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
