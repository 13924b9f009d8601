package crypto_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/zitadel/oidc-rp/internal/testutil"
	zcrypto "github.com/zitadel/oidc-rp/pkg/crypto"
)

var payload = []byte(`{"iss":"client","aud":"https://op.example.com","scope":"openid"}`)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name          string
		token         string
		wantAlg       string
		wantEncrypted bool
		wantErr       error
	}{
		{
			name:    "JWS",
			token:   "eyJhbGciOiJSUzI1NiIsImtpZCI6IjEifQ.e30.c2ln",
			wantAlg: "RS256",
		},
		{
			name:          "JWE",
			token:         "eyJhbGciOiJSU0ExXzUiLCJlbmMiOiJBMTI4Q0JDLUhTMjU2In0.a.b.c.d",
			wantAlg:       "RSA1_5",
			wantEncrypted: true,
		},
		{
			name:    "JWE without enc",
			token:   "eyJhbGciOiJSU0ExXzUifQ.a.b.c.d",
			wantErr: zcrypto.ErrMalformed,
		},
		{
			name:    "four segments",
			token:   "a.b.c.d",
			wantErr: zcrypto.ErrMalformed,
		},
		{
			name:    "header not base64",
			token:   "~.e30.c2ln",
			wantErr: zcrypto.ErrMalformed,
		},
		{
			name:    "header without alg",
			token:   "e30.e30.c2ln",
			wantErr: zcrypto.ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := zcrypto.ParseHeader(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlg, got.Algorithm)
			assert.Equal(t, tt.wantEncrypted, got.Encrypted())
		})
	}
}

func TestSignVerify(t *testing.T) {
	pair := tu.NewKeyPair("rp")
	other := tu.NewKeyPair("other")
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name      string
		alg       jose.SignatureAlgorithm
		signKey   any
		verifyKey any
		opts      []zcrypto.VerifyOption
		wantErr   error
	}{
		{
			name:      "RS256",
			alg:       jose.RS256,
			signKey:   pair.SigningKey(),
			verifyKey: pair.PublicKey(zcrypto.KeyUseSignature),
		},
		{
			name:      "RS256 verified with private key",
			alg:       jose.RS256,
			signKey:   pair.PrivateKey,
			verifyKey: pair.PrivateKey,
		},
		{
			name:      "PS512",
			alg:       jose.PS512,
			signKey:   pair.PrivateKey,
			verifyKey: pair.PrivateKey.Public(),
		},
		{
			name:      "ES256",
			alg:       jose.ES256,
			signKey:   ecKey,
			verifyKey: &ecKey.PublicKey,
		},
		{
			name:      "wrong key",
			alg:       jose.RS256,
			signKey:   pair.SigningKey(),
			verifyKey: other.PublicKey(zcrypto.KeyUseSignature),
			wantErr:   zcrypto.ErrBadSignature,
		},
		{
			name:      "algorithm not allowed",
			alg:       jose.RS256,
			signKey:   pair.PrivateKey,
			verifyKey: pair.PrivateKey.Public(),
			opts:      []zcrypto.VerifyOption{zcrypto.WithAlgorithms(jose.ES256)},
			wantErr:   zcrypto.ErrUnsupportedAlgorithm,
		},
		{
			name:    "none rejected by default",
			alg:     zcrypto.NoneAlgorithm,
			wantErr: zcrypto.ErrUnsupportedAlgorithm,
		},
		{
			name: "none allowed",
			alg:  zcrypto.NoneAlgorithm,
			opts: []zcrypto.VerifyOption{zcrypto.AllowUnsecured()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := zcrypto.Sign(payload, tt.signKey, tt.alg)
			require.NoError(t, err)
			header, err := zcrypto.ParseHeader(token)
			require.NoError(t, err)
			assert.Equal(t, string(tt.alg), header.Algorithm)

			got, err := zcrypto.Verify(token, tt.verifyKey, tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestSign_unsupported(t *testing.T) {
	_, err := zcrypto.Sign(payload, []byte("secret"), jose.HS256)
	assert.ErrorIs(t, err, zcrypto.ErrUnsupportedAlgorithm)
}

func TestSign_none(t *testing.T) {
	token, err := zcrypto.Sign(payload, nil, zcrypto.NoneAlgorithm)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(token, "."), "unsecured JWS has an empty signature")
}

func TestVerify_tamperedNone(t *testing.T) {
	token, err := zcrypto.Sign(payload, nil, zcrypto.NoneAlgorithm)
	require.NoError(t, err)
	_, err = zcrypto.Verify(token+"c2ln", nil, zcrypto.AllowUnsecured())
	assert.ErrorIs(t, err, zcrypto.ErrBadSignature)
}

func TestVerify_JWE(t *testing.T) {
	pair := tu.NewKeyPair("rp")
	token, err := zcrypto.Encrypt(payload, pair.PublicKey(zcrypto.KeyUseEncryption), jose.RSA1_5, jose.A128CBC_HS256)
	require.NoError(t, err)
	_, err = zcrypto.Verify(token, pair.PrivateKey)
	assert.ErrorIs(t, err, zcrypto.ErrMalformed)
}

func TestEncryptDecrypt(t *testing.T) {
	pair := tu.NewKeyPair("op-enc")
	other := tu.NewKeyPair("other")

	tests := []struct {
		name       string
		alg        jose.KeyAlgorithm
		enc        jose.ContentEncryption
		encryptKey any
		decryptKey any
		wantErr    error
	}{
		{
			name:       "RSA1_5 A128CBC-HS256",
			alg:        jose.RSA1_5,
			enc:        jose.A128CBC_HS256,
			encryptKey: pair.PublicKey(zcrypto.KeyUseEncryption),
			decryptKey: pair.PrivateKey,
		},
		{
			name:       "RSA-OAEP A256GCM",
			alg:        jose.RSA_OAEP,
			enc:        jose.A256GCM,
			encryptKey: pair.PrivateKey.Public(),
			decryptKey: pair.DecryptionKey(),
		},
		{
			name:       "wrong key",
			alg:        jose.RSA_OAEP_256,
			enc:        jose.A128GCM,
			encryptKey: pair.PrivateKey.Public(),
			decryptKey: other.PrivateKey,
			wantErr:    zcrypto.ErrDecryption,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := zcrypto.Encrypt(payload, tt.encryptKey, tt.alg, tt.enc)
			require.NoError(t, err)
			header, err := zcrypto.ParseHeader(token)
			require.NoError(t, err)
			assert.True(t, header.Encrypted())
			assert.Equal(t, string(tt.enc), header.Encryption)

			got, err := zcrypto.Decrypt(token, tt.decryptKey)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestEncrypt_unsupported(t *testing.T) {
	pair := tu.NewKeyPair("op-enc")
	_, err := zcrypto.Encrypt(payload, pair.PrivateKey.Public(), jose.DIRECT, jose.A128GCM)
	assert.ErrorIs(t, err, zcrypto.ErrUnsupportedAlgorithm)
	_, err = zcrypto.Encrypt(payload, pair.PrivateKey.Public(), jose.RSA1_5, "A1CBC")
	assert.ErrorIs(t, err, zcrypto.ErrUnsupportedAlgorithm)
}

func TestDecrypt_JWS(t *testing.T) {
	pair := tu.NewKeyPair("rp")
	token, err := zcrypto.Sign(payload, pair.PrivateKey, jose.RS256)
	require.NoError(t, err)
	_, err = zcrypto.Decrypt(token, pair.PrivateKey)
	assert.ErrorIs(t, err, zcrypto.ErrMalformed)
}

func TestOpen(t *testing.T) {
	rp := tu.NewKeyPair("rp")
	op := tu.NewKeyPair("op-enc")
	opEncKey := op.PublicKey(zcrypto.KeyUseEncryption)

	signed, err := zcrypto.Sign(payload, rp.SigningKey(), jose.RS256)
	require.NoError(t, err)
	unsecured, err := zcrypto.Sign(payload, nil, zcrypto.NoneAlgorithm)
	require.NoError(t, err)
	nested, err := zcrypto.EncryptSigned(signed, opEncKey, jose.RSA1_5, jose.A128CBC_HS256)
	require.NoError(t, err)
	nestedUnsecured, err := zcrypto.EncryptSigned(unsecured, opEncKey, jose.RSA1_5, jose.A128CBC_HS256)
	require.NoError(t, err)
	encryptedOnly, err := zcrypto.Encrypt(payload, opEncKey, jose.RSA1_5, jose.A128CBC_HS256)
	require.NoError(t, err)
	nestedGarbage, err := zcrypto.EncryptSigned("not a jwt", opEncKey, jose.RSA1_5, jose.A128CBC_HS256)
	require.NoError(t, err)

	header, err := zcrypto.ParseHeader(nested)
	require.NoError(t, err)
	assert.True(t, header.Nested())

	tests := []struct {
		name      string
		token     string
		decKey    any
		verKey    any
		opts      []zcrypto.VerifyOption
		wantErr   error
		wantPlain []byte
	}{
		{
			name:   "signed",
			token:  signed,
			verKey: rp.PublicKey(zcrypto.KeyUseSignature),
		},
		{
			name:   "signed then encrypted",
			token:  nested,
			decKey: op.PrivateKey,
			verKey: rp.PublicKey(zcrypto.KeyUseSignature),
		},
		{
			name:    "signed then encrypted, no decryption key",
			token:   nested,
			verKey:  rp.PublicKey(zcrypto.KeyUseSignature),
			wantErr: zcrypto.ErrDecryption,
		},
		{
			name:    "signed then encrypted, wrong signer",
			token:   nested,
			decKey:  op.PrivateKey,
			verKey:  op.PublicKey(zcrypto.KeyUseSignature),
			wantErr: zcrypto.ErrBadSignature,
		},
		{
			name:    "unsecured then encrypted, rejected",
			token:   nestedUnsecured,
			decKey:  op.PrivateKey,
			wantErr: zcrypto.ErrUnsupportedAlgorithm,
		},
		{
			name:   "unsecured then encrypted, allowed",
			token:  nestedUnsecured,
			decKey: op.PrivateKey,
			opts:   []zcrypto.VerifyOption{zcrypto.AllowUnsecured()},
		},
		{
			name:    "encrypted only, rejected",
			token:   encryptedOnly,
			decKey:  op.PrivateKey,
			wantErr: zcrypto.ErrUnsupportedAlgorithm,
		},
		{
			name:   "encrypted only, allowed",
			token:  encryptedOnly,
			decKey: op.PrivateKey,
			opts:   []zcrypto.VerifyOption{zcrypto.AllowUnsecured()},
		},
		{
			name:    "nested content type without JWS",
			token:   nestedGarbage,
			decKey:  op.PrivateKey,
			opts:    []zcrypto.VerifyOption{zcrypto.AllowUnsecured()},
			wantErr: zcrypto.ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := zcrypto.Open(tt.token, tt.decKey, tt.verKey, tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestSignObject(t *testing.T) {
	pair := tu.NewKeyPair("rp")
	object := map[string]any{"iss": "client", "nonce": "123"}
	token, err := zcrypto.SignObject(object, pair.SigningKey(), jose.RS256)
	require.NoError(t, err)

	header, err := zcrypto.ParseHeader(token)
	require.NoError(t, err)
	assert.Equal(t, pair.KeyID, header.KeyID)
	assert.Equal(t, "JWT", header.Type)

	data, err := zcrypto.Verify(token, pair.PrivateKey.Public())
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, object, got)
}
