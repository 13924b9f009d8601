package rp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/zitadel/oidc-rp/internal/testutil"
	"github.com/zitadel/oidc-rp/pkg/crypto"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

func testAuthRequest() *oidc.AuthRequest {
	return &oidc.AuthRequest{
		Scopes:       oidc.Scopes{oidc.ScopeOpenID, oidc.ScopeEmail},
		ResponseType: oidc.ResponseTypeCodeIDToken,
		ClientID:     tu.ValidClientID,
		RedirectURI:  "https://rp.example.com/callback",
		State:        "state",
		Nonce:        tu.ValidNonce,
		Claims: &oidc.ClaimsRequest{
			UserInfo: map[string]*oidc.ClaimRequest{"email": nil},
		},
	}
}

func TestBuildRequestObject(t *testing.T) {
	req := testAuthRequest()
	object := BuildRequestObject(req, tu.ValidIssuer)

	assert.Equal(t, tu.ValidClientID, object.Issuer)
	assert.Equal(t, oidc.Audience{tu.ValidIssuer}, object.Audience)
	assert.NotEmpty(t, object.JWTID)
	assert.Equal(t, RequestObjectLifetime, object.Expiration.AsTime().Sub(object.IssuedAt.AsTime()))
	assert.Equal(t, *req, object.AuthRequest)

	other := BuildRequestObject(req, tu.ValidIssuer)
	assert.NotEqual(t, object.JWTID, other.JWTID)
}

func TestSignRequestObject(t *testing.T) {
	signing, _ := rpKeys()
	opKeys := tu.JWKS()
	encrypted := RequestObjectProtection{
		EncryptionAlg: jose.RSA1_5,
		EncryptionEnc: jose.A128CBC_HS256,
	}
	tests := []struct {
		name          string
		key           *crypto.KeyPair
		protection    RequestObjectProtection
		keys          *jose.JSONWebKeySet
		wantAlg       string
		wantEncrypted bool
		wantErr       error
	}{
		{
			name:    "no key, unsecured",
			wantAlg: "none",
		},
		{
			name:       "explicit none with key",
			key:        signing,
			protection: RequestObjectProtection{SigningAlg: crypto.NoneAlgorithm},
			wantAlg:    "none",
		},
		{
			name:    "signed with key algorithm",
			key:     signing,
			wantAlg: "RS256",
		},
		{
			name:       "algorithm without key",
			protection: RequestObjectProtection{SigningAlg: jose.RS256},
			wantErr:    ErrRequestObjectKey,
		},
		{
			name:          "signed and encrypted",
			key:           signing,
			protection:    encrypted,
			keys:          opKeys,
			wantAlg:       "RS256",
			wantEncrypted: true,
		},
		{
			name:       "encrypted without provider key",
			key:        signing,
			protection: encrypted,
			keys: &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
				tu.SigningKey().PublicKey(crypto.KeyUseSignature),
			}},
			wantErr: ErrProviderEncryption,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			object := BuildRequestObject(testAuthRequest(), tu.ValidIssuer)
			token, err := SignRequestObject(object, tt.key, tt.protection, tt.keys)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr != nil {
				return
			}
			header, err := crypto.ParseHeader(token)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEncrypted, header.Encrypted())

			var verificationKey any
			if tt.key != nil {
				verificationKey = tt.key.PublicKey(crypto.KeyUseSignature)
			}
			payload, err := crypto.Open(token, tu.EncryptionKey().DecryptionKey(), verificationKey, crypto.AllowUnsecured())
			require.NoError(t, err)

			got := new(oidc.RequestObject)
			require.NoError(t, json.Unmarshal(payload, got))
			assert.Equal(t, object.JWTID, got.JWTID)
			assert.Equal(t, tu.ValidClientID, got.Issuer)
			assert.Equal(t, "state", got.State)
			assert.Contains(t, got.Claims.UserInfo, "email")
			assert.Equal(t, jose.SignatureAlgorithm(tt.wantAlg), object.SignatureAlg)
		})
	}
}

func TestSignRequestObject_unsecuredRejectedByDefault(t *testing.T) {
	token, err := SignRequestObject(BuildRequestObject(testAuthRequest(), tu.ValidIssuer), nil, RequestObjectProtection{}, nil)
	require.NoError(t, err)
	_, err = crypto.Verify(token, nil)
	require.ErrorIs(t, err, crypto.ErrUnsupportedAlgorithm)
}

func TestDispatch(t *testing.T) {
	env := newTestEnv(t)
	rp := env.relyingParty(t, oidc.ResponseTypeCodeIDToken)
	ctx := context.Background()

	t.Run("parameters", func(t *testing.T) {
		req := NewAuthRequest(rp)
		req.Claims = &oidc.ClaimsRequest{IDToken: map[string]*oidc.ClaimRequest{"name": nil}}
		req.LoginHint = "tim"
		authURL, err := Dispatch(ctx, rp, req, RequestModeParameters, WithPromptURLParam(oidc.PromptLogin))
		require.NoError(t, err)

		query := authURL.Query()
		assert.Equal(t, env.op.Issuer+"/authorize", authURL.Scheme+"://"+authURL.Host+authURL.Path)
		assert.Equal(t, "openid profile email", query.Get("scope"))
		assert.Equal(t, "code id_token", query.Get("response_type"))
		assert.Equal(t, req.ClientID, query.Get("client_id"))
		assert.Equal(t, req.RedirectURI, query.Get("redirect_uri"))
		assert.Equal(t, req.State, query.Get("state"))
		assert.Equal(t, req.Nonce, query.Get("nonce"))
		assert.Equal(t, "tim", query.Get("login_hint"))
		assert.Equal(t, "login", query.Get("prompt"))
		assert.JSONEq(t, `{"id_token":{"name":null}}`, query.Get("claims"))
		assert.Empty(t, query.Get("request"))
	})
	t.Run("value", func(t *testing.T) {
		req := NewAuthRequest(rp)
		authURL, err := Dispatch(ctx, rp, req, RequestModeValue)
		require.NoError(t, err)

		query := authURL.Query()
		assert.Equal(t, "openid profile email", query.Get("scope"))
		assert.Equal(t, "code id_token", query.Get("response_type"))
		assert.Equal(t, req.ClientID, query.Get("client_id"))
		assert.Empty(t, query.Get("state"))
		assert.Empty(t, query.Get("nonce"))

		signing, _ := rpKeys()
		payload, err := crypto.Verify(query.Get("request"), signing.PublicKey(crypto.KeyUseSignature))
		require.NoError(t, err)
		object := new(oidc.RequestObject)
		require.NoError(t, json.Unmarshal(payload, object))
		assert.Equal(t, req.State, object.State)
		assert.Equal(t, req.Nonce, object.Nonce)
		assert.True(t, object.Audience.Contains(env.op.Issuer))
	})
	t.Run("reference", func(t *testing.T) {
		req := NewAuthRequest(rp)
		authURL, err := Dispatch(ctx, rp, req, RequestModeReference)
		require.NoError(t, err)

		requestURI := authURL.Query().Get("request_uri")
		require.NotEmpty(t, requestURI)
		assert.Empty(t, authURL.Query().Get("request"))

		rec := httptest.NewRecorder()
		env.host.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, requestURI, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, oidc.RequestObjectMediaType, rec.Header().Get("content-type"))
		header, err := crypto.ParseHeader(rec.Body.String())
		require.NoError(t, err)
		assert.Equal(t, "RS256", header.Algorithm)

		env.host.Unpublish(path.Base(requestURI))
	})
}

func TestDispatch_errors(t *testing.T) {
	env := newTestEnv(t)
	rp := env.relyingParty(t, oidc.ResponseTypeCode)
	noHost := env.relyingParty(t, oidc.ResponseTypeCode)
	noHost.(*relyingParty).host = nil

	tests := []struct {
		name    string
		rp      RelyingParty
		req     func(*oidc.AuthRequest)
		mode    RequestMode
		wantErr error
	}{
		{
			name: "missing openid",
			rp:   rp,
			req: func(req *oidc.AuthRequest) {
				req.Scopes = nil
			},
			mode:    RequestModeParameters,
			wantErr: oidc.ErrMissingOpenIDScope,
		},
		{
			name: "missing redirect_uri",
			rp:   rp,
			req: func(req *oidc.AuthRequest) {
				req.RedirectURI = ""
			},
			mode:    RequestModeValue,
			wantErr: oidc.ErrInvalidAuthRequest,
		},
		{
			name: "request and request_uri",
			rp:   rp,
			req: func(req *oidc.AuthRequest) {
				req.Request = "a"
				req.RequestURI = "b"
			},
			mode:    RequestModeParameters,
			wantErr: oidc.ErrRequestAndRequestURI,
		},
		{
			name:    "unknown mode",
			rp:      rp,
			mode:    "push",
			wantErr: ErrRequestMode,
		},
		{
			name:    "reference without host",
			rp:      noHost,
			mode:    RequestModeReference,
			wantErr: ErrRequestObjectHost,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewAuthRequest(tt.rp)
			if tt.req != nil {
				tt.req(req)
			}
			_, err := Dispatch(context.Background(), tt.rp, req, tt.mode)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewAuthRequest(t *testing.T) {
	env := newTestEnv(t)
	rp := env.relyingParty(t, oidc.ResponseTypeIDToken)

	a, b := NewAuthRequest(rp), NewAuthRequest(rp)
	require.NoError(t, a.Validate())
	assert.Equal(t, oidc.ResponseTypeIDToken, a.ResponseType)
	assert.Equal(t, rp.OAuthConfig().ClientID, a.ClientID)
	assert.Equal(t, rp.OAuthConfig().RedirectURL, a.RedirectURI)
	assert.NotEqual(t, a.State, b.State)
	assert.NotEqual(t, a.Nonce, b.Nonce)
}
