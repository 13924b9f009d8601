package rp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	tu "github.com/zitadel/oidc-rp/internal/testutil"
	"github.com/zitadel/oidc-rp/internal/testutil/mockop"
	"github.com/zitadel/oidc-rp/pkg/config"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

func Test_verifyTokenResponse(t *testing.T) {
	verifier := testVerifier(tu.ValidClientID)
	tests := []struct {
		name    string
		tokens  func() (token *oauth2.Token, want *oidc.Tokens)
		wantErr error
	}{
		{
			name: "id_token missing error",
			tokens: func() (*oauth2.Token, *oidc.Tokens) {
				token := &oauth2.Token{
					AccessToken: tu.ValidAccessToken,
				}
				return token, &oidc.Tokens{
					Token: token,
				}
			},
			wantErr: ErrMissingIDToken,
		},
		{
			name: "verify tokens error",
			tokens: func() (*oauth2.Token, *oidc.Tokens) {
				token := &oauth2.Token{
					AccessToken: tu.ValidAccessToken,
				}
				token = token.WithExtra(map[string]any{
					"id_token": "foobar",
				})
				return token, nil
			},
			wantErr: oidc.ErrParse,
		},
		{
			name: "success, with id_token",
			tokens: func() (*oauth2.Token, *oidc.Tokens) {
				token := &oauth2.Token{
					AccessToken: tu.ValidAccessToken,
				}
				idToken, claims := tu.ValidIDToken()
				token = token.WithExtra(map[string]any{
					"id_token": idToken,
				})
				return token, &oidc.Tokens{
					Token:         token,
					IDTokenClaims: claims,
					IDToken:       idToken,
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, want := tt.tokens()
			got, err := verifyTokenResponse(context.Background(), token, verifier)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, want, got)
		})
	}
}

func TestNewRelyingPartyOIDC(t *testing.T) {
	op := mockop.New(t)
	rp, err := NewRelyingPartyOIDC(context.Background(), op.Issuer, "client", "secret", "http://localhost/callback", []string{oidc.ScopeOpenID},
		WithSigningAlgsFromDiscovery(),
	)
	require.NoError(t, err)

	config := rp.OAuthConfig()
	assert.Equal(t, op.Issuer+"/authorize", config.Endpoint.AuthURL)
	assert.Equal(t, op.Issuer+"/token", config.Endpoint.TokenURL)
	assert.Equal(t, op.Issuer+"/userinfo", rp.UserinfoEndpoint())
	assert.Equal(t, oidc.ResponseTypeCode, rp.ResponseType())
	assert.Equal(t, DefaultCallbackTimeout, rp.CallbackTimeout())
	assert.IsType(t, BrowserUserAgent{}, rp.UserAgent())
	assert.Nil(t, rp.DeliveryChannel())
	assert.Equal(t, []string{"RS256"}, rp.IDTokenVerifier().SupportedSignAlgs)

	mode, _ := rp.RequestObject()
	assert.Equal(t, RequestModeParameters, mode)

	metadata, err := rp.ProviderMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, op.Issuer, metadata.Issuer)

	keys, err := rp.ProviderKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys.Keys, 2)
}

func TestNewRelyingPartyOIDC_options(t *testing.T) {
	op := mockop.New(t)
	tests := []struct {
		name    string
		opt     Option
		wantErr error
	}{
		{
			name:    "unsupported response type",
			opt:     WithResponseType("code foo"),
			wantErr: oidc.ErrUnsupportedResponseType,
		},
		{
			name:    "unknown request mode",
			opt:     WithRequestObject("push", RequestObjectProtection{}),
			wantErr: ErrRequestMode,
		},
		{
			name:    "discovery failure",
			opt:     WithCustomDiscoveryUrl(op.Issuer + "/not-found"),
			wantErr: oidc.ErrDiscoveryFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRelyingPartyOIDC(context.Background(), op.Issuer, "client", "secret", "http://localhost/callback", nil, tt.opt)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewRelyingPartyOIDC_hostDeliveryChannel(t *testing.T) {
	op := mockop.New(t)
	host := NewHost(WithBaseURL("http://localhost:9999"))
	rp, err := NewRelyingPartyOIDC(context.Background(), op.Issuer, "client", "secret", "http://localhost:9999/callback", nil,
		WithHost(host),
		WithCallbackTimeout(-1),
	)
	require.NoError(t, err)
	assert.Same(t, host.Callback(), rp.DeliveryChannel())
	assert.Equal(t, DefaultCallbackTimeout, rp.CallbackTimeout())
}

func TestAuthURL(t *testing.T) {
	op := mockop.New(t)
	tests := []struct {
		name         string
		responseType oidc.ResponseType
		opts         []AuthURLOpt
		want         url.Values
	}{
		{
			name:         "code",
			responseType: oidc.ResponseTypeCode,
			want: url.Values{
				"response_type": {"code"},
				"state":         {"s1"},
			},
		},
		{
			name:         "nonce and prompt",
			responseType: oidc.ResponseTypeIDToken,
			opts:         []AuthURLOpt{WithNonceURLParam("n1"), WithPrompt(oidc.PromptLogin)},
			want: url.Values{
				"response_type": {"id_token token"},
				"state":         {"s1"},
				"nonce":         {"n1"},
				"prompt":        {"login"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp, err := NewRelyingPartyOIDC(context.Background(), op.Issuer, "client", "secret", "http://localhost/callback", []string{oidc.ScopeOpenID},
				WithResponseType(tt.responseType),
			)
			require.NoError(t, err)
			got, err := url.Parse(AuthURL("s1", rp, tt.opts...))
			require.NoError(t, err)
			query := got.Query()
			for key, value := range tt.want {
				assert.Equal(t, value, query[key], key)
			}
			assert.Equal(t, "client", query.Get("client_id"))
		})
	}
}

func TestNewRelyingPartyFromConfig(t *testing.T) {
	op := mockop.New(t)
	dir := t.TempDir()
	signing, encryption := rpKeys()
	writePEM := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o600))
		return path
	}
	signCert, signKey := tu.PEM(signing)
	encCert, encKey := tu.PEM(encryption)

	cfg := &config.Config{
		Issuer:          op.Issuer,
		ClientID:        mockop.DefaultClientID,
		ClientSecret:    mockop.DefaultClientSecret,
		RedirectURI:     "http://localhost:9999/callback",
		Scopes:          []string{oidc.ScopeOpenID, oidc.ScopeEmail},
		ResponseType:    string(oidc.ResponseTypeCodeIDToken),
		HTTPTimeout:     10 * time.Second,
		CallbackTimeout: time.Minute,
	}
	cfg.Keys.SigningCertFile = writePEM("sign.crt", signCert)
	cfg.Keys.SigningKeyFile = writePEM("sign.key", signKey)
	cfg.Keys.EncryptionCertFile = writePEM("enc.crt", encCert)
	cfg.Keys.EncryptionKeyFile = writePEM("enc.key", encKey)
	cfg.RequestObject.Mode = config.RequestModeReference
	cfg.RequestObject.EncryptionAlg = "RSA1_5"
	cfg.RequestObject.EncryptionEnc = "A128CBC-HS256"
	cfg.Host.BaseURL = "https://rp.example.com"
	cfg.Cookie.HashKey = "test1234test1234test1234test1234"

	rp, err := NewRelyingPartyFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, oidc.ResponseTypeCodeIDToken, rp.ResponseType())
	assert.Equal(t, time.Minute, rp.CallbackTimeout())
	assert.Equal(t, 10*time.Second, rp.HttpClient().Timeout)
	assert.NotNil(t, rp.CookieHandler())
	require.NotNil(t, rp.SigningKey())
	require.NotNil(t, rp.EncryptionKey())
	assert.Equal(t, signing.Certificate.Raw, rp.SigningKey().Certificate.Raw)
	assert.NotNil(t, rp.IDTokenVerifier().DecryptionKey)

	mode, protection := rp.RequestObject()
	assert.Equal(t, RequestModeReference, mode)
	assert.True(t, protection.encrypted())

	require.NotNil(t, rp.Host())
	jwksURI, err := rp.Host().JwksURI()
	require.NoError(t, err)
	assert.Equal(t, "https://rp.example.com/jwks", jwksURI)
	assert.Len(t, rp.Host().Keys().Keys, 2)
}

func TestNewRelyingPartyFromConfig_invalid(t *testing.T) {
	_, err := NewRelyingPartyFromConfig(context.Background(), &config.Config{})
	require.Error(t, err)
}

func TestAuthURLHandler_CodeExchangeHandler(t *testing.T) {
	env := newTestEnv(t)
	cookies := httphelper.NewCookieHandler([]byte("test1234test1234test1234test1234"), nil, httphelper.WithUnsecure())
	rp := env.relyingParty(t, oidc.ResponseTypeCode, WithCookieHandler(cookies))

	rec := httptest.NewRecorder()
	AuthURLHandler(func() string { return "the-state" }, rp)(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "the-state", authURL.Query().Get("state"))
	assert.NotEmpty(t, authURL.Query().Get("nonce"))

	// the OP redirects back with the code
	opRec := httptest.NewRecorder()
	env.op.ServeHTTP(opRec, httptest.NewRequest(http.MethodGet, authURL.String(), nil))
	require.Equal(t, http.StatusFound, opRec.Code)
	callback := httptest.NewRequest(http.MethodGet, opRec.Header().Get("Location"), nil)
	for _, cookie := range rec.Result().Cookies() {
		callback.AddCookie(cookie)
	}

	var got *oidc.Tokens
	handler := CodeExchangeHandler(func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens, state string, rp RelyingParty) {
		assert.Equal(t, "the-state", state)
		got = tokens
	}, rp)
	handler(httptest.NewRecorder(), callback)
	require.NotNil(t, got)
	assert.Equal(t, tu.ValidSubject, got.IDTokenClaims.Subject)
	assert.Equal(t, authURL.Query().Get("nonce"), got.IDTokenClaims.Nonce)
}

func TestCodeExchangeHandler_error(t *testing.T) {
	env := newTestEnv(t)
	rp := env.relyingParty(t, oidc.ResponseTypeCode, WithErrorHandler(
		func(w http.ResponseWriter, r *http.Request, errorType string, errorDesc string, state string) {
			http.Error(w, errorType+":"+state, http.StatusTeapot)
		}),
	)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/callback?state=s1&error=access_denied", nil)
	CodeExchangeHandler(func(http.ResponseWriter, *http.Request, *oidc.Tokens, string, RelyingParty) {
		t.Fatal("callback must not be called")
	}, rp)(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_denied:s1")
}
