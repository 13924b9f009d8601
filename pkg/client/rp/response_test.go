package rp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/zitadel/oidc-rp/internal/testutil"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

func TestValidateResponse(t *testing.T) {
	rp := &relyingParty{idTokenVerifier: testVerifier(tu.ValidClientID)}
	idToken, _ := tu.ValidIDToken()
	hashedIDToken, hashedClaims := tu.ValidIDTokenWithHashes()

	tests := []struct {
		name         string
		responseType oidc.ResponseType
		nonce        string
		params       url.Values
		want         oidc.AuthorizationResponse
		wantErr      error
	}{
		{
			name:         "code",
			responseType: oidc.ResponseTypeCode,
			params:       url.Values{"state": {"s1"}, "code": {tu.ValidCode}},
			want:         &oidc.CodeResponse{State: "s1", Code: tu.ValidCode},
		},
		{
			name:         "state checked first",
			responseType: oidc.ResponseTypeIDTokenOnly,
			params:       url.Values{"state": {"s2"}, "id_token": {"foobar"}},
			wantErr:      oidc.ErrStateMismatch,
		},
		{
			name:         "state missing",
			responseType: oidc.ResponseTypeCode,
			params:       url.Values{"code": {tu.ValidCode}},
			wantErr:      oidc.ErrMissingResponseField,
		},
		{
			name:         "code missing",
			responseType: oidc.ResponseTypeCode,
			params:       url.Values{"state": {"s1"}},
			wantErr:      oidc.ErrMissingResponseField,
		},
		{
			name:         "token_type missing",
			responseType: oidc.ResponseTypeIDToken,
			params:       url.Values{"state": {"s1"}, "id_token": {hashedIDToken}, "access_token": {tu.ValidAccessToken}},
			wantErr:      oidc.ErrMissingResponseField,
		},
		{
			name:         "error response",
			responseType: oidc.ResponseTypeCode,
			params:       url.Values{"state": {"s1"}, "error": {"access_denied"}, "error_description": {"no"}},
			wantErr:      oidc.ErrAccessDenied(),
		},
		{
			name:         "id_token",
			responseType: oidc.ResponseTypeIDTokenOnly,
			params:       url.Values{"state": {"s1"}, "id_token": {hashedIDToken}},
			want:         &oidc.ImplicitResponse{State: "s1", IDToken: hashedIDToken, IDTokenClaims: hashedClaims},
		},
		{
			name:         "id_token wrong nonce",
			responseType: oidc.ResponseTypeIDTokenOnly,
			nonce:        "other",
			params:       url.Values{"state": {"s1"}, "id_token": {idToken}},
			wantErr:      oidc.ErrNonceInvalid,
		},
		{
			name:         "id_token token",
			responseType: oidc.ResponseTypeIDToken,
			params: url.Values{
				"state": {"s1"}, "id_token": {hashedIDToken},
				"access_token": {tu.ValidAccessToken}, "token_type": {oidc.BearerToken},
			},
			want: &oidc.ImplicitResponse{
				State: "s1", IDToken: hashedIDToken, IDTokenClaims: hashedClaims,
				AccessToken: tu.ValidAccessToken, TokenType: oidc.BearerToken,
			},
		},
		{
			name:         "id_token token without at_hash",
			responseType: oidc.ResponseTypeIDToken,
			params: url.Values{
				"state": {"s1"}, "id_token": {idToken},
				"access_token": {tu.ValidAccessToken}, "token_type": {oidc.BearerToken},
			},
			wantErr: oidc.ErrAtHash,
		},
		{
			name:         "id_token token with other access token",
			responseType: oidc.ResponseTypeIDToken,
			params: url.Values{
				"state": {"s1"}, "id_token": {hashedIDToken},
				"access_token": {"other"}, "token_type": {oidc.BearerToken},
			},
			wantErr: oidc.ErrAtHash,
		},
		{
			name:         "code id_token",
			responseType: oidc.ResponseTypeCodeIDToken,
			params:       url.Values{"state": {"s1"}, "code": {tu.ValidCode}, "id_token": {hashedIDToken}},
			want:         &oidc.HybridResponse{State: "s1", Code: tu.ValidCode, IDToken: hashedIDToken, IDTokenClaims: hashedClaims},
		},
		{
			name:         "code id_token with other code",
			responseType: oidc.ResponseTypeCodeIDToken,
			params:       url.Values{"state": {"s1"}, "code": {"other"}, "id_token": {hashedIDToken}},
			wantErr:      oidc.ErrCHash,
		},
		{
			name:         "code id_token without c_hash",
			responseType: oidc.ResponseTypeCodeIDToken,
			params:       url.Values{"state": {"s1"}, "code": {tu.ValidCode}, "id_token": {idToken}},
			wantErr:      oidc.ErrCHash,
		},
		{
			name:         "code token",
			responseType: oidc.ResponseTypeCodeToken,
			params: url.Values{
				"state": {"s1"}, "code": {tu.ValidCode},
				"access_token": {tu.ValidAccessToken}, "token_type": {oidc.BearerToken},
			},
			want: &oidc.HybridResponse{
				State: "s1", Code: tu.ValidCode,
				AccessToken: tu.ValidAccessToken, TokenType: oidc.BearerToken,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce := tt.nonce
			if nonce == "" {
				nonce = tu.ValidNonce
			}
			req := &oidc.AuthRequest{ResponseType: tt.responseType, State: "s1", Nonce: nonce}
			got, err := ValidateResponse(context.Background(), rp, req, tt.params)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateResponse_opError(t *testing.T) {
	rp := &relyingParty{idTokenVerifier: testVerifier(tu.ValidClientID)}
	req := &oidc.AuthRequest{ResponseType: oidc.ResponseTypeCode, State: "s1"}
	_, err := ValidateResponse(context.Background(), rp, req, url.Values{
		"state":             {"s1"},
		"error":             {"login_required"},
		"error_description": {"user must log in"},
	})
	var opErr *oidc.Error
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, oidc.LoginRequired, opErr.ErrorType)
	assert.Equal(t, "user must log in", opErr.Description)
	assert.Equal(t, "s1", opErr.State)
}

func TestResponseHandler(t *testing.T) {
	env := newTestEnv(t)
	cookies := httphelper.NewCookieHandler([]byte("test1234test1234test1234test1234"), nil, httphelper.WithUnsecure())
	rp := env.relyingParty(t, oidc.ResponseTypeIDToken, WithCookieHandler(cookies))

	rec := httptest.NewRecorder()
	AuthURLHandler(func() string { return "the-state" }, rp)(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "id_token token", authURL.Query().Get("response_type"))

	opRec := httptest.NewRecorder()
	env.op.ServeHTTP(opRec, httptest.NewRequest(http.MethodGet, authURL.String(), nil))
	require.Equal(t, http.StatusFound, opRec.Code)

	// the fragment arrives as form_post from the relay page
	location, err := url.Parse(opRec.Header().Get("Location"))
	require.NoError(t, err)
	callback := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(location.Fragment))
	callback.Header.Set("content-type", "application/x-www-form-urlencoded")
	for _, cookie := range rec.Result().Cookies() {
		callback.AddCookie(cookie)
	}

	var got oidc.AuthorizationResponse
	var info *oidc.UserInfo
	ResponseHandler(func(w http.ResponseWriter, r *http.Request, req *oidc.AuthRequest, resp oidc.AuthorizationResponse, rp RelyingParty) {
		assert.Equal(t, "the-state", req.State)
		assert.Equal(t, authURL.Query().Get("nonce"), req.Nonce)
		got = resp
		var err error
		info, err = GetUserInfo(r.Context(), rp, req, resp)
		assert.NoError(t, err)
	}, rp)(httptest.NewRecorder(), callback)

	require.IsType(t, &oidc.ImplicitResponse{}, got)
	implicit := got.(*oidc.ImplicitResponse)
	assert.NotEmpty(t, implicit.AccessToken)
	assert.Equal(t, tu.ValidSubject, implicit.IDTokenClaims.Subject)
	assert.Equal(t, authURL.Query().Get("nonce"), implicit.IDTokenClaims.Nonce)
	require.NotNil(t, info)
	assert.Equal(t, "tim@local.com", info.Email)
}

func TestResponseHandler_errors(t *testing.T) {
	env := newTestEnv(t)
	cookies := httphelper.NewCookieHandler([]byte("test1234test1234test1234test1234"), nil, httphelper.WithUnsecure())
	tests := []struct {
		name       string
		cookies    *httphelper.CookieHandler
		setCookies bool
		query      string
		wantStatus int
	}{
		{
			name:       "no cookie handler",
			query:      "state=s1&code=abc",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no state cookie",
			cookies:    cookies,
			query:      "state=s1&code=abc",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "state mismatch",
			cookies:    cookies,
			setCookies: true,
			query:      "state=other&code=abc",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "op error",
			cookies:    cookies,
			setCookies: true,
			query:      "state=s1&error=access_denied",
			wantStatus: http.StatusTeapot,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithErrorHandler(func(w http.ResponseWriter, r *http.Request, errorType, errorDesc, state string) {
				http.Error(w, errorType, http.StatusTeapot)
			})}
			if tt.cookies != nil {
				opts = append(opts, WithCookieHandler(tt.cookies))
			}
			rp := env.relyingParty(t, oidc.ResponseTypeCode, opts...)

			req := httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil)
			if tt.setCookies {
				setter := httptest.NewRecorder()
				require.NoError(t, tt.cookies.SetCookie(setter, stateParam, "s1"))
				require.NoError(t, tt.cookies.SetCookie(setter, nonceParam, "n1"))
				for _, cookie := range setter.Result().Cookies() {
					req.AddCookie(cookie)
				}
			}
			rec := httptest.NewRecorder()
			ResponseHandler(func(http.ResponseWriter, *http.Request, *oidc.AuthRequest, oidc.AuthorizationResponse, RelyingParty) {
				t.Fatal("callback must not be called")
			}, rp)(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
