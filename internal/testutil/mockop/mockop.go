// Package mockop is an in-process OpenID Provider for tests.
// It implements discovery, the key set, dynamic registration, the
// authorization endpoint with request objects and every response mode,
// the token endpoint and the UserInfo endpoint.
package mockop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/zitadel/oidc-rp/internal/testutil"
	"github.com/zitadel/oidc-rp/pkg/crypto"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

const (
	DefaultClientID     = "test-client"
	DefaultClientSecret = "test-secret"

	tokenLifetime = 5 * time.Minute
)

// Endpoint names passed to IDTokenHook.
const (
	EndpointAuthorize = "authorize"
	EndpointToken     = "token"
)

// Received is an authentication request as the OP decoded it.
type Received struct {
	Request *oidc.AuthRequest

	// Object is set when the request was passed as request object.
	Object       *oidc.RequestObject
	SignatureAlg string
	Encrypted    bool
	ByReference  bool
}

// OP is the mock provider. Exported fields may be changed
// before the requests they affect are sent.
type OP struct {
	Issuer        string
	SigningKey    *crypto.KeyPair
	EncryptionKey *crypto.KeyPair
	User          *oidc.UserInfo

	// ClientKeys are the public keys of the client, used to verify request
	// objects and to encrypt ID Tokens. Registration replaces them with the
	// jwks of the registered metadata.
	ClientKeys      *jose.JSONWebKeySet
	EncryptIDTokens bool

	// RequestObjectClient fetches request_uri, http.DefaultClient if nil.
	RequestObjectClient *http.Client

	// InitialAccessToken protects the registration endpoint when set.
	InitialAccessToken string

	// Deny answers every authentication request with the error.
	Deny *oidc.Error

	// Hooks to tamper with the responses.
	DiscoveryHook    func(*oidc.DiscoveryConfiguration)
	IDTokenHook      func(endpoint string, claims *oidc.IDTokenClaims)
	RegistrationHook func(*oidc.ClientInformation)
	UserinfoHook     func(claims map[string]any)

	mu           sync.Mutex
	clientID     string
	clientSecret string
	codes        map[string]*grant
	tokens       map[string]*grant
	received     []Received

	server *httptest.Server
	router chi.Router
}

type grant struct {
	req      *oidc.AuthRequest
	authTime time.Time
}

// New starts an OP on a local test server, which is closed
// with the end of the test.
func New(t testing.TB) *OP {
	t.Helper()
	op := &OP{
		SigningKey:    testutil.SigningKey(),
		EncryptionKey: testutil.EncryptionKey(),
		User:          testutil.ValidUserInfo(),
		clientID:      DefaultClientID,
		clientSecret:  DefaultClientSecret,
		codes:         make(map[string]*grant),
		tokens:        make(map[string]*grant),
	}
	op.router = op.routes()
	op.server = httptest.NewServer(op.router)
	op.Issuer = op.server.URL
	t.Cleanup(op.server.Close)
	return op
}

func (op *OP) routes() chi.Router {
	router := chi.NewRouter()
	router.Get(oidc.DiscoveryEndpoint, op.discoveryHandler)
	router.Get("/keys", op.keysHandler)
	router.Post("/register", op.registrationHandler)
	router.HandleFunc("/authorize", op.authorizeHandler)
	router.Post("/token", op.tokenHandler)
	router.HandleFunc("/userinfo", op.userinfoHandler)
	return router
}

func (op *OP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op.router.ServeHTTP(w, r)
}

// Client returns the credentials of the client known to the OP.
func (op *OP) Client() (clientID, clientSecret string) {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.clientID, op.clientSecret
}

// Received returns the authentication requests in order of arrival.
func (op *OP) Received() []Received {
	op.mu.Lock()
	defer op.mu.Unlock()
	return append([]Received(nil), op.received...)
}

// LastReceived returns the latest authentication request.
func (op *OP) LastReceived() (Received, bool) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if len(op.received) == 0 {
		return Received{}, false
	}
	return op.received[len(op.received)-1], true
}

// Discovery returns the provider metadata served by the OP.
func (op *OP) Discovery() *oidc.DiscoveryConfiguration {
	config := &oidc.DiscoveryConfiguration{
		Issuer:                 op.Issuer,
		AuthorizationEndpoint:  op.Issuer + "/authorize",
		TokenEndpoint:          op.Issuer + "/token",
		UserinfoEndpoint:       op.Issuer + "/userinfo",
		JwksURI:                op.Issuer + "/keys",
		RegistrationEndpoint:   op.Issuer + "/register",
		ScopesSupported:        []string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail, oidc.ScopeAddress, oidc.ScopePhone},
		ResponseTypesSupported: responseTypes,
		ResponseModesSupported: []string{
			string(oidc.ResponseModeQuery),
			string(oidc.ResponseModeFragment),
			string(oidc.ResponseModeFormPost),
		},
		GrantTypesSupported:                       []oidc.GrantType{oidc.GrantTypeCode},
		SubjectTypesSupported:                     []string{"public"},
		IDTokenSigningAlgValuesSupported:          []string{string(op.SigningKey.Algorithm)},
		IDTokenEncryptionAlgValuesSupported:       []string{string(jose.RSA1_5)},
		IDTokenEncryptionEncValuesSupported:       []string{string(jose.A128CBC_HS256)},
		RequestObjectSigningAlgValuesSupported:    []string{string(crypto.NoneAlgorithm), string(jose.RS256)},
		RequestObjectEncryptionAlgValuesSupported: []string{string(jose.RSA1_5)},
		RequestObjectEncryptionEncValuesSupported: []string{string(jose.A128CBC_HS256)},
		ClaimsParameterSupported:                  true,
		RequestParameterSupported:                 true,
		RequestURIParameterSupported:              true,
	}
	if op.DiscoveryHook != nil {
		op.DiscoveryHook(config)
	}
	return config
}

var responseTypes = []string{
	string(oidc.ResponseTypeCode),
	string(oidc.ResponseTypeIDTokenOnly),
	string(oidc.ResponseTypeIDToken),
	string(oidc.ResponseTypeCodeIDToken),
	string(oidc.ResponseTypeCodeToken),
	string(oidc.ResponseTypeCodeIDTokenToken),
}

func (op *OP) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	httphelper.MarshalJSON(w, op.Discovery())
}

func (op *OP) keysHandler(w http.ResponseWriter, r *http.Request) {
	keys, err := crypto.PublishKeyPairs(op.SigningKey, op.EncryptionKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httphelper.MarshalJSON(w, keys)
}

func (op *OP) registrationHandler(w http.ResponseWriter, r *http.Request) {
	if op.InitialAccessToken != "" && r.Header.Get("authorization") != oidc.BearerToken+" "+op.InitialAccessToken {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidToken(), http.StatusUnauthorized)
		return
	}
	metadata := new(oidc.ClientMetadata)
	if err := json.NewDecoder(r.Body).Decode(metadata); err != nil {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidClientMetadata().WithDescription(err.Error()), http.StatusBadRequest)
		return
	}
	if len(metadata.RedirectURIs) == 0 {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidRedirectURI().WithDescription("redirect_uris missing"), http.StatusBadRequest)
		return
	}
	info := &oidc.ClientInformation{
		ClientMetadata:   *metadata,
		ClientID:         uuid.NewString(),
		ClientSecret:     uuid.NewString(),
		ClientIDIssuedAt: oidc.NowTime(),
	}
	if op.RegistrationHook != nil {
		op.RegistrationHook(info)
	}
	op.mu.Lock()
	op.clientID, op.clientSecret = info.ClientID, info.ClientSecret
	if metadata.Jwks != nil {
		op.ClientKeys = metadata.Jwks
	}
	op.mu.Unlock()
	httphelper.MarshalJSONWithStatus(w, info, http.StatusCreated)
}

func (op *OP) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	received, err := op.decodeAuthRequest(r.Context(), r.Form)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	op.mu.Lock()
	op.received = append(op.received, received)
	op.mu.Unlock()

	req := received.Request
	if req.RedirectURI == "" {
		http.Error(w, "redirect_uri missing", http.StatusBadRequest)
		return
	}
	params := make(url.Values)
	if err = op.authorize(req, params); err != nil {
		params = make(url.Values)
		var opErr *oidc.Error
		if !errors.As(err, &opErr) {
			opErr = oidc.DefaultToServerError(err, err.Error())
		}
		params.Set("error", string(opErr.ErrorType))
		if opErr.Description != "" {
			params.Set("error_description", opErr.Description)
		}
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	op.respond(w, r, req, params)
}

func (op *OP) decodeAuthRequest(ctx context.Context, form url.Values) (Received, error) {
	var received Received
	token := form.Get("request")
	if uri := form.Get("request_uri"); uri != "" {
		if token != "" {
			return received, oidc.ErrRequestAndRequestURI
		}
		var err error
		if token, err = op.fetchRequestObject(ctx, uri); err != nil {
			return received, err
		}
		received.ByReference = true
	}
	if token == "" {
		req := new(oidc.AuthRequest)
		if err := oidc.NewDecoder().Decode(req, form); err != nil {
			return received, err
		}
		if claims := form.Get("claims"); claims != "" {
			req.Claims = new(oidc.ClaimsRequest)
			if err := json.Unmarshal([]byte(claims), req.Claims); err != nil {
				return received, fmt.Errorf("claims: %w", err)
			}
		}
		received.Request = req
		return received, nil
	}

	object, alg, encrypted, err := op.openRequestObject(token)
	if err != nil {
		return received, err
	}
	if clientID := form.Get("client_id"); object.Issuer != clientID {
		return received, fmt.Errorf("request object issued by %q, not %q", object.Issuer, clientID)
	}
	if !object.Audience.Contains(op.Issuer) {
		return received, fmt.Errorf("request object audience %v does not contain %q", object.Audience, op.Issuer)
	}
	req := object.AuthRequest
	received.Request = &req
	received.Object = object
	received.SignatureAlg = alg
	received.Encrypted = encrypted
	return received, nil
}

// openRequestObject decrypts and verifies a request object. It returns
// the signature algorithm and whether the object was encrypted.
func (op *OP) openRequestObject(token string) (object *oidc.RequestObject, alg string, encrypted bool, err error) {
	header, err := crypto.ParseHeader(token)
	if err != nil {
		return nil, "", false, err
	}
	signed := token
	if encrypted = header.Encrypted(); encrypted {
		plaintext, err := crypto.Decrypt(token, op.EncryptionKey.DecryptionKey())
		if err != nil {
			return nil, "", false, err
		}
		signed = string(plaintext)
		if header, err = crypto.ParseHeader(signed); err != nil {
			return nil, "", false, err
		}
	}
	var verificationKey any
	if key, err := oidc.SelectKey(op.clientKeys(), crypto.KeyUseSignature, ""); err == nil {
		verificationKey = key
	}
	payload, err := crypto.Verify(signed, verificationKey, crypto.AllowUnsecured())
	if err != nil {
		return nil, "", false, err
	}
	object = new(oidc.RequestObject)
	if err = json.Unmarshal(payload, object); err != nil {
		return nil, "", false, err
	}
	return object, header.Algorithm, encrypted, nil
}

func (op *OP) clientKeys() *jose.JSONWebKeySet {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.ClientKeys
}

func (op *OP) fetchRequestObject(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	client := op.RequestObjectClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request_uri %s: %s", uri, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// authorize issues the artifacts of the response type into params.
func (op *OP) authorize(req *oidc.AuthRequest, params url.Values) error {
	if !req.Scopes.Contains(oidc.ScopeOpenID) {
		return oidc.ErrInvalidScope().WithDescription("the openid scope is required")
	}
	if clientID, _ := op.Client(); req.ClientID != clientID {
		return &oidc.Error{ErrorType: oidc.UnauthorizedClient, Description: "unknown client"}
	}
	flow, ok := req.ResponseType.Flow()
	if !ok {
		return &oidc.Error{ErrorType: oidc.UnsupportedResponseType}
	}
	if flow != oidc.FlowCode && req.ResponseType.Has(oidc.ResponseTypeIDTokenComponent) && req.Nonce == "" {
		return oidc.ErrInvalidRequest().WithDescription("nonce is required")
	}
	if op.Deny != nil {
		return op.Deny
	}

	g := &grant{req: req, authTime: time.Now()}
	var code, accessToken string
	op.mu.Lock()
	if req.ResponseType.Has(oidc.ResponseTypeCodeComponent) {
		code = uuid.NewString()
		op.codes[code] = g
	}
	if req.ResponseType.Has(oidc.ResponseTypeTokenComponent) {
		accessToken = uuid.NewString()
		op.tokens[accessToken] = g
	}
	op.mu.Unlock()

	if code != "" {
		params.Set("code", code)
	}
	if accessToken != "" {
		params.Set("access_token", accessToken)
		params.Set("token_type", oidc.BearerToken)
		params.Set("expires_in", strconv.Itoa(int(tokenLifetime.Seconds())))
	}
	if req.ResponseType.Has(oidc.ResponseTypeIDTokenComponent) {
		idToken, err := op.idToken(EndpointAuthorize, g, accessToken, code)
		if err != nil {
			return err
		}
		params.Set("id_token", idToken)
	}
	return nil
}

func (op *OP) respond(w http.ResponseWriter, r *http.Request, req *oidc.AuthRequest, params url.Values) {
	switch req.GetResponseMode() {
	case oidc.ResponseModeFormPost:
		w.Header().Set("content-type", "text/html; charset=utf-8")
		err := formPostTemplate.Execute(w, struct {
			Action string
			Params url.Values
		}{req.RedirectURI, params})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	case oidc.ResponseModeFragment:
		http.Redirect(w, r, req.RedirectURI+"#"+params.Encode(), http.StatusFound)
	default:
		redirect, err := url.Parse(req.RedirectURI)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		query := redirect.Query()
		for key, values := range params {
			query[key] = values
		}
		redirect.RawQuery = query.Encode()
		http.Redirect(w, r, redirect.String(), http.StatusFound)
	}
}

var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit This Form</title></head>
<body onload="javascript:document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $key, $values := .Params}}{{range $values}}<input type="hidden" name="{{$key}}" value="{{.}}"/>
{{end}}{{end}}</form>
</body>
</html>`))

func (op *OP) idToken(endpoint string, g *grant, accessToken, code string) (string, error) {
	req := g.req
	claims := oidc.NewIDTokenClaims(op.Issuer, op.User.Subject, nil, time.Now().Add(tokenLifetime), g.authTime, req.Nonce, "", nil, req.ClientID, 0)
	var err error
	if accessToken != "" {
		if claims.AccessTokenHash, err = oidc.ClaimHash(accessToken, op.SigningKey.Algorithm); err != nil {
			return "", err
		}
	}
	if code != "" {
		if claims.CodeHash, err = oidc.ClaimHash(code, op.SigningKey.Algorithm); err != nil {
			return "", err
		}
	}

	// without access token the ID Token is the only source of claims
	var names []string
	if endpoint == EndpointAuthorize && accessToken == "" {
		names = oidc.ScopeClaims(req.Scopes...)
	}
	if req.Claims != nil {
		for name := range req.Claims.IDToken {
			names = append(names, name)
		}
	}
	if claims.Claims, err = op.userClaims(names); err != nil {
		return "", err
	}
	if op.IDTokenHook != nil {
		op.IDTokenHook(endpoint, claims)
	}

	token, err := crypto.SignObject(claims, op.SigningKey.SigningKey(), op.SigningKey.Algorithm)
	if err != nil || !op.EncryptIDTokens {
		return token, err
	}
	key, err := oidc.SelectKey(op.clientKeys(), crypto.KeyUseEncryption, oidc.KeyTypeRSA)
	if err != nil {
		return "", err
	}
	return crypto.EncryptSigned(token, key, jose.RSA1_5, jose.A128CBC_HS256)
}

// userClaims returns the claims of the user with the names.
func (op *OP) userClaims(names []string) (map[string]any, error) {
	data, err := json.Marshal(op.User)
	if err != nil {
		return nil, err
	}
	all := make(map[string]any)
	if err = json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	claims := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := all[name]; ok {
			claims[name] = v
		}
	}
	return claims, nil
}

func (op *OP) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidRequest().WithDescription(err.Error()), http.StatusBadRequest)
		return
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if ok {
		clientID, _ = url.QueryUnescape(clientID)
		clientSecret, _ = url.QueryUnescape(clientSecret)
	} else {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if wantID, wantSecret := op.Client(); clientID != wantID || clientSecret != wantSecret {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidClient(), http.StatusUnauthorized)
		return
	}

	tokenReq := new(oidc.AccessTokenRequest)
	if err := oidc.NewDecoder().Decode(tokenReq, r.PostForm); err != nil {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidRequest().WithDescription(err.Error()), http.StatusBadRequest)
		return
	}
	if tokenReq.GrantType != oidc.GrantTypeCode {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidRequest().WithDescription("unsupported grant_type"), http.StatusBadRequest)
		return
	}
	op.mu.Lock()
	g, ok := op.codes[tokenReq.Code]
	delete(op.codes, tokenReq.Code)
	op.mu.Unlock()
	if !ok || g.req.RedirectURI != tokenReq.RedirectURI {
		httphelper.MarshalJSONWithStatus(w, &oidc.Error{ErrorType: oidc.InvalidGrant}, http.StatusBadRequest)
		return
	}

	accessToken := uuid.NewString()
	op.mu.Lock()
	op.tokens[accessToken] = g
	op.mu.Unlock()
	idToken, err := op.idToken(EndpointToken, g, accessToken, "")
	if err != nil {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrServerError().WithDescription(err.Error()), http.StatusInternalServerError)
		return
	}
	httphelper.MarshalJSON(w, &oidc.AccessTokenResponse{
		AccessToken: accessToken,
		TokenType:   oidc.BearerToken,
		ExpiresIn:   uint64(tokenLifetime.Seconds()),
		IDToken:     idToken,
	})
}

func (op *OP) userinfoHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("authorization"), oidc.BearerToken+" ")
	op.mu.Lock()
	g, found := op.tokens[token]
	op.mu.Unlock()
	if !ok || !found {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		httphelper.MarshalJSONWithStatus(w, oidc.ErrInvalidToken(), http.StatusUnauthorized)
		return
	}
	names := oidc.ScopeClaims(g.req.Scopes...)
	if g.req.Claims != nil {
		for name := range g.req.Claims.UserInfo {
			names = append(names, name)
		}
	}
	claims, err := op.userClaims(names)
	if err != nil {
		httphelper.MarshalJSONWithStatus(w, oidc.ErrServerError(), http.StatusInternalServerError)
		return
	}
	claims["sub"] = op.User.Subject
	if op.UserinfoHook != nil {
		op.UserinfoHook(claims)
	}
	httphelper.MarshalJSON(w, claims)
}
