package rp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/zitadel/logging"
	"github.com/zitadel/oidc-rp/pkg/client"
	"github.com/zitadel/oidc-rp/pkg/config"
	"github.com/zitadel/oidc-rp/pkg/crypto"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

const (
	idTokenKey = "id_token"
	stateParam = "state"
	nonceParam = "nonce"

	DefaultCallbackTimeout = 5 * time.Minute
)

var (
	ErrUserInfoSubNotMatching = errors.New("sub from userinfo does not match the sub from the id_token")
	ErrMissingIDToken         = errors.New("id_token missing")
	ErrMissingCode            = errors.New("authorization response does not contain a code")
	ErrSubjectNotMatching     = errors.New("sub of the token response does not match the sub of the authorization response")
)

// RelyingParty declares the minimal interface for oidc clients
type RelyingParty interface {
	// OAuthConfig returns the oauth2 Config
	OAuthConfig() *oauth2.Config

	// Issuer returns the issuer of the oidc config
	Issuer() string

	// ResponseType returns the response_type used for new authentication requests
	ResponseType() oidc.ResponseType

	// CookieHandler returns a http cookie handler used for various state transfer cookies
	CookieHandler() *httphelper.CookieHandler

	// HttpClient returns a http client used for calls to the openid provider, e.g. calling token endpoint
	HttpClient() *http.Client

	// UserinfoEndpoint returns the userinfo
	UserinfoEndpoint() string

	// IDTokenVerifier returns the verifier used for oidc id_token verification
	IDTokenVerifier() *IDTokenVerifier

	// ErrorHandler returns the handler used for callback errors
	ErrorHandler() func(http.ResponseWriter, *http.Request, string, string, string)

	// Logger from the context, or a fallback if set.
	Logger(context.Context) (logger *slog.Logger, ok bool)

	// ProviderMetadata returns the cached discovery document of the OP.
	ProviderMetadata(ctx context.Context) (*oidc.DiscoveryConfiguration, error)

	// RefreshProviderMetadata replaces the cached discovery document.
	RefreshProviderMetadata(ctx context.Context) (*oidc.DiscoveryConfiguration, error)

	// ProviderKeys returns the cached key set of the OP.
	ProviderKeys(ctx context.Context) (*jose.JSONWebKeySet, error)

	// RefreshProviderKeys replaces the cached key set of the OP.
	RefreshProviderKeys(ctx context.Context) (*jose.JSONWebKeySet, error)

	// SigningKey signs request objects. It may be nil.
	SigningKey() *crypto.KeyPair

	// EncryptionKey decrypts tokens encrypted for the RP. It may be nil.
	EncryptionKey() *crypto.KeyPair

	// RequestObject returns how authentication requests are transmitted.
	RequestObject() (RequestMode, RequestObjectProtection)

	// Host serves request objects, keys and callbacks. It may be nil.
	Host() *Host

	// UserAgent navigates to the authorization endpoint.
	UserAgent() UserAgent

	// DeliveryChannel receives authorization responses.
	DeliveryChannel() DeliveryChannel

	// CallbackTimeout limits the wait for an authorization response.
	CallbackTimeout() time.Duration
}

type HasUnauthorizedHandler interface {
	// UnauthorizedHandler returns the handler used for unauthorized errors
	UnauthorizedHandler() func(w http.ResponseWriter, r *http.Request, desc string, state string)
}

type ErrorHandler func(w http.ResponseWriter, r *http.Request, errorType string, errorDesc string, state string)
type UnauthorizedHandler func(w http.ResponseWriter, r *http.Request, desc string, state string)

var DefaultErrorHandler ErrorHandler = func(w http.ResponseWriter, r *http.Request, errorType string, errorDesc string, state string) {
	http.Error(w, errorType+": "+errorDesc, http.StatusInternalServerError)
}
var DefaultUnauthorizedHandler UnauthorizedHandler = func(w http.ResponseWriter, r *http.Request, desc string, state string) {
	http.Error(w, desc, http.StatusUnauthorized)
}

type relyingParty struct {
	*provider

	endpoints                   Endpoints
	oauthConfig                 *oauth2.Config
	useSigningAlgsFromDiscovery bool
	responseType                oidc.ResponseType

	httpClient    *http.Client
	cookieHandler *httphelper.CookieHandler

	oauthAuthStyle oauth2.AuthStyle

	errorHandler        func(http.ResponseWriter, *http.Request, string, string, string)
	unauthorizedHandler func(http.ResponseWriter, *http.Request, string, string)
	idTokenVerifier     *IDTokenVerifier
	verifierOpts        []VerifierOption
	logger              *slog.Logger

	signingKey        *crypto.KeyPair
	encryptionKey     *crypto.KeyPair
	requestMode       RequestMode
	requestProtection RequestObjectProtection

	host            *Host
	userAgent       UserAgent
	deliveryChannel DeliveryChannel
	callbackTimeout time.Duration
}

func (rp *relyingParty) OAuthConfig() *oauth2.Config {
	return rp.oauthConfig
}

func (rp *relyingParty) Issuer() string {
	return rp.issuer
}

func (rp *relyingParty) ResponseType() oidc.ResponseType {
	return rp.responseType
}

func (rp *relyingParty) CookieHandler() *httphelper.CookieHandler {
	return rp.cookieHandler
}

func (rp *relyingParty) HttpClient() *http.Client {
	return rp.httpClient
}

func (rp *relyingParty) UserinfoEndpoint() string {
	return rp.endpoints.UserinfoURL
}

func (rp *relyingParty) IDTokenVerifier() *IDTokenVerifier {
	if rp.idTokenVerifier == nil {
		opts := rp.verifierOpts
		if rp.encryptionKey != nil {
			opts = append([]VerifierOption{WithDecryptionKey(rp.encryptionKey.DecryptionKey())}, opts...)
		}
		rp.idTokenVerifier = NewIDTokenVerifier(rp.issuer, rp.oauthConfig.ClientID, rp.keySet, opts...)
	}
	return rp.idTokenVerifier
}

func (rp *relyingParty) ErrorHandler() func(http.ResponseWriter, *http.Request, string, string, string) {
	if rp.errorHandler == nil {
		rp.errorHandler = DefaultErrorHandler
	}
	return rp.errorHandler
}

func (rp *relyingParty) UnauthorizedHandler() func(http.ResponseWriter, *http.Request, string, string) {
	if rp.unauthorizedHandler == nil {
		rp.unauthorizedHandler = DefaultUnauthorizedHandler
	}
	return rp.unauthorizedHandler
}

func (rp *relyingParty) Logger(ctx context.Context) (logger *slog.Logger, ok bool) {
	logger, ok = logging.FromContext(ctx)
	if ok {
		return logger, ok
	}
	return rp.logger, rp.logger != nil
}

func (rp *relyingParty) SigningKey() *crypto.KeyPair {
	return rp.signingKey
}

func (rp *relyingParty) EncryptionKey() *crypto.KeyPair {
	return rp.encryptionKey
}

func (rp *relyingParty) RequestObject() (RequestMode, RequestObjectProtection) {
	return rp.requestMode, rp.requestProtection
}

func (rp *relyingParty) Host() *Host {
	return rp.host
}

func (rp *relyingParty) UserAgent() UserAgent {
	return rp.userAgent
}

func (rp *relyingParty) DeliveryChannel() DeliveryChannel {
	return rp.deliveryChannel
}

func (rp *relyingParty) CallbackTimeout() time.Duration {
	return rp.callbackTimeout
}

// NewRelyingPartyOIDC creates an (OIDC) RelyingParty with the given
// issuer, clientID, clientSecret, redirectURI, scopes and possible configOptions
// it will run discovery on the provided issuer and use the found endpoints
func NewRelyingPartyOIDC(ctx context.Context, issuer, clientID, clientSecret, redirectURI string, scopes []string, options ...Option) (RelyingParty, error) {
	rp := &relyingParty{
		provider: &provider{
			issuer: issuer,
		},
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
		},
		responseType:    oidc.ResponseTypeCode,
		httpClient:      httphelper.DefaultHTTPClient,
		oauthAuthStyle:  oauth2.AuthStyleAutoDetect,
		requestMode:     RequestModeParameters,
		userAgent:       BrowserUserAgent{},
		callbackTimeout: DefaultCallbackTimeout,
	}

	for _, optFunc := range options {
		if err := optFunc(rp); err != nil {
			return nil, err
		}
	}
	rp.provider.httpClient = rp.httpClient
	if rp.deliveryChannel == nil && rp.host != nil {
		rp.deliveryChannel = rp.host.Callback()
	}

	ctx = logCtxWithRPData(ctx, rp, "function", "NewRelyingPartyOIDC")
	discoveryConfiguration, err := rp.ProviderMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if rp.useSigningAlgsFromDiscovery {
		rp.verifierOpts = append(rp.verifierOpts, WithSupportedSigningAlgorithms(discoveryConfiguration.IDTokenSigningAlgValuesSupported...))
	}
	endpoints := GetEndpoints(discoveryConfiguration)
	rp.oauthConfig.Endpoint = endpoints.Endpoint
	rp.endpoints = endpoints
	rp.keySet = newRemoteKeySet(rp.httpClient, endpoints.JKWsURL)

	rp.oauthConfig.Endpoint.AuthStyle = rp.oauthAuthStyle
	rp.endpoints.Endpoint.AuthStyle = rp.oauthAuthStyle

	// avoid races by calling these early
	_ = rp.IDTokenVerifier()     // sets idTokenVerifier
	_ = rp.ErrorHandler()        // sets errorHandler
	_ = rp.UnauthorizedHandler() // sets unauthorizedHandler

	return rp, nil
}

// NewRelyingPartyFromConfig creates a RelyingParty from the settings
// loaded by config.Load. Options are applied after the settings,
// so they can override them.
func NewRelyingPartyFromConfig(ctx context.Context, cfg *config.Config, options ...Option) (RelyingParty, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		WithResponseType(oidc.ResponseType(cfg.ResponseType)),
		WithCallbackTimeout(cfg.CallbackTimeout),
		WithCustomDiscoveryUrl(cfg.DiscoveryURL),
		WithRequestObject(RequestMode(cfg.RequestObject.Mode), RequestObjectProtection{
			SigningAlg:    jose.SignatureAlgorithm(cfg.RequestObject.SigningAlg),
			EncryptionAlg: jose.KeyAlgorithm(cfg.RequestObject.EncryptionAlg),
			EncryptionEnc: jose.ContentEncryption(cfg.RequestObject.EncryptionEnc),
		}),
	}
	signingKey, err := loadKeyPair(cfg.Keys.SigningCertFile, cfg.Keys.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	encryptionKey, err := loadKeyPair(cfg.Keys.EncryptionCertFile, cfg.Keys.EncryptionKeyFile)
	if err != nil {
		return nil, err
	}
	if signingKey != nil {
		opts = append(opts, WithSigningKey(signingKey))
	}
	if encryptionKey != nil {
		opts = append(opts, WithEncryptionKey(encryptionKey))
	}
	if cfg.Cookie.HashKey != "" {
		var cookieOpts []httphelper.CookieHandlerOpt
		if cfg.Cookie.Insecure {
			cookieOpts = append(cookieOpts, httphelper.WithUnsecure())
		}
		if cfg.Cookie.MaxAge > 0 {
			cookieOpts = append(cookieOpts, httphelper.WithMaxAge(cfg.Cookie.MaxAge))
		}
		var encryptKey []byte
		if cfg.Cookie.EncryptKey != "" {
			encryptKey = []byte(cfg.Cookie.EncryptKey)
		}
		opts = append(opts, WithCookieHandler(httphelper.NewCookieHandler([]byte(cfg.Cookie.HashKey), encryptKey, cookieOpts...)))
	}
	if cfg.RequestObject.Mode == config.RequestModeReference || cfg.Host.BaseURL != "" {
		hostOpts := []HostOption{
			WithCallbackPath(cfg.Host.CallbackPath),
			WithPublishedKeys(signingKey, encryptionKey),
		}
		if cfg.Host.BaseURL != "" {
			hostOpts = append(hostOpts, WithBaseURL(cfg.Host.BaseURL))
		}
		if len(cfg.Host.AllowedOrigins) > 0 {
			hostOpts = append(hostOpts, WithAllowedOrigins(cfg.Host.AllowedOrigins...))
		}
		opts = append(opts, WithHost(NewHost(hostOpts...)))
	}
	return NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI, cfg.Scopes, append(opts, options...)...)
}

func loadKeyPair(certFile, keyFile string) (*crypto.KeyPair, error) {
	if certFile == "" || keyFile == "" {
		return nil, nil
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	pair, err := crypto.LoadKeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", certFile, err)
	}
	return pair, nil
}

// Option is the type for providing dynamic options to the relyingParty
type Option func(*relyingParty) error

func WithCustomDiscoveryUrl(url string) Option {
	return func(rp *relyingParty) error {
		rp.discoveryURL = url
		return nil
	}
}

// WithProviderMetadata uses an already discovered configuration
// instead of running discovery in NewRelyingPartyOIDC.
func WithProviderMetadata(metadata *oidc.DiscoveryConfiguration) Option {
	return func(rp *relyingParty) error {
		rp.metadata.Store(metadata)
		return nil
	}
}

// WithCookieHandler set a `CookieHandler` for securing the various redirects
func WithCookieHandler(cookieHandler *httphelper.CookieHandler) Option {
	return func(rp *relyingParty) error {
		rp.cookieHandler = cookieHandler
		return nil
	}
}

// WithHTTPClient provides the ability to set an http client to be used for the relaying party and verifier
func WithHTTPClient(client *http.Client) Option {
	return func(rp *relyingParty) error {
		rp.httpClient = client
		return nil
	}
}

func WithErrorHandler(errorHandler ErrorHandler) Option {
	return func(rp *relyingParty) error {
		rp.errorHandler = errorHandler
		return nil
	}
}

func WithUnauthorizedHandler(unauthorizedHandler UnauthorizedHandler) Option {
	return func(rp *relyingParty) error {
		rp.unauthorizedHandler = unauthorizedHandler
		return nil
	}
}

func WithAuthStyle(oauthAuthStyle oauth2.AuthStyle) Option {
	return func(rp *relyingParty) error {
		rp.oauthAuthStyle = oauthAuthStyle
		return nil
	}
}

func WithVerifierOpts(opts ...VerifierOption) Option {
	return func(rp *relyingParty) error {
		rp.verifierOpts = opts
		return nil
	}
}

// WithLogger sets a logger that is used
// in case the request context does not contain a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rp *relyingParty) error {
		rp.logger = logger
		return nil
	}
}

// WithSigningAlgsFromDiscovery appends the [WithSupportedSigningAlgorithms] option to the Verifier Options.
// The algorithms returned in the `id_token_signing_alg_values_supported` from the discovery response will be set.
func WithSigningAlgsFromDiscovery() Option {
	return func(rp *relyingParty) error {
		rp.useSigningAlgsFromDiscovery = true
		return nil
	}
}

// WithResponseType sets the response_type of requests created by NewAuthRequest.
func WithResponseType(responseType oidc.ResponseType) Option {
	return func(rp *relyingParty) error {
		if _, ok := responseType.Flow(); !ok {
			return fmt.Errorf("%w: %q", oidc.ErrUnsupportedResponseType, responseType)
		}
		rp.responseType = responseType
		return nil
	}
}

// WithSigningKey sets the key pair request objects are signed with.
func WithSigningKey(key *crypto.KeyPair) Option {
	return func(rp *relyingParty) error {
		rp.signingKey = key
		return nil
	}
}

// WithEncryptionKey sets the key pair the OP encrypts ID Tokens for.
// Encrypted ID Tokens are rejected without it.
func WithEncryptionKey(key *crypto.KeyPair) Option {
	return func(rp *relyingParty) error {
		rp.encryptionKey = key
		return nil
	}
}

// WithRequestObject sets how Authenticate transmits the request.
func WithRequestObject(mode RequestMode, protection RequestObjectProtection) Option {
	return func(rp *relyingParty) error {
		if err := mode.valid(); err != nil {
			return err
		}
		rp.requestMode = mode
		rp.requestProtection = protection
		return nil
	}
}

// WithHost sets the Host serving request objects, the RP keys
// and, unless WithDeliveryChannel is used, the redirect callback.
func WithHost(host *Host) Option {
	return func(rp *relyingParty) error {
		if err := host.Err(); err != nil {
			return err
		}
		rp.host = host
		return nil
	}
}

// WithUserAgent replaces the system browser.
func WithUserAgent(userAgent UserAgent) Option {
	return func(rp *relyingParty) error {
		rp.userAgent = userAgent
		return nil
	}
}

// WithDeliveryChannel sets where Authenticate waits for responses.
func WithDeliveryChannel(channel DeliveryChannel) Option {
	return func(rp *relyingParty) error {
		rp.deliveryChannel = channel
		return nil
	}
}

// WithCallbackTimeout limits the wait of Authenticate for the response.
// Zero or negative values select DefaultCallbackTimeout.
func WithCallbackTimeout(timeout time.Duration) Option {
	return func(rp *relyingParty) error {
		if timeout <= 0 {
			timeout = DefaultCallbackTimeout
		}
		rp.callbackTimeout = timeout
		return nil
	}
}

// AuthURL returns the auth request url
// (wrapping the oauth2 `AuthCodeURL`)
func AuthURL(state string, rp RelyingParty, opts ...AuthURLOpt) string {
	authOpts := make([]oauth2.AuthCodeOption, 0)
	if responseType := rp.ResponseType(); responseType != "" && responseType != oidc.ResponseTypeCode {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("response_type", string(responseType)))
	}
	for _, opt := range opts {
		authOpts = append(authOpts, opt()...)
	}
	return rp.OAuthConfig().AuthCodeURL(state, authOpts...)
}

// AuthURLHandler extends the `AuthURL` method with a http redirect handler
// including handling setting cookie for secure `state` and `nonce` transfer.
// Custom parameters can optionally be set to the redirect URL.
func AuthURLHandler(stateFn func() string, rp RelyingParty, urlParam ...URLParamOpt) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := make([]AuthURLOpt, len(urlParam))
		for i, p := range urlParam {
			opts[i] = AuthURLOpt(p)
		}

		state := stateFn()
		if err := trySetStateCookie(w, state, rp); err != nil {
			unauthorizedError(w, r, "failed to create state cookie: "+err.Error(), state, rp)
			return
		}
		nonce := uuid.NewString()
		if rp.CookieHandler() != nil {
			if err := rp.CookieHandler().SetCookie(w, nonceParam, nonce); err != nil {
				unauthorizedError(w, r, "failed to create nonce cookie: "+err.Error(), state, rp)
				return
			}
			opts = append(opts, WithNonceURLParam(nonce))
		}

		http.Redirect(w, r, AuthURL(state, rp, opts...), http.StatusFound)
	}
}

func verifyTokenResponse(ctx context.Context, token *oauth2.Token, v *IDTokenVerifier) (*oidc.Tokens, error) {
	ctx, span := client.Tracer.Start(ctx, "verifyTokenResponse")
	defer span.End()

	idTokenString, ok := token.Extra(idTokenKey).(string)
	if !ok {
		return &oidc.Tokens{Token: token}, ErrMissingIDToken
	}
	idToken, err := VerifyTokens(ctx, token.AccessToken, idTokenString, v)
	if err != nil {
		return nil, err
	}
	return &oidc.Tokens{Token: token, IDTokenClaims: idToken, IDToken: idTokenString}, nil
}

// CodeExchange handles the oauth2 code exchange, extracting and validating the id_token
// returning it parsed together with the oauth2 tokens (access, refresh)
func CodeExchange(ctx context.Context, code string, rp RelyingParty, opts ...CodeExchangeOpt) (tokens *oidc.Tokens, err error) {
	return codeExchange(ctx, code, rp, rp.IDTokenVerifier(), opts...)
}

func codeExchange(ctx context.Context, code string, rp RelyingParty, v *IDTokenVerifier, opts ...CodeExchangeOpt) (tokens *oidc.Tokens, err error) {
	ctx, codeExchangeSpan := client.Tracer.Start(ctx, "CodeExchange")
	defer codeExchangeSpan.End()

	ctx = logCtxWithRPData(ctx, rp, "function", "CodeExchange")
	ctx = context.WithValue(ctx, oauth2.HTTPClient, rp.HttpClient())
	codeOpts := make([]oauth2.AuthCodeOption, 0)
	for _, opt := range opts {
		codeOpts = append(codeOpts, opt()...)
	}

	ctx, oauthExchangeSpan := client.Tracer.Start(ctx, "OAuthExchange")
	token, err := rp.OAuthConfig().Exchange(ctx, code, codeOpts...)
	oauthExchangeSpan.End()
	if err != nil {
		return nil, err
	}
	return verifyTokenResponse(ctx, token, v)
}

// ExchangeCode exchanges the code of a validated code or hybrid flow response
// of req. The ID Token of the token response must carry the nonce of req and,
// for the hybrid flow, the subject of the ID Token of the authorization response.
func ExchangeCode(ctx context.Context, rp RelyingParty, req *oidc.AuthRequest, resp oidc.AuthorizationResponse, opts ...CodeExchangeOpt) (*oidc.Tokens, error) {
	var (
		code    string
		subject string
	)
	switch r := resp.(type) {
	case *oidc.CodeResponse:
		code = r.Code
	case *oidc.HybridResponse:
		code = r.Code
		if r.IDTokenClaims != nil {
			subject = r.IDTokenClaims.Subject
		}
	}
	if code == "" {
		return nil, ErrMissingCode
	}
	tokens, err := codeExchange(ctx, code, rp, rp.IDTokenVerifier().withNonce(req.Nonce), opts...)
	if err != nil {
		return nil, err
	}
	if subject != "" && tokens.IDTokenClaims.Subject != subject {
		return nil, fmt.Errorf("%w: %q, %q", ErrSubjectNotMatching, tokens.IDTokenClaims.Subject, subject)
	}
	return tokens, nil
}

type CodeExchangeCallback func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens, state string, rp RelyingParty)

// CodeExchangeHandler extends the `CodeExchange` method with a http handler
// including cookie handling for secure `state` and `nonce` transfer.
// Custom parameters can optionally be set to the token URL.
func CodeExchangeHandler(callback CodeExchangeCallback, rp RelyingParty, urlParam ...URLParamOpt) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := client.Tracer.Start(r.Context(), "CodeExchangeHandler")
		r = r.WithContext(ctx)
		defer span.End()

		state, err := tryReadStateCookie(w, r, rp)
		if err != nil {
			unauthorizedError(w, r, "failed to get state: "+err.Error(), state, rp)
			return
		}
		if errValue := r.FormValue("error"); errValue != "" {
			rp.ErrorHandler()(w, r, errValue, r.FormValue("error_description"), state)
			return
		}
		codeOpts := make([]CodeExchangeOpt, len(urlParam))
		for i, p := range urlParam {
			codeOpts[i] = CodeExchangeOpt(p)
		}

		verifier := rp.IDTokenVerifier()
		if rp.CookieHandler() != nil {
			nonce, err := rp.CookieHandler().CheckCookie(r, nonceParam)
			if err != nil {
				unauthorizedError(w, r, "failed to get nonce: "+err.Error(), state, rp)
				return
			}
			rp.CookieHandler().DeleteCookie(w, nonceParam)
			verifier = verifier.withNonce(nonce)
		}
		tokens, err := codeExchange(r.Context(), r.FormValue("code"), rp, verifier, codeOpts...)
		if err != nil {
			unauthorizedError(w, r, "failed to exchange token: "+err.Error(), state, rp)
			return
		}
		callback(w, r, tokens, state, rp)
	}
}

type SubjectGetter interface {
	GetSubject() string
}

type CodeExchangeUserinfoCallback[U SubjectGetter] func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens, state string, provider RelyingParty, info U)

// UserinfoCallback wraps the callback function of the CodeExchangeHandler
// and calls the userinfo endpoint with the access token
// on success it will pass the userinfo into its callback function as well
func UserinfoCallback[U SubjectGetter](f CodeExchangeUserinfoCallback[U]) CodeExchangeCallback {
	return func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens, state string, rp RelyingParty) {
		ctx, span := client.Tracer.Start(r.Context(), "UserinfoCallback")
		r = r.WithContext(ctx)
		defer span.End()

		info, err := Userinfo[U](r.Context(), tokens.AccessToken, tokens.TokenType, tokens.IDTokenClaims.GetSubject(), rp)
		if err != nil {
			unauthorizedError(w, r, "userinfo failed: "+err.Error(), state, rp)
			return
		}
		f(w, r, tokens, state, rp, info)
	}
}

func trySetStateCookie(w http.ResponseWriter, state string, rp RelyingParty) error {
	if rp.CookieHandler() != nil {
		if err := rp.CookieHandler().SetCookie(w, stateParam, state); err != nil {
			return err
		}
	}
	return nil
}

func tryReadStateCookie(w http.ResponseWriter, r *http.Request, rp RelyingParty) (state string, err error) {
	if rp.CookieHandler() == nil {
		return r.FormValue(stateParam), nil
	}
	state, err = rp.CookieHandler().CheckParamCookie(r, stateParam)
	if err != nil {
		return "", err
	}
	rp.CookieHandler().DeleteCookie(w, stateParam)
	return state, nil
}

type Endpoints struct {
	oauth2.Endpoint
	UserinfoURL     string
	JKWsURL         string
	RegistrationURL string
}

func GetEndpoints(discoveryConfig *oidc.DiscoveryConfiguration) Endpoints {
	return Endpoints{
		Endpoint: oauth2.Endpoint{
			AuthURL:  discoveryConfig.AuthorizationEndpoint,
			TokenURL: discoveryConfig.TokenEndpoint,
		},
		UserinfoURL:     discoveryConfig.UserinfoEndpoint,
		JKWsURL:         discoveryConfig.JwksURI,
		RegistrationURL: discoveryConfig.RegistrationEndpoint,
	}
}

// withURLParam sets custom url parameters.
// This is the generalized, unexported, function used by both
// URLParamOpt and AuthURLOpt.
func withURLParam(key, value string) func() []oauth2.AuthCodeOption {
	return func() []oauth2.AuthCodeOption {
		return []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam(key, value),
		}
	}
}

// withPrompt sets the `prompt` params in the auth request
// This is the generalized, unexported, function used by both
// URLParamOpt and AuthURLOpt.
func withPrompt(prompt ...string) func() []oauth2.AuthCodeOption {
	return withURLParam("prompt", oidc.SpaceDelimitedArray(prompt).String())
}

type URLParamOpt func() []oauth2.AuthCodeOption

// WithURLParam allows setting custom key-vale pairs
// to an OAuth2 URL.
func WithURLParam(key, value string) URLParamOpt {
	return withURLParam(key, value)
}

// WithPromptURLParam sets the `prompt` parameter in a URL.
func WithPromptURLParam(prompt ...string) URLParamOpt {
	return withPrompt(prompt...)
}

// WithResponseModeURLParam sets the `response_mode` parameter in a URL.
func WithResponseModeURLParam(mode oidc.ResponseMode) URLParamOpt {
	return withURLParam("response_mode", string(mode))
}

type AuthURLOpt func() []oauth2.AuthCodeOption

// WithPrompt sets the `prompt` params in the auth request
func WithPrompt(prompt ...string) AuthURLOpt {
	return withPrompt(prompt...)
}

// WithNonceURLParam sets the `nonce` param in the auth request
func WithNonceURLParam(nonce string) AuthURLOpt {
	return withURLParam(nonceParam, nonce)
}

type CodeExchangeOpt func() []oauth2.AuthCodeOption

func unauthorizedError(w http.ResponseWriter, r *http.Request, desc string, state string, rp RelyingParty) {
	if rp, ok := rp.(HasUnauthorizedHandler); ok {
		rp.UnauthorizedHandler()(w, r, desc, state)
		return
	}
	http.Error(w, desc, http.StatusUnauthorized)
}
