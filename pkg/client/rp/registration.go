package rp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zitadel/oidc-rp/pkg/client"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

type registrationConfig struct {
	httpClient *http.Client
	authFn     httphelper.RequestAuthorization
}

type RegistrationOption func(*registrationConfig)

// WithInitialAccessToken authorizes the registration request
// with a bearer token issued by the OP.
func WithInitialAccessToken(token string) RegistrationOption {
	return func(c *registrationConfig) {
		c.authFn = httphelper.AuthorizeBearer(token, oidc.BearerToken)
	}
}

func WithRegistrationHTTPClient(httpClient *http.Client) RegistrationOption {
	return func(c *registrationConfig) {
		c.httpClient = httpClient
	}
}

// RegisterClient registers the client at the registration endpoint of the OP.
//
// The metadata is validated before the request is sent, so an insecure URI
// never leaves the process. The OP must register exactly the requested
// redirect URIs, and the returned client information must be valid itself.
func RegisterClient(ctx context.Context, endpoint string, metadata *oidc.ClientMetadata, opts ...RegistrationOption) (*oidc.ClientInformation, error) {
	ctx, span := client.Tracer.Start(ctx, "RegisterClient")
	defer span.End()

	config := &registrationConfig{httpClient: httphelper.DefaultHTTPClient}
	for _, opt := range opts {
		opt(config)
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	info, err := client.CallRegistrationEndpoint(ctx, endpoint, metadata, config.authFn, config.httpClient)
	if err != nil {
		return nil, fmt.Errorf("client registration: %w", err)
	}
	if err = oidc.CheckRedirectURIs(metadata.RedirectURIs, info.RedirectURIs); err != nil {
		return nil, err
	}
	if err = info.Validate(); err != nil {
		return nil, err
	}
	loggerFrom(ctx).DebugContext(ctx, "client registered", "client_id", info.ClientID)
	return info, nil
}

// NewRelyingPartyFromRegistration discovers the OP at issuer, registers a client
// with metadata and returns a RelyingParty for the registered client.
// The first redirect URI of the metadata is used for authentication requests.
func NewRelyingPartyFromRegistration(ctx context.Context, issuer string, metadata *oidc.ClientMetadata, scopes []string, regOpts []RegistrationOption, options ...Option) (RelyingParty, *oidc.ClientInformation, error) {
	config := &registrationConfig{httpClient: httphelper.DefaultHTTPClient}
	for _, opt := range regOpts {
		opt(config)
	}
	discovery, err := client.Discover(ctx, issuer, config.httpClient)
	if err != nil {
		return nil, nil, err
	}
	if discovery.RegistrationEndpoint == "" {
		return nil, nil, oidc.ErrRegistrationNotSupported()
	}
	info, err := RegisterClient(ctx, discovery.RegistrationEndpoint, metadata, regOpts...)
	if err != nil {
		return nil, nil, err
	}
	options = append([]Option{WithHTTPClient(config.httpClient), WithProviderMetadata(discovery)}, options...)
	rp, err := NewRelyingPartyOIDC(ctx, issuer, info.ClientID, info.ClientSecret, info.RedirectURIs[0], scopes, options...)
	if err != nil {
		return nil, nil, err
	}
	return rp, info, nil
}
