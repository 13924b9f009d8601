package oidc

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
)

type ApplicationType string

const (
	ApplicationTypeWeb    ApplicationType = "web"
	ApplicationTypeNative ApplicationType = "native"
)

var (
	ErrSchemeViolation       = errors.New("URI must use the https scheme")
	ErrClientMetadataInvalid = errors.New("invalid client metadata")
	ErrRedirectURIsMismatch  = errors.New("registered redirect_uris do not match the requested redirect_uris")
	ErrClientIDMissing       = errors.New("registration response does not contain a client_id")
)

// SchemeViolationError names the metadata field
// whose URI does not use the https scheme.
type SchemeViolationError struct {
	Field string
	URI   string
}

func (e *SchemeViolationError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrSchemeViolation, e.Field, e.URI)
}

func (e *SchemeViolationError) Unwrap() error {
	return ErrSchemeViolation
}

// ClientMetadata implements https://openid.net/specs/openid-connect-registration-1_0.html#ClientMetadata
// and https://www.rfc-editor.org/rfc/rfc7591#section-2.
//
// The Client Metadata values are used in two ways:
//
//   - as input values to registration requests, and
//   - as output values in registration responses (ClientInformation).
type ClientMetadata struct {
	// RedirectURIs is an array of redirection URI strings for use in redirect-based flows.
	// REQUIRED.
	RedirectURIs []string `json:"redirect_uris"`

	// ResponseTypes the client restricts itself to using. Defaults to `code`.
	ResponseTypes []ResponseType `json:"response_types,omitempty"`

	// GrantTypes the client restricts itself to using. Defaults to `authorization_code`.
	GrantTypes []GrantType `json:"grant_types,omitempty"`

	// ApplicationType is `web` (default) or `native`.
	// Native clients may use custom URI schemes for their redirect URIs.
	ApplicationType ApplicationType `json:"application_type,omitempty"`

	Contacts   []string `json:"contacts,omitempty"`
	ClientName string   `json:"client_name,omitempty"`
	LogoURI    string   `json:"logo_uri,omitempty"`
	ClientURI  string   `json:"client_uri,omitempty"`
	PolicyURI  string   `json:"policy_uri,omitempty"`
	TosURI     string   `json:"tos_uri,omitempty"`

	// JwksURI is the URL of the client's JSON Web Key Set, containing the signing key
	// of request objects and the encryption key for ID Tokens and UserInfo responses.
	// Must not be used together with Jwks.
	JwksURI string              `json:"jwks_uri,omitempty"`
	Jwks    *jose.JSONWebKeySet `json:"jwks,omitempty"`

	SectorIdentifierURI string `json:"sector_identifier_uri,omitempty"`
	SubjectType         string `json:"subject_type,omitempty"`

	IDTokenSignedResponseAlg     string `json:"id_token_signed_response_alg,omitempty"`
	IDTokenEncryptedResponseAlg  string `json:"id_token_encrypted_response_alg,omitempty"`
	IDTokenEncryptedResponseEnc  string `json:"id_token_encrypted_response_enc,omitempty"`
	UserinfoSignedResponseAlg    string `json:"userinfo_signed_response_alg,omitempty"`
	UserinfoEncryptedResponseAlg string `json:"userinfo_encrypted_response_alg,omitempty"`
	UserinfoEncryptedResponseEnc string `json:"userinfo_encrypted_response_enc,omitempty"`
	RequestObjectSigningAlg      string `json:"request_object_signing_alg,omitempty"`
	RequestObjectEncryptionAlg   string `json:"request_object_encryption_alg,omitempty"`
	RequestObjectEncryptionEnc   string `json:"request_object_encryption_enc,omitempty"`

	TokenEndpointAuthMethod     AuthMethod `json:"token_endpoint_auth_method,omitempty"`
	TokenEndpointAuthSigningAlg string     `json:"token_endpoint_auth_signing_alg,omitempty"`

	DefaultMaxAge    int      `json:"default_max_age,omitempty"`
	RequireAuthTime  bool     `json:"require_auth_time,omitempty"`
	DefaultACRValues []string `json:"default_acr_values,omitempty"`
	InitiateLoginURI string   `json:"initiate_login_uri,omitempty"`

	// RequestURIs are pre-registered request_uri values.
	RequestURIs            []string `json:"request_uris,omitempty"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`
}

// Validate checks the metadata before it is sent to or after it
// was received from a registration endpoint.
// Every URI must be absolute and use https, except redirect URIs
// of native clients with a custom (non http) scheme.
func (c *ClientMetadata) Validate() error {
	if len(c.RedirectURIs) == 0 {
		return fmt.Errorf("%w: redirect_uris must not be empty", ErrClientMetadataInvalid)
	}
	if c.JwksURI != "" && c.Jwks != nil {
		return fmt.Errorf("%w: jwks_uri and jwks must not both be present", ErrClientMetadataInvalid)
	}
	for _, uri := range c.RedirectURIs {
		if err := checkURI("redirect_uris", uri, c.ApplicationType == ApplicationTypeNative); err != nil {
			return err
		}
	}
	for _, uri := range c.RequestURIs {
		if err := checkURI("request_uris", uri, false); err != nil {
			return err
		}
	}
	for _, uri := range c.PostLogoutRedirectURIs {
		if err := checkURI("post_logout_redirect_uris", uri, false); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		field, uri string
	}{
		{"logo_uri", c.LogoURI},
		{"client_uri", c.ClientURI},
		{"policy_uri", c.PolicyURI},
		{"tos_uri", c.TosURI},
		{"jwks_uri", c.JwksURI},
		{"sector_identifier_uri", c.SectorIdentifierURI},
		{"initiate_login_uri", c.InitiateLoginURI},
	} {
		if f.uri == "" {
			continue
		}
		if err := checkURI(f.field, f.uri, false); err != nil {
			return err
		}
	}
	return nil
}

func checkURI(field, uri string, allowCustomScheme bool) error {
	u, err := url.Parse(uri)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: %s %q is not an absolute URI", ErrClientMetadataInvalid, field, uri)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "https" {
		if u.Host == "" {
			return fmt.Errorf("%w: %s %q has no host", ErrClientMetadataInvalid, field, uri)
		}
		return nil
	}
	if allowCustomScheme && scheme != "http" {
		return nil
	}
	return &SchemeViolationError{Field: field, URI: uri}
}

// ClientInformation implements
// https://www.rfc-editor.org/rfc/rfc7591#section-3.2.1 and
// https://openid.net/specs/openid-connect-registration-1_0.html#RegistrationResponse.
type ClientInformation struct {
	ClientMetadata

	// ClientID is the OAuth 2.0 client identifier string.
	// REQUIRED.
	ClientID string `json:"client_id"`

	ClientSecret            string `json:"client_secret,omitempty"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string `json:"registration_client_uri,omitempty"`
	ClientIDIssuedAt        Time   `json:"client_id_issued_at,omitempty"`

	// ClientSecretExpiresAt is REQUIRED if client_secret is issued. 0 means no expiry.
	ClientSecretExpiresAt Time `json:"client_secret_expires_at,omitempty"`
}

// Validate checks a registration response.
func (c *ClientInformation) Validate() error {
	if c.ClientID == "" {
		return ErrClientIDMissing
	}
	if err := c.ClientMetadata.Validate(); err != nil {
		return err
	}
	if c.RegistrationClientURI != "" {
		return checkURI("registration_client_uri", c.RegistrationClientURI, false)
	}
	return nil
}

// CheckRedirectURIs returns ErrRedirectURIsMismatch unless
// registered contains exactly the requested URIs, in any order.
func CheckRedirectURIs(requested, registered []string) error {
	a, b := uniqueSorted(requested), uniqueSorted(registered)
	if !slices.Equal(a, b) {
		return fmt.Errorf("%w: requested %v, registered %v", ErrRedirectURIsMismatch, requested, registered)
	}
	return nil
}

func uniqueSorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}
