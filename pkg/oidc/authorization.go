package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	// ScopeOpenID defines the scope `openid`
	// OpenID Connect requests MUST contain the `openid` scope value
	ScopeOpenID = "openid"

	// ScopeProfile defines the scope `profile`
	// This (optional) scope value requests access to the End-User's default profile Claims,
	// which are: name, family_name, given_name, middle_name, nickname, preferred_username,
	// profile, picture, website, gender, birthdate, zoneinfo, locale, and updated_at.
	ScopeProfile = "profile"

	// ScopeEmail defines the scope `email`
	// This (optional) scope value requests access to the email and email_verified Claims.
	ScopeEmail = "email"

	// ScopeAddress defines the scope `address`
	// This (optional) scope value requests access to the address Claim.
	ScopeAddress = "address"

	// ScopePhone defines the scope `phone`
	// This (optional) scope value requests access to the phone_number and phone_number_verified Claims.
	ScopePhone = "phone"

	// ScopeOfflineAccess defines the scope `offline_access`
	// This (optional) scope value requests that an OAuth 2.0 Refresh Token be issued.
	ScopeOfflineAccess = "offline_access"

	ResponseTypeCodeComponent    = "code"
	ResponseTypeIDTokenComponent = "id_token"
	ResponseTypeTokenComponent   = "token"

	// ResponseTypeCode for the Authorization Code Flow returning a code from the Authorization Server
	ResponseTypeCode ResponseType = "code"

	// ResponseTypeIDToken for the Implicit Flow returning id and access tokens directly from the Authorization Server
	ResponseTypeIDToken ResponseType = "id_token token"

	// ResponseTypeIDTokenOnly for the Implicit Flow returning only id token directly from the Authorization Server
	ResponseTypeIDTokenOnly ResponseType = "id_token"

	// ResponseTypeCodeIDToken, ResponseTypeCodeToken and ResponseTypeCodeIDTokenToken for the Hybrid Flow
	ResponseTypeCodeIDToken      ResponseType = "code id_token"
	ResponseTypeCodeToken        ResponseType = "code token"
	ResponseTypeCodeIDTokenToken ResponseType = "code id_token token"

	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"

	DisplayPage  Display = "page"
	DisplayPopup Display = "popup"
	DisplayTouch Display = "touch"
	DisplayWAP   Display = "wap"

	// PromptNone (`none`) disallows the Authorization Server to display any authentication or consent user interface pages.
	PromptNone = "none"

	// PromptLogin (`login`) directs the Authorization Server to prompt the End-User for reauthentication.
	PromptLogin = "login"

	// PromptConsent (`consent`) directs the Authorization Server to prompt the End-User for consent (of sharing information).
	PromptConsent = "consent"

	// PromptSelectAccount (`select_account`) directs the Authorization Server to prompt the End-User to select a user account.
	PromptSelectAccount = "select_account"

	// GrantTypeCode defines the grant_type `authorization_code` used for the Token Request in the Authorization Code Flow
	GrantTypeCode GrantType = "authorization_code"

	// BearerToken defines the token_type `Bearer`, which is returned in a successful token response
	BearerToken = "Bearer"

	// RequestObjectMediaType is the media type of request objects served by reference.
	RequestObjectMediaType = "application/oauth-authz-req+jwt"
)

type GrantType string

var (
	ErrMissingOpenIDScope      = errors.New("missing required openid scope")
	ErrInvalidAuthRequest      = errors.New("invalid authorization request")
	ErrRequestAndRequestURI    = errors.New("request and request_uri must not be used together")
	ErrUnsupportedResponseType = errors.New("unsupported response_type")
)

// AuthRequest according to:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
//
// The json tags describe the request object representation,
// the schema tags the query / form parameter representation.
type AuthRequest struct {
	Scopes       Scopes       `json:"scope" schema:"scope"`
	ResponseType ResponseType `json:"response_type" schema:"response_type"`
	ClientID     string       `json:"client_id" schema:"client_id"`
	RedirectURI  string       `json:"redirect_uri" schema:"redirect_uri"`

	State        string       `json:"state,omitempty" schema:"state,omitempty"`
	Nonce        string       `json:"nonce,omitempty" schema:"nonce,omitempty"`
	ResponseMode ResponseMode `json:"response_mode,omitempty" schema:"response_mode,omitempty"`

	Display     Display             `json:"display,omitempty" schema:"display,omitempty"`
	Prompt      SpaceDelimitedArray `json:"prompt,omitempty" schema:"prompt,omitempty"`
	MaxAge      *uint               `json:"max_age,omitempty" schema:"max_age,omitempty"`
	UILocales   Locales             `json:"ui_locales,omitempty" schema:"ui_locales,omitempty"`
	IDTokenHint string              `json:"id_token_hint,omitempty" schema:"id_token_hint,omitempty"`
	LoginHint   string              `json:"login_hint,omitempty" schema:"login_hint,omitempty"`
	ACRValues   SpaceDelimitedArray `json:"acr_values,omitempty" schema:"acr_values,omitempty"`

	// Claims is transported as a JSON encoded parameter.
	Claims *ClaimsRequest `json:"claims,omitempty" schema:"-"`

	Request    string `json:"-" schema:"request,omitempty"`
	RequestURI string `json:"-" schema:"request_uri,omitempty"`
}

func (a *AuthRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("scopes", a.Scopes),
		slog.String("response_type", string(a.ResponseType)),
		slog.String("client_id", a.ClientID),
		slog.String("redirect_uri", a.RedirectURI),
	)
}

// GetRedirectURI returns the redirect_uri value for the ErrAuthRequest interface
func (a *AuthRequest) GetRedirectURI() string {
	return a.RedirectURI
}

// GetResponseType returns the response_type value for the ErrAuthRequest interface
func (a *AuthRequest) GetResponseType() ResponseType {
	return a.ResponseType
}

// GetState returns the optional state value for the ErrAuthRequest interface
func (a *AuthRequest) GetState() string {
	return a.State
}

// GetResponseMode returns the requested response mode,
// or the default mode of the response type.
func (a *AuthRequest) GetResponseMode() ResponseMode {
	if a.ResponseMode != "" {
		return a.ResponseMode
	}
	return a.ResponseType.DefaultResponseMode()
}

// Validate checks the request before it is sent.
// The openid scope is checked first, so that a missing scope
// is always reported as ErrMissingOpenIDScope.
func (a *AuthRequest) Validate() error {
	if !a.Scopes.Contains(ScopeOpenID) {
		return ErrMissingOpenIDScope
	}
	if a.ClientID == "" {
		return fmt.Errorf("%w: client_id missing", ErrInvalidAuthRequest)
	}
	if a.RedirectURI == "" {
		return fmt.Errorf("%w: redirect_uri missing", ErrInvalidAuthRequest)
	}
	flow, ok := a.ResponseType.Flow()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedResponseType, a.ResponseType)
	}
	if flow != FlowCode && a.ResponseType.Has(ResponseTypeIDTokenComponent) && a.Nonce == "" {
		return fmt.Errorf("%w: nonce is required for %s flow", ErrInvalidAuthRequest, flow)
	}
	if a.Request != "" && a.RequestURI != "" {
		return ErrRequestAndRequestURI
	}
	return nil
}

// ClaimsRequest is the `claims` request parameter.
// https://openid.net/specs/openid-connect-core-1_0.html#ClaimsParameter
type ClaimsRequest struct {
	UserInfo map[string]*ClaimRequest `json:"userinfo,omitempty"`
	IDToken  map[string]*ClaimRequest `json:"id_token,omitempty"`
}

// ClaimRequest refines a single requested claim.
// A nil *ClaimRequest requests the claim in the default manner.
type ClaimRequest struct {
	Essential *bool `json:"essential,omitempty"`
	Value     any   `json:"value,omitempty"`
	Values    []any `json:"values,omitempty"`
}

// Names returns the sorted union of all requested claim names.
func (c *ClaimsRequest) Names() []string {
	if c == nil {
		return nil
	}
	set := make(map[string]struct{}, len(c.UserInfo)+len(c.IDToken))
	for name := range c.UserInfo {
		set[name] = struct{}{}
	}
	for name := range c.IDToken {
		set[name] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *ClaimsRequest) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// RequestObject is the JWT representation of an AuthRequest.
// https://openid.net/specs/openid-connect-core-1_0.html#RequestObject
type RequestObject struct {
	AuthRequest

	Issuer     string   `json:"iss"`
	Audience   Audience `json:"aud"`
	IssuedAt   Time     `json:"iat,omitempty"`
	Expiration Time     `json:"exp,omitempty"`
	JWTID      string   `json:"jti,omitempty"`

	SignatureAlg jose.SignatureAlgorithm `json:"-"`
}

// scopeClaims lists the claims released by the standard scopes.
// https://openid.net/specs/openid-connect-core-1_0.html#ScopeClaims
var scopeClaims = map[string][]string{
	ScopeProfile: {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	ScopeEmail:   {"email", "email_verified"},
	ScopeAddress: {"address"},
	ScopePhone:   {"phone_number", "phone_number_verified"},
}

// ScopeClaims returns the claim names released by the given scopes.
func ScopeClaims(scopes ...string) []string {
	var claims []string
	for _, scope := range scopes {
		claims = append(claims, scopeClaims[scope]...)
	}
	return claims
}
