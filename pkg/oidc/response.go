package oidc

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	ErrMissingResponseField = errors.New("authorization response is missing a required field")
	ErrMalformedResponse    = errors.New("malformed authorization response")
)

// AuthorizationResponse is one of CodeResponse, ImplicitResponse or HybridResponse.
// The unexported method closes the set of variants.
type AuthorizationResponse interface {
	GetState() string
	Flow() Flow
	authorizationResponse()
}

// CodeResponse is the result of the authorization code flow.
type CodeResponse struct {
	State        string `schema:"state"`
	Code         string `schema:"code"`
	SessionState string `schema:"session_state"`
}

func (r *CodeResponse) GetState() string { return r.State }
func (r *CodeResponse) Flow() Flow       { return FlowCode }

func (*CodeResponse) authorizationResponse() {}

// ImplicitResponse is the result of the implicit flow
// (`id_token` or `id_token token`).
type ImplicitResponse struct {
	State        string              `schema:"state"`
	IDToken      string              `schema:"id_token"`
	AccessToken  string              `schema:"access_token"`
	TokenType    string              `schema:"token_type"`
	ExpiresIn    uint64              `schema:"expires_in"`
	Scope        SpaceDelimitedArray `schema:"scope"`
	SessionState string              `schema:"session_state"`

	// IDTokenClaims is set after successful validation.
	IDTokenClaims *IDTokenClaims `schema:"-"`
}

func (r *ImplicitResponse) GetState() string { return r.State }
func (r *ImplicitResponse) Flow() Flow       { return FlowImplicit }

func (*ImplicitResponse) authorizationResponse() {}

// HybridResponse is the result of the hybrid flow,
// returning a code together with an id_token and / or access token.
type HybridResponse struct {
	State        string              `schema:"state"`
	Code         string              `schema:"code"`
	IDToken      string              `schema:"id_token"`
	AccessToken  string              `schema:"access_token"`
	TokenType    string              `schema:"token_type"`
	ExpiresIn    uint64              `schema:"expires_in"`
	Scope        SpaceDelimitedArray `schema:"scope"`
	SessionState string              `schema:"session_state"`

	// IDTokenClaims is set after successful validation, when an id_token was returned.
	IDTokenClaims *IDTokenClaims `schema:"-"`
}

func (r *HybridResponse) GetState() string { return r.State }
func (r *HybridResponse) Flow() Flow       { return FlowHybrid }

func (*HybridResponse) authorizationResponse() {}

// ParseAuthorizationResponse decodes the parameters delivered to the
// redirect URI (query, fragment or form_post body) into the variant
// matching the response type. An error response of the OP is returned
// as *Error. Mandatory fields are checked before any semantic validation.
func ParseAuthorizationResponse(params url.Values, responseType ResponseType) (AuthorizationResponse, error) {
	if params.Get("error") != "" {
		return nil, ParseErrorResponse(params)
	}
	flow, ok := responseType.Flow()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResponseType, responseType)
	}
	var resp AuthorizationResponse
	switch flow {
	case FlowCode:
		resp = new(CodeResponse)
	case FlowImplicit:
		resp = new(ImplicitResponse)
	case FlowHybrid:
		resp = new(HybridResponse)
	}
	if err := NewDecoder().Decode(resp, params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := checkResponseFields(resp, responseType); err != nil {
		return nil, err
	}
	return resp, nil
}

func checkResponseFields(resp AuthorizationResponse, responseType ResponseType) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s", ErrMissingResponseField, field)
	}
	if resp.GetState() == "" {
		return missing("state")
	}
	var code, idToken, accessToken, tokenType string
	switch r := resp.(type) {
	case *CodeResponse:
		code = r.Code
	case *ImplicitResponse:
		idToken, accessToken, tokenType = r.IDToken, r.AccessToken, r.TokenType
	case *HybridResponse:
		code, idToken, accessToken, tokenType = r.Code, r.IDToken, r.AccessToken, r.TokenType
	}
	if responseType.Has(ResponseTypeCodeComponent) && code == "" {
		return missing("code")
	}
	if responseType.Has(ResponseTypeIDTokenComponent) && idToken == "" {
		return missing("id_token")
	}
	if responseType.Has(ResponseTypeTokenComponent) {
		if accessToken == "" {
			return missing("access_token")
		}
		if tokenType == "" {
			return missing("token_type")
		}
	}
	return nil
}
