package rp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/zitadel/oidc-rp/pkg/client"
	"github.com/zitadel/oidc-rp/pkg/crypto"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

const (
	// SelfIssuedEndpoint is the authorization endpoint of self-issued OPs.
	SelfIssuedEndpoint = "openid://"

	selfIssuedLifetime = 5 * time.Minute
)

var (
	ErrSelfIssuedEndpoint = errors.New("self-issued openid provider endpoint must use a custom scheme")
	ErrSelfIssuedRedirect = errors.New("self-issued response was not sent to the redirect_uri")
)

// SelfIssuedProvider is a personal OP, controlled by the End-User.
// It answers the authentication request URL with the redirect URL,
// carrying the response in the fragment.
type SelfIssuedProvider interface {
	Authorize(ctx context.Context, authURL *url.URL) (*url.URL, error)
}

// AuthenticateSelfIssued sends req to a self-issued OP and validates the
// implicit response. The client_id of req is its redirect_uri.
// There is no issuer to compare, the ID Token must be signed with the
// key it carries in sub_jwk and its subject must be the key thumbprint.
func AuthenticateSelfIssued(ctx context.Context, endpoint string, req *oidc.AuthRequest, op SelfIssuedProvider) (*oidc.ImplicitResponse, error) {
	ctx, span := client.Tracer.Start(ctx, "AuthenticateSelfIssued")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if flow, _ := req.ResponseType.Flow(); flow != oidc.FlowImplicit {
		return nil, fmt.Errorf("%w: %q", oidc.ErrUnsupportedResponseType, req.ResponseType)
	}
	authURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	switch authURL.Scheme {
	case "", "http", "https":
		return nil, fmt.Errorf("%w: %q", ErrSelfIssuedEndpoint, endpoint)
	}
	values := make(url.Values)
	if err = oidc.NewEncoder().Encode(req, values); err != nil {
		return nil, err
	}
	if req.Claims != nil {
		values.Set("claims", req.Claims.String())
	}
	authURL.RawQuery = values.Encode()

	redirect, err := op.Authorize(ctx, authURL)
	if err != nil {
		return nil, err
	}
	params, err := url.ParseQuery(redirect.Fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oidc.ErrMalformedResponse, err)
	}
	redirect.Fragment, redirect.RawFragment = "", ""
	if redirect.String() != req.RedirectURI {
		return nil, fmt.Errorf("%w: %s", ErrSelfIssuedRedirect, redirect)
	}

	resp, err := oidc.ParseAuthorizationResponse(params, req.ResponseType)
	if err != nil {
		return nil, err
	}
	if err = oidc.CheckState(resp.GetState(), req.State); err != nil {
		return nil, err
	}
	implicit := resp.(*oidc.ImplicitResponse)
	implicit.IDTokenClaims, err = VerifySelfIssuedIDToken(ctx, implicit.IDToken, req.ClientID, req.Nonce)
	if err != nil {
		return nil, err
	}
	return implicit, nil
}

// VerifySelfIssuedIDToken validates a self-issued ID Token according to
// https://openid.net/specs/openid-connect-core-1_0.html#SelfIssuedValidation
func VerifySelfIssuedIDToken(ctx context.Context, token, clientID, nonce string) (*oidc.IDTokenClaims, error) {
	claims := new(oidc.IDTokenClaims)
	payload, err := oidc.ParseToken(token, claims)
	if err != nil {
		return nil, err
	}
	if err = oidc.CheckSubject(claims); err != nil {
		return nil, err
	}
	if err = oidc.CheckSelfIssued(claims); err != nil {
		return nil, err
	}
	if err = oidc.CheckAudience(claims, clientID); err != nil {
		return nil, err
	}
	if err = oidc.CheckSignature(ctx, token, payload, claims, nil, subjectKeySet{key: claims.SubjectJWK}); err != nil {
		return nil, err
	}
	if err = oidc.CheckExpiration(claims, time.Second); err != nil {
		return nil, err
	}
	if err = oidc.CheckIssuedAt(claims, 0, time.Second); err != nil {
		return nil, err
	}
	if err = oidc.CheckNonce(claims, nonce); err != nil {
		return nil, err
	}
	return claims, nil
}

// subjectKeySet verifies with the key embedded in a self-issued ID Token.
type subjectKeySet struct {
	key *jose.JSONWebKey
}

func (s subjectKeySet) VerifySignature(_ context.Context, jws *jose.JSONWebSignature) ([]byte, error) {
	return jws.Verify(s.key)
}

type localSelfIssuedProvider struct {
	key  *crypto.KeyPair
	info *oidc.UserInfo
}

// NewLocalSelfIssuedProvider returns a self-issued OP running in process,
// which authenticates with the identity key and releases the claims of
// info for the requested scopes and claims.
func NewLocalSelfIssuedProvider(key *crypto.KeyPair, info *oidc.UserInfo) SelfIssuedProvider {
	return &localSelfIssuedProvider{
		key:  key,
		info: info,
	}
}

func (p *localSelfIssuedProvider) Authorize(ctx context.Context, authURL *url.URL) (*url.URL, error) {
	query := authURL.Query()
	req := new(oidc.AuthRequest)
	if err := oidc.NewDecoder().Decode(req, query); err != nil {
		return nil, fmt.Errorf("%w: %v", oidc.ErrInvalidAuthRequest, err)
	}
	if claims := query.Get("claims"); claims != "" {
		req.Claims = new(oidc.ClaimsRequest)
		if err := json.Unmarshal([]byte(claims), req.Claims); err != nil {
			return nil, fmt.Errorf("%w: claims: %v", oidc.ErrInvalidAuthRequest, err)
		}
	}
	redirect, err := url.Parse(req.RedirectURI)
	if err != nil || req.RedirectURI == "" {
		return nil, fmt.Errorf("%w: redirect_uri %q", oidc.ErrInvalidAuthRequest, req.RedirectURI)
	}

	params := url.Values{}
	if req.State != "" {
		params.Set("state", req.State)
	}
	if err := req.Validate(); err != nil {
		params.Set("error", string(oidc.InvalidRequest))
		params.Set("error_description", err.Error())
	} else if req.ResponseType != oidc.ResponseTypeIDTokenOnly {
		params.Set("error", string(oidc.UnsupportedResponseType))
	} else {
		idToken, err := p.idToken(req)
		if err != nil {
			return nil, err
		}
		params.Set("id_token", idToken)
	}
	redirect.Fragment = params.Encode()
	return redirect, nil
}

func (p *localSelfIssuedProvider) idToken(req *oidc.AuthRequest) (string, error) {
	subject, err := crypto.Thumbprint(p.key.PrivateKey.Public())
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := oidc.NewIDTokenClaims(subject, subject, nil, now.Add(selfIssuedLifetime), now, req.Nonce, "", nil, req.ClientID, 0)
	jwk := p.key.PublicKey(crypto.KeyUseSignature)
	claims.SubjectJWK = &jwk

	released := append(oidc.ScopeClaims(req.Scopes...), req.Claims.Names()...)
	data, err := json.Marshal(p.info)
	if err != nil {
		return "", err
	}
	var available map[string]any
	if err = json.Unmarshal(data, &available); err != nil {
		return "", err
	}
	claims.Claims = make(map[string]any, len(released))
	for _, name := range released {
		if v, ok := available[name]; ok {
			claims.Claims[name] = v
		}
	}
	return crypto.SignObject(claims, p.key.SigningKey(), p.key.Algorithm)
}
