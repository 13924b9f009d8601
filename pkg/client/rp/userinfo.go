package rp

import (
	"context"
	"errors"
	"net/http"

	"github.com/muhlemmer/gu"

	"github.com/zitadel/oidc-rp/pkg/client"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

var ErrIDTokenClaimsMissing = errors.New("validated id_token claims required")

// Userinfo will call the OIDC [UserInfo] Endpoint with the provided token and returns
// the response in an instance of type U.
// [*oidc.UserInfo] can be used as a good example, or use a custom type if type-safe
// access to custom claims is needed.
//
// [UserInfo]: https://openid.net/specs/openid-connect-core-1_0.html#UserInfo
func Userinfo[U SubjectGetter](ctx context.Context, token, tokenType, subject string, rp RelyingParty) (userinfo U, err error) {
	var nilU U
	ctx, span := client.Tracer.Start(ctx, "Userinfo")
	defer span.End()

	ctx = logCtxWithRPData(ctx, rp, "function", "Userinfo")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rp.UserinfoEndpoint(), nil)
	if err != nil {
		return nilU, err
	}
	httphelper.AuthorizeBearer(token, tokenType)(req)
	if err := httphelper.HttpRequest(rp.HttpClient(), req, &userinfo); err != nil {
		return nilU, err
	}
	if userinfo.GetSubject() != subject {
		return nilU, ErrUserInfoSubNotMatching
	}
	return userinfo, nil
}

// ResolveClaims returns the claims about the End-User from the ID Token and,
// if an access token was issued, from the UserInfo endpoint. On conflict the
// value of the ID Token is kept. Every requested claim must be resolved,
// otherwise an *oidc.MissingClaimsError lists the missing ones.
func ResolveClaims(ctx context.Context, rp RelyingParty, requested []string, idToken *oidc.IDTokenClaims, accessToken, tokenType string) (*oidc.UserInfo, error) {
	if idToken == nil {
		return nil, ErrIDTokenClaimsMissing
	}
	claims := make(map[string]any)
	if accessToken != "" {
		info, err := Userinfo[*oidc.UserInfo](ctx, accessToken, tokenType, idToken.Subject, rp)
		if err != nil {
			return nil, err
		}
		gu.MapMerge(info.Claims, claims)
	}
	gu.MapMerge(idToken.GetUserInfo().Claims, claims)

	if missing := oidc.MissingClaims(claims, requested...); len(missing) > 0 {
		return nil, &oidc.MissingClaimsError{Claims: missing}
	}
	return oidc.UserInfoFromClaims(claims)
}

// RequestedClaims returns the claims req explicitly asks for with
// the claims parameter.
//
// Claims implied by scope values, such as name for profile or
// phone_number for phone, are not counted: the OP may withhold them,
// so their absence never makes ResolveClaims fail.
func RequestedClaims(req *oidc.AuthRequest) []string {
	return req.Claims.Names()
}

// GetUserInfo resolves the claims requested by req for a validated response.
// Code and hybrid responses without ID Token or access token are completed
// at the token endpoint first.
func GetUserInfo(ctx context.Context, rp RelyingParty, req *oidc.AuthRequest, resp oidc.AuthorizationResponse) (*oidc.UserInfo, error) {
	ctx, span := client.Tracer.Start(ctx, "GetUserInfo")
	defer span.End()

	var (
		idToken                *oidc.IDTokenClaims
		accessToken, tokenType string
	)
	switch r := resp.(type) {
	case *oidc.ImplicitResponse:
		idToken, accessToken, tokenType = r.IDTokenClaims, r.AccessToken, r.TokenType
	case *oidc.HybridResponse:
		idToken, accessToken, tokenType = r.IDTokenClaims, r.AccessToken, r.TokenType
	}
	if resp.Flow() != oidc.FlowImplicit && (idToken == nil || accessToken == "") {
		tokens, err := ExchangeCode(ctx, rp, req, resp)
		if err != nil {
			return nil, err
		}
		idToken, accessToken, tokenType = tokens.IDTokenClaims, tokens.AccessToken, tokens.TokenType
	}
	return ResolveClaims(ctx, rp, RequestedClaims(req), idToken, accessToken, tokenType)
}
