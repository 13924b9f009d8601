package rp

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/zitadel/oidc-rp/pkg/client"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

var ErrCookieHandlerMissing = errors.New("cookie handler required")

// ValidateResponse parses the parameters delivered to the redirect URI
// according to the response type of req and validates them.
//
// The state is checked before anything else. ID Tokens from the
// authorization endpoint must carry the nonce of req, a c_hash for
// a returned code and an at_hash for a returned access token.
// OP error responses are returned as *oidc.Error.
func ValidateResponse(ctx context.Context, rp RelyingParty, req *oidc.AuthRequest, params url.Values) (oidc.AuthorizationResponse, error) {
	ctx, span := client.Tracer.Start(ctx, "ValidateResponse")
	defer span.End()

	resp, err := oidc.ParseAuthorizationResponse(params, req.ResponseType)
	if err != nil {
		return nil, err
	}
	if err = oidc.CheckState(resp.GetState(), req.State); err != nil {
		return nil, err
	}
	verifier := rp.IDTokenVerifier().withNonce(req.Nonce)
	switch r := resp.(type) {
	case *oidc.ImplicitResponse:
		r.IDTokenClaims, err = verifyFrontChannelIDToken(ctx, verifier, r.IDToken, r.AccessToken, "")
	case *oidc.HybridResponse:
		if r.IDToken != "" {
			r.IDTokenClaims, err = verifyFrontChannelIDToken(ctx, verifier, r.IDToken, r.AccessToken, r.Code)
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func verifyFrontChannelIDToken(ctx context.Context, v *IDTokenVerifier, idToken, accessToken, code string) (*oidc.IDTokenClaims, error) {
	claims, err := VerifyIDToken(ctx, idToken, v)
	if err != nil {
		return nil, err
	}
	if accessToken != "" {
		if err = oidc.CheckAccessTokenHash(claims, accessToken); err != nil {
			return nil, err
		}
	}
	if code != "" {
		if err = oidc.CheckCodeHash(claims, code); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// ResponseCallback receives a validated response together with the request
// it answers, restored from the cookies, so GetUserInfo can complete it.
type ResponseCallback func(w http.ResponseWriter, r *http.Request, req *oidc.AuthRequest, resp oidc.AuthorizationResponse, rp RelyingParty)

// ResponseHandler validates authorization responses of requests started by
// AuthURLHandler, for any response type and response mode. The state and
// nonce are taken from the cookies, so rp needs a CookieHandler.
func ResponseHandler(callback ResponseCallback, rp RelyingParty) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := client.Tracer.Start(r.Context(), "ResponseHandler")
		r = r.WithContext(ctx)
		defer span.End()

		cookies := rp.CookieHandler()
		if cookies == nil {
			unauthorizedError(w, r, ErrCookieHandlerMissing.Error(), "", rp)
			return
		}
		if err := r.ParseForm(); err != nil {
			unauthorizedError(w, r, "failed to parse response: "+err.Error(), "", rp)
			return
		}
		state, err := cookies.CheckCookie(r, stateParam)
		if err != nil {
			unauthorizedError(w, r, "failed to get state: "+err.Error(), "", rp)
			return
		}
		nonce, err := cookies.CheckCookie(r, nonceParam)
		if err != nil {
			unauthorizedError(w, r, "failed to get nonce: "+err.Error(), state, rp)
			return
		}
		cookies.DeleteCookie(w, stateParam)
		cookies.DeleteCookie(w, nonceParam)

		config := rp.OAuthConfig()
		req := &oidc.AuthRequest{
			Scopes:       oidc.Scopes(config.Scopes),
			ResponseType: rp.ResponseType(),
			ClientID:     config.ClientID,
			RedirectURI:  config.RedirectURL,
			State:        state,
			Nonce:        nonce,
		}
		resp, err := ValidateResponse(r.Context(), rp, req, r.Form)
		var opErr *oidc.Error
		switch {
		case errors.As(err, &opErr):
			rp.ErrorHandler()(w, r, string(opErr.ErrorType), opErr.Description, state)
			return
		case err != nil:
			unauthorizedError(w, r, "invalid authorization response: "+err.Error(), state, rp)
			return
		}
		callback(w, r, req, resp, rp)
	}
}
