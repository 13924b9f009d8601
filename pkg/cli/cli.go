// Package cli authenticates the user of a native application.
// The redirect URI is served on a local address while the
// system browser is sent to the OpenID Provider.
package cli

import (
	"context"
	"errors"

	"github.com/zitadel/oidc-rp/pkg/client/rp"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

var ErrHostMissing = errors.New("relying party has no host to serve the redirect uri")

type result struct {
	resp oidc.AuthorizationResponse
	info *oidc.UserInfo
	err  error
}

// Login runs one authentication with relyingParty while its Host is
// served on addr, and returns the validated response together with
// the claims of the End-User. The server is stopped before Login returns.
func Login(ctx context.Context, relyingParty rp.RelyingParty, addr string, opts ...rp.URLParamOpt) (oidc.AuthorizationResponse, *oidc.UserInfo, error) {
	host := relyingParty.Host()
	if host == nil {
		return nil, nil, ErrHostMissing
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := host.Start(ctx, addr)

	done := make(chan result, 1)
	go func() {
		req := rp.NewAuthRequest(relyingParty)
		resp, err := rp.Authenticate(ctx, relyingParty, req, opts...)
		if err != nil {
			done <- result{err: err}
			return
		}
		info, err := rp.GetUserInfo(ctx, relyingParty, req, resp)
		done <- result{resp: resp, info: info, err: err}
	}()

	select {
	case err := <-errs:
		cancel()
		r := <-done
		if err != nil {
			return nil, nil, err
		}
		return r.resp, r.info, r.err
	case r := <-done:
		return r.resp, r.info, r.err
	}
}
