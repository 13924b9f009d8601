package client

import (
	"context"
	"net/http"

	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

// CallRegistrationEndpoint posts the client metadata as JSON to the
// registration endpoint of the OP and returns the decoded client information.
// authFn is optional and typically sets an initial access token.
func CallRegistrationEndpoint(ctx context.Context, endpoint string, metadata *oidc.ClientMetadata, authFn httphelper.RequestAuthorization, httpClient *http.Client) (*oidc.ClientInformation, error) {
	ctx, span := Tracer.Start(ctx, "CallRegistrationEndpoint")
	defer span.End()

	req, err := httphelper.JSONRequest(ctx, endpoint, metadata, authFn)
	if err != nil {
		return nil, err
	}
	info := new(oidc.ClientInformation)
	if err := httphelper.HttpRequest(httpClient, req, info); err != nil {
		return nil, err
	}
	return info, nil
}
