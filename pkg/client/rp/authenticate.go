package rp

import (
	"context"
	"errors"
	"net/url"
	"path"
	"time"

	"github.com/pkg/browser"

	"github.com/zitadel/oidc-rp/internal/metrics"
	"github.com/zitadel/oidc-rp/pkg/client"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

var (
	ErrCallbackTimeout        = errors.New("timeout waiting for the authorization response")
	ErrDeliveryChannelMissing = errors.New("no delivery channel for authorization responses")
	ErrUserAgentMissing       = errors.New("no user agent to send the authentication request")
)

// UserAgent sends the End-User to the authorization endpoint.
type UserAgent interface {
	Navigate(ctx context.Context, authURL *url.URL) error
}

// UserAgentFunc is a function implementing UserAgent.
type UserAgentFunc func(ctx context.Context, authURL *url.URL) error

func (f UserAgentFunc) Navigate(ctx context.Context, authURL *url.URL) error {
	return f(ctx, authURL)
}

// BrowserUserAgent opens the authorization URL in the system browser.
type BrowserUserAgent struct{}

func (BrowserUserAgent) Navigate(_ context.Context, authURL *url.URL) error {
	return browser.OpenURL(authURL.String())
}

// Authenticate runs one authentication: it validates and dispatches req,
// registers the state at the DeliveryChannel of rp, sends the user agent
// to the OP and waits for the response at most CallbackTimeout.
// The response is validated according to the response type of req.
//
// Each state is used once. Responses arriving after the timeout
// are discarded by the DeliveryChannel.
func Authenticate(ctx context.Context, rp RelyingParty, req *oidc.AuthRequest, opts ...URLParamOpt) (resp oidc.AuthorizationResponse, err error) {
	ctx, span := client.Tracer.Start(ctx, "Authenticate")
	defer span.End()

	ctx = logCtxWithRPData(ctx, rp, "function", "Authenticate")
	logger := loggerFrom(ctx)
	flow, _ := req.ResponseType.Flow()
	received := false
	defer func() {
		result := authenticationResult(err, received)
		metrics.GetPrometheusMetrics().IncAuthentication(flow.String(), result)
		if err != nil {
			logger.DebugContext(ctx, "authentication failed", "result", result, "error", err)
		}
	}()

	if err = req.Validate(); err != nil {
		return nil, err
	}
	channel := rp.DeliveryChannel()
	if channel == nil {
		return nil, ErrDeliveryChannelMissing
	}
	userAgent := rp.UserAgent()
	if userAgent == nil {
		return nil, ErrUserAgentMissing
	}
	mode, _ := rp.RequestObject()
	authURL, err := Dispatch(ctx, rp, req, mode, opts...)
	if err != nil {
		return nil, err
	}
	if requestURI := authURL.Query().Get("request_uri"); requestURI != "" {
		defer rp.Host().Unpublish(path.Base(requestURI))
	}

	completion, err := channel.Expect(req.State)
	if err != nil {
		return nil, err
	}
	if err = userAgent.Navigate(ctx, authURL); err != nil {
		completion.Abandon()
		return nil, err
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, rp.CallbackTimeout())
	defer cancel()
	params, err := completion.Wait(waitCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = ErrCallbackTimeout
		}
		metrics.GetPrometheusMetrics().ObserveCallbackWait(authenticationResult(err, false), time.Since(start))
		return nil, err
	}
	metrics.GetPrometheusMetrics().ObserveCallbackWait(metrics.ResultSuccess, time.Since(start))
	received = true

	resp, err = ValidateResponse(ctx, rp, req, params)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "authentication succeeded", "flow", flow.String())
	return resp, nil
}

func authenticationResult(err error, received bool) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrCallbackTimeout):
		return metrics.ResultTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCanceled
	case received:
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
