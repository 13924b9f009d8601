package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zitadel/logging"

	"github.com/zitadel/oidc-rp/internal/metrics"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

var DefaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

var ErrUnexpectedStatus = errors.New("http status not ok")

type Decoder interface {
	Decode(dst any, src map[string][]string) error
}

type Encoder interface {
	Encode(src any, dst map[string][]string) error
}

type FormAuthorization func(url.Values)
type RequestAuthorization func(*http.Request)

func AuthorizeBasic(user, password string) RequestAuthorization {
	return func(req *http.Request) {
		req.SetBasicAuth(url.QueryEscape(user), url.QueryEscape(password))
	}
}

// AuthorizeBearer sets the Authorization header to `tokenType token`.
// An empty tokenType defaults to Bearer.
func AuthorizeBearer(token, tokenType string) RequestAuthorization {
	if tokenType == "" {
		tokenType = oidc.BearerToken
	}
	return func(req *http.Request) {
		req.Header.Set("Authorization", tokenType+" "+token)
	}
}

func FormRequest(ctx context.Context, endpoint string, request any, encoder Encoder, authFn any) (*http.Request, error) {
	form := url.Values{}
	if err := encoder.Encode(request, form); err != nil {
		return nil, err
	}
	if fn, ok := authFn.(FormAuthorization); ok {
		fn(form)
	}
	body := strings.NewReader(form.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if fn, ok := authFn.(RequestAuthorization); ok {
		fn(req)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// JSONRequest creates a POST request with request marshalled as JSON body.
// authFn may be nil.
func JSONRequest(ctx context.Context, endpoint string, request any, authFn RequestAuthorization) (*http.Request, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if authFn != nil {
		authFn(req)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// HttpRequest sends req and unmarshals the JSON body of any 2xx response into response.
// Error bodies in the OAuth format are returned as *oidc.Error.
func HttpRequest(client *http.Client, req *http.Request, response any) error {
	promMetrics := metrics.GetPrometheusMetrics()
	target := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		promMetrics.ObserveHTTPClientRequest(req.Method, target, 0, time.Since(start), metrics.HTTPRequestErrorDo)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		promMetrics.ObserveHTTPClientRequest(req.Method, target, resp.StatusCode, time.Since(start), metrics.HTTPRequestErrorReadBody)
		return fmt.Errorf("unable to read response body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		promMetrics.ObserveHTTPClientRequest(req.Method, target, resp.StatusCode, time.Since(start), metrics.HTTPRequestErrorUnexpectedStatusCode)
		var oidcErr oidc.Error
		err = json.Unmarshal(body, &oidcErr)
		if err != nil || oidcErr.ErrorType == "" {
			return fmt.Errorf("%w: %s %s", ErrUnexpectedStatus, resp.Status, body)
		}
		return &oidcErr
	}

	err = json.Unmarshal(body, response)
	if err != nil {
		promMetrics.ObserveHTTPClientRequest(req.Method, target, resp.StatusCode, time.Since(start), metrics.HTTPRequestErrorDecodeBody)
		return fmt.Errorf("failed to unmarshal response: %v %s", err, body)
	}
	promMetrics.ObserveHTTPClientRequest(req.Method, target, resp.StatusCode, time.Since(start), "")
	return nil
}

func URLEncodeParams(resp any, encoder Encoder) (url.Values, error) {
	values := make(map[string][]string)
	err := encoder.Encode(resp, values)
	if err != nil {
		return nil, err
	}
	return values, nil
}

// StartServer serves handler on addr until ctx is done.
// Serve errors are sent on the returned channel, which is closed after shutdown.
func StartServer(ctx context.Context, addr string, handler http.Handler) <-chan error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger(ctx).Error("ListenAndServe()", "addr", addr, "error", err)
			errs <- err
		}
	}()

	go func() {
		<-ctx.Done()
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger(ctx).Error("Shutdown()", "addr", addr, "error", err)
		}
	}()
	return errs
}

func logger(ctx context.Context) *slog.Logger {
	if logger, ok := logging.FromContext(ctx); ok {
		return logger
	}
	return slog.Default()
}
