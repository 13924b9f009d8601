package rp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/muhlemmer/httpforwarded"
	"github.com/rs/cors"

	"github.com/zitadel/oidc-rp/pkg/crypto"
	httphelper "github.com/zitadel/oidc-rp/pkg/http"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

const (
	requestObjectPath   = "/requests"
	keysPath            = "/jwks"
	defaultCallbackPath = "/callback"
)

var ErrHostBaseURLUnknown = errors.New("external base url of the host is unknown")

var defaultHostCORSOptions = cors.Options{
	AllowedHeaders: []string{
		"Origin",
		"Accept",
		"Content-Type",
	},
	AllowedMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
	},
	AllowOriginFunc: func(_ string) bool {
		return true
	},
}

// Host is the HTTP surface of the RP: it serves request objects
// passed by reference, the published keys of the RP
// and the redirect URI callback.
type Host struct {
	baseURL        string
	callbackPath   string
	allowedOrigins []string
	keys           *jose.JSONWebKeySet
	callback       *CallbackHandler

	mu      sync.RWMutex
	objects map[string]string
	learned string
	err     error

	handler http.Handler
}

type HostOption func(*Host)

// WithBaseURL sets the external URL of the host. Without it,
// the URL is taken from the listen address on Start.
func WithBaseURL(baseURL string) HostOption {
	return func(h *Host) {
		h.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithPublishedKeys publishes the public keys of the pairs at /jwks.
// Either pair may be nil.
func WithPublishedKeys(sign, enc *crypto.KeyPair) HostOption {
	return func(h *Host) {
		if sign == nil && enc == nil {
			return
		}
		keys, err := crypto.PublishKeyPairs(sign, enc)
		if err != nil {
			h.err = fmt.Errorf("publish keys: %w", err)
			return
		}
		h.keys = keys
	}
}

func WithCallbackPath(path string) HostOption {
	return func(h *Host) {
		if path != "" {
			h.callbackPath = "/" + strings.TrimPrefix(path, "/")
		}
	}
}

// WithAllowedOrigins restricts CORS to the origins.
// All origins are allowed by default.
func WithAllowedOrigins(origins ...string) HostOption {
	return func(h *Host) {
		h.allowedOrigins = origins
	}
}

func NewHost(opts ...HostOption) *Host {
	h := &Host{
		callbackPath: defaultCallbackPath,
		callback:     NewCallbackHandler(),
		objects:      make(map[string]string),
		keys:         new(jose.JSONWebKeySet),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.handler = h.routes()
	return h
}

func (h *Host) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(h.checkBaseURL)
	router.Get(requestObjectPath+"/{id}", h.requestObjectHandler)
	router.Get(keysPath, h.KeysHandler)
	router.Handle(h.callbackPath, h.callback)

	options := defaultHostCORSOptions
	if len(h.allowedOrigins) > 0 {
		options.AllowOriginFunc = nil
		options.AllowedOrigins = h.allowedOrigins
	}
	return cors.New(options).Handler(router)
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// Err returns the error of an option, if any.
func (h *Host) Err() error {
	return h.err
}

// Start serves the host on addr until ctx is done. Without WithBaseURL,
// the first Start sets the base URL to http://addr, with localhost
// for an unspecified host.
func (h *Host) Start(ctx context.Context, addr string) <-chan error {
	if h.baseURL == "" {
		h.mu.Lock()
		if h.learned == "" {
			h.learned = listenBaseURL(addr)
		}
		h.mu.Unlock()
	}
	return httphelper.StartServer(ctx, addr, h)
}

// Callback returns the DeliveryChannel mounted at the callback path.
func (h *Host) Callback() *CallbackHandler {
	return h.callback
}

func (h *Host) BaseURL() (string, error) {
	if h.baseURL != "" {
		return h.baseURL, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.learned == "" {
		return "", ErrHostBaseURLUnknown
	}
	return h.learned, nil
}

func (h *Host) url(path string) (string, error) {
	base, err := h.BaseURL()
	if err != nil {
		return "", err
	}
	return base + path, nil
}

// CallbackURL is the redirect URI served by the host.
func (h *Host) CallbackURL() (string, error) {
	return h.url(h.callbackPath)
}

// JwksURI is the URL of the published keys.
func (h *Host) JwksURI() (string, error) {
	return h.url(keysPath)
}

// Keys returns the published key set.
func (h *Host) Keys() *jose.JSONWebKeySet {
	return h.keys
}

// Publish makes a serialized request object available until it is
// unpublished. It returns the request_uri and the id of the object.
// The request_uri must use https.
func (h *Host) Publish(ctx context.Context, token string) (uri, id string, err error) {
	id = uuid.NewString()
	uri, err = h.url(requestObjectPath + "/" + id)
	if err != nil {
		return "", "", err
	}
	if !strings.HasPrefix(uri, "https://") {
		return "", "", &oidc.SchemeViolationError{Field: "request_uri", URI: uri}
	}
	h.mu.Lock()
	h.objects[id] = token
	h.mu.Unlock()
	loggerFrom(ctx).DebugContext(ctx, "request object published", "request_uri", uri)
	return uri, id, nil
}

func (h *Host) Unpublish(id string) {
	h.mu.Lock()
	delete(h.objects, id)
	h.mu.Unlock()
}

func (h *Host) requestObject(id string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	token, ok := h.objects[id]
	return token, ok
}

func (h *Host) requestObjectHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requestObject(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	httphelper.MarshalJWT(w, token, oidc.RequestObjectMediaType)
}

// KeysHandler serves the published key set.
func (h *Host) KeysHandler(w http.ResponseWriter, r *http.Request) {
	httphelper.MarshalJSON(w, h.keys)
}

// checkBaseURL logs requests addressed to another base URL
// than the configured one. The request values are never stored.
func (h *Host) checkBaseURL(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if base, err := h.BaseURL(); err == nil {
			if requested := requestBaseURL(r); requested != base {
				loggerFrom(r.Context()).DebugContext(r.Context(), "request for another base url",
					"base_url", base, "requested", requested, "path", r.URL.Path)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requestBaseURL prefers host and proto of the first Forwarded element.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if fwd, err := httpforwarded.ParseFromRequest(r); err == nil {
		if hosts := fwd["host"]; len(hosts) > 0 && hosts[0] != "" {
			host = hosts[0]
			if protos := fwd["proto"]; len(protos) > 0 && protos[0] != "" {
				scheme = protos[0]
			}
		}
	}
	return scheme + "://" + host
}

func listenBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
