package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// DefaultCookieMaxAge bounds how long an authentication request
// may stay pending in the user agent.
const DefaultCookieMaxAge = 10 * time.Minute

var ErrCookieMismatch = errors.New("cookie does not match the request parameter")

// CookieHandler keeps the state and nonce of a pending authentication
// request in signed cookies between the redirect to the OP and the
// authorization response. With an encryption key the values are
// encrypted as well.
type CookieHandler struct {
	codec    *securecookie.SecureCookie
	secure   bool
	sameSite http.SameSite
	maxAge   time.Duration
	domain   string
	path     string
}

// NewCookieHandler creates a CookieHandler for secure, SameSite=Lax
// cookies on path "/" which expire after DefaultCookieMaxAge.
func NewCookieHandler(hashKey, encryptKey []byte, opts ...CookieHandlerOpt) *CookieHandler {
	c := &CookieHandler{
		codec:    securecookie.New(hashKey, encryptKey),
		secure:   true,
		sameSite: http.SameSiteLaxMode,
		path:     "/",
	}
	WithMaxAge(DefaultCookieMaxAge)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type CookieHandlerOpt func(*CookieHandler)

// WithUnsecure drops the Secure attribute, for RPs served over plain http
// during development.
func WithUnsecure() CookieHandlerOpt {
	return func(c *CookieHandler) {
		c.secure = false
	}
}

// WithSameSite overrides the SameSite attribute.
// A response_mode of form_post reaches the RP as a cross-site POST,
// which only carries cookies with http.SameSiteNoneMode.
func WithSameSite(sameSite http.SameSite) CookieHandlerOpt {
	return func(c *CookieHandler) {
		c.sameSite = sameSite
	}
}

// WithMaxAge limits the lifetime of the cookies and of the signed values,
// older values are rejected even if the user agent still sends them.
func WithMaxAge(maxAge time.Duration) CookieHandlerOpt {
	return func(c *CookieHandler) {
		c.maxAge = maxAge
		c.codec.MaxAge(int(maxAge.Seconds()))
	}
}

func WithDomain(domain string) CookieHandlerOpt {
	return func(c *CookieHandler) {
		c.domain = domain
	}
}

func WithPath(path string) CookieHandlerOpt {
	return func(c *CookieHandler) {
		c.path = path
	}
}

// CheckCookie returns the decoded value of the cookie name.
func (c *CookieHandler) CheckCookie(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	var value string
	if err = c.codec.Decode(name, cookie.Value, &value); err != nil {
		return "", fmt.Errorf("cookie %s: %w", name, err)
	}
	return value, nil
}

// CheckParamCookie returns the value of the cookie name if the request
// carries the same value in its parameter name, as the state of an
// authorization response must.
func (c *CookieHandler) CheckParamCookie(r *http.Request, name string) (string, error) {
	value, err := c.CheckCookie(r, name)
	if err != nil {
		return "", err
	}
	if param := r.FormValue(name); param != value {
		return "", fmt.Errorf("%w: %s", ErrCookieMismatch, name)
	}
	return value, nil
}

func (c *CookieHandler) SetCookie(w http.ResponseWriter, name, value string) error {
	encoded, err := c.codec.Encode(name, value)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(name, encoded, int(c.maxAge.Seconds())))
	return nil
}

// DeleteCookie expires the cookie name, once the response it protected
// has been processed.
func (c *CookieHandler) DeleteCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, c.cookie(name, "", -1))
}

func (c *CookieHandler) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   c.domain,
		Path:     c.path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	}
}
