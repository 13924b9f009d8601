package rp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/zitadel/oidc-rp/pkg/client"
	"github.com/zitadel/oidc-rp/pkg/crypto"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

// RequestMode selects how the authentication request is transmitted.
type RequestMode string

const (
	// RequestModeParameters sends every field as query parameter.
	RequestModeParameters RequestMode = "parameters"
	// RequestModeValue sends a request object in the `request` parameter.
	RequestModeValue RequestMode = "value"
	// RequestModeReference publishes the request object on the Host
	// and sends its URL in the `request_uri` parameter.
	RequestModeReference RequestMode = "reference"
)

// RequestObjectLifetime is the `exp` of request objects relative to `iat`.
const RequestObjectLifetime = 5 * time.Minute

var (
	ErrRequestMode        = errors.New("unknown request mode")
	ErrRequestObjectHost  = errors.New("request_uri requires a host")
	ErrRequestObjectKey   = errors.New("no key for request object")
	ErrProviderEncryption = errors.New("openid provider has no encryption key")
)

func (m RequestMode) valid() error {
	switch m {
	case RequestModeParameters, RequestModeValue, RequestModeReference:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrRequestMode, m)
}

// RequestObjectProtection configures the JOSE protection of request objects.
// An empty SigningAlg signs with the RP signing key, or creates an unsecured
// object (`alg=none`) if there is none. Empty EncryptionAlg leaves the object
// unencrypted, otherwise it is signed first and then encrypted for the
// `use=enc` key of the OP.
type RequestObjectProtection struct {
	SigningAlg    jose.SignatureAlgorithm
	EncryptionAlg jose.KeyAlgorithm
	EncryptionEnc jose.ContentEncryption
}

func (p RequestObjectProtection) encrypted() bool {
	return p.EncryptionAlg != ""
}

// NewAuthRequest creates an authentication request from the RP configuration
// with a random state, and a random nonce for every flow.
func NewAuthRequest(rp RelyingParty) *oidc.AuthRequest {
	config := rp.OAuthConfig()
	return &oidc.AuthRequest{
		Scopes:       oidc.Scopes(config.Scopes),
		ResponseType: rp.ResponseType(),
		ClientID:     config.ClientID,
		RedirectURI:  config.RedirectURL,
		State:        uuid.NewString(),
		Nonce:        uuid.NewString(),
	}
}

// BuildRequestObject returns the JWT claims of req, issued by the client
// for the OP. It does not modify req.
func BuildRequestObject(req *oidc.AuthRequest, issuer string) *oidc.RequestObject {
	now := time.Now()
	return &oidc.RequestObject{
		AuthRequest: *req,
		Issuer:      req.ClientID,
		Audience:    oidc.Audience{issuer},
		IssuedAt:    oidc.FromTime(now),
		Expiration:  oidc.FromTime(now.Add(RequestObjectLifetime)),
		JWTID:       uuid.NewString(),
	}
}

// SignRequestObject serializes the request object according to protection.
// keys is the key set of the OP, which is only used for encryption.
func SignRequestObject(object *oidc.RequestObject, signingKey *crypto.KeyPair, protection RequestObjectProtection, keys *jose.JSONWebKeySet) (string, error) {
	alg := protection.SigningAlg
	var key any
	switch {
	case alg == crypto.NoneAlgorithm:
	case signingKey != nil:
		if alg == "" {
			alg = signingKey.Algorithm
		}
		key = signingKey.SigningKey()
	case alg == "":
		alg = crypto.NoneAlgorithm
	default:
		return "", fmt.Errorf("%w: signing with %s", ErrRequestObjectKey, alg)
	}
	object.SignatureAlg = alg
	token, err := crypto.SignObject(object, key, alg)
	if err != nil {
		return "", err
	}
	if !protection.encrypted() {
		return token, nil
	}
	encKey, err := oidc.SelectKey(keys, crypto.KeyUseEncryption, keyTypeForAlg(protection.EncryptionAlg))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderEncryption, err)
	}
	return crypto.EncryptSigned(token, encKey, protection.EncryptionAlg, protection.EncryptionEnc)
}

func keyTypeForAlg(alg jose.KeyAlgorithm) string {
	switch alg {
	case jose.RSA1_5, jose.RSA_OAEP, jose.RSA_OAEP_256:
		return oidc.KeyTypeRSA
	case jose.ECDH_ES, jose.ECDH_ES_A128KW, jose.ECDH_ES_A192KW, jose.ECDH_ES_A256KW:
		return oidc.KeyTypeEC
	}
	return ""
}

// Dispatch validates req and returns the URL of the authorization endpoint
// the user agent must be sent to. Depending on mode the request is encoded
// as parameters, as request object by value or as request object by
// reference. In the latter case the object is published on the Host of rp
// before the URL is returned. Additional parameters may be set with opts.
func Dispatch(ctx context.Context, rp RelyingParty, req *oidc.AuthRequest, mode RequestMode, opts ...URLParamOpt) (*url.URL, error) {
	ctx, span := client.Tracer.Start(ctx, "Dispatch")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := mode.valid(); err != nil {
		return nil, err
	}
	ctx = logCtxWithRPData(ctx, rp, "function", "Dispatch", "mode", string(mode))
	logger := loggerFrom(ctx)

	var (
		params []oauth2.AuthCodeOption
		state  string
	)
	switch mode {
	case RequestModeParameters:
		var err error
		params, err = requestParams(req)
		if err != nil {
			return nil, err
		}
		state = req.State
	default:
		metadata, err := rp.ProviderMetadata(ctx)
		if err != nil {
			return nil, err
		}
		if !metadata.SupportsRequestObjects(mode == RequestModeReference) {
			logger.WarnContext(ctx, "openid provider does not advertise request object support")
		}
		token, err := requestObject(ctx, rp, req)
		if err != nil {
			return nil, err
		}
		params = []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("scope", oidc.SpaceDelimitedArray(req.Scopes).String()),
			oauth2.SetAuthURLParam("response_type", string(req.ResponseType)),
			oauth2.SetAuthURLParam("client_id", req.ClientID),
			oauth2.SetAuthURLParam("redirect_uri", req.RedirectURI),
		}
		if mode == RequestModeValue {
			params = append(params, oauth2.SetAuthURLParam("request", token))
			break
		}
		host := rp.Host()
		if host == nil {
			return nil, ErrRequestObjectHost
		}
		uri, _, err := host.Publish(ctx, token)
		if err != nil {
			return nil, err
		}
		params = append(params, oauth2.SetAuthURLParam("request_uri", uri))
	}
	for _, opt := range opts {
		params = append(params, opt()...)
	}
	authURL, err := url.Parse(rp.OAuthConfig().AuthCodeURL(state, params...))
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "dispatch authentication request", "response_type", req.ResponseType)
	return authURL, nil
}

// requestParams encodes every field of req as AuthCodeOption,
// overriding the defaults of the oauth2 config.
func requestParams(req *oidc.AuthRequest) ([]oauth2.AuthCodeOption, error) {
	values := make(url.Values)
	if err := oidc.NewEncoder().Encode(req, values); err != nil {
		return nil, err
	}
	if req.Claims != nil {
		values.Set("claims", req.Claims.String())
	}
	params := make([]oauth2.AuthCodeOption, 0, len(values))
	for key := range values {
		params = append(params, oauth2.SetAuthURLParam(key, values.Get(key)))
	}
	return params, nil
}

func requestObject(ctx context.Context, rp RelyingParty, req *oidc.AuthRequest) (string, error) {
	_, protection := rp.RequestObject()
	var keys *jose.JSONWebKeySet
	if protection.encrypted() {
		var err error
		if keys, err = rp.ProviderKeys(ctx); err != nil {
			return "", err
		}
	}
	return SignRequestObject(BuildRequestObject(req, rp.Issuer()), rp.SigningKey(), protection, keys)
}
