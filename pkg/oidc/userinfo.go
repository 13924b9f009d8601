package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// UserInfo implements OpenID Connect Core 1.0, section 5.1.
// https://openid.net/specs/openid-connect-core-1_0.html#StandardClaims.
type UserInfo struct {
	Subject string `json:"sub,omitempty"`
	UserInfoProfile
	UserInfoEmail
	UserInfoPhone
	Address *UserInfoAddress `json:"address,omitempty"`

	Claims map[string]any `json:"-"`
}

func (u *UserInfo) AppendClaims(k string, v any) {
	if u.Claims == nil {
		u.Claims = make(map[string]any)
	}

	u.Claims[k] = v
}

// GetAddress is a safe getter that takes
// care of a possible nil value.
func (u *UserInfo) GetAddress() *UserInfoAddress {
	if u.Address == nil {
		return new(UserInfoAddress)
	}
	return u.Address
}

// GetSubject implements [rp.SubjectGetter]
func (u *UserInfo) GetSubject() string {
	return u.Subject
}

// Claim returns a claim by name. Values which are null
// in the source document count as absent.
func (u *UserInfo) Claim(name string) (any, bool) {
	v, ok := u.Claims[name]
	return v, ok && v != nil
}

type uiAlias UserInfo

func (u *UserInfo) MarshalJSON() ([]byte, error) {
	return mergeAndMarshalClaims((*uiAlias)(u), u.Claims)
}

func (u *UserInfo) UnmarshalJSON(data []byte) error {
	return unmarshalJSONMulti(data, (*uiAlias)(u), &u.Claims)
}

// UserInfoFromClaims builds a UserInfo from a claims map.
func UserInfoFromClaims(claims map[string]any) (*UserInfo, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("oidc userinfo: %w", err)
	}
	info := new(UserInfo)
	if err = json.Unmarshal(data, info); err != nil {
		return nil, err
	}
	return info, nil
}

type UserInfoProfile struct {
	Name              string  `json:"name,omitempty"`
	GivenName         string  `json:"given_name,omitempty"`
	FamilyName        string  `json:"family_name,omitempty"`
	MiddleName        string  `json:"middle_name,omitempty"`
	Nickname          string  `json:"nickname,omitempty"`
	Profile           string  `json:"profile,omitempty"`
	Picture           string  `json:"picture,omitempty"`
	Website           string  `json:"website,omitempty"`
	Gender            Gender  `json:"gender,omitempty"`
	Birthdate         string  `json:"birthdate,omitempty"`
	Zoneinfo          string  `json:"zoneinfo,omitempty"`
	Locale            *Locale `json:"locale,omitempty"`
	UpdatedAt         Time    `json:"updated_at,omitempty"`
	PreferredUsername string  `json:"preferred_username,omitempty"`
}

type UserInfoEmail struct {
	Email string `json:"email,omitempty"`

	// Handle providers that return email_verified as a string
	// https://forums.aws.amazon.com/thread.jspa?messageID=949441&#949441
	// https://discuss.elastic.co/t/openid-error-after-authenticating-against-aws-cognito/206018/11
	EmailVerified Bool `json:"email_verified,omitempty"`
}

type Bool bool

func (bs *Bool) UnmarshalJSON(data []byte) error {
	if string(data) == "true" || string(data) == `"true"` {
		*bs = true
	}

	return nil
}

type UserInfoPhone struct {
	PhoneNumber         string `json:"phone_number,omitempty"`
	PhoneNumberVerified bool   `json:"phone_number_verified,omitempty"`
}

type UserInfoAddress struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

// tokenOnlyClaims are protocol claims of the ID Token
// which are not claims about the End-User.
var tokenOnlyClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "jti": {},
	"auth_time": {}, "nonce": {}, "acr": {}, "amr": {}, "azp": {},
	"at_hash": {}, "c_hash": {}, "sid": {}, "sub_jwk": {},
}

// userClaims returns a copy of claims without the token only claims.
func userClaims(claims map[string]any) map[string]any {
	if claims == nil {
		return nil
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		if _, ok := tokenOnlyClaims[k]; !ok {
			out[k] = v
		}
	}
	return out
}

var ErrMissingClaim = errors.New("requested claim missing")

// MissingClaimsError lists the requested claims which
// could not be found in any claim source.
type MissingClaimsError struct {
	Claims []string
}

func (e *MissingClaimsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingClaim, strings.Join(e.Claims, ", "))
}

func (e *MissingClaimsError) Unwrap() error {
	return ErrMissingClaim
}
