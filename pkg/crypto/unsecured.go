package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// signUnsecured creates an `alg=none` JWS. The payload is kept byte for byte,
// so the JOSE header is the only part produced here.
func signUnsecured(payload []byte) (string, error) {
	token := jwt.New(jwt.SigningMethodNone)
	header, err := json.Marshal(token.Header)
	if err != nil {
		return "", err
	}
	signingString := token.EncodeSegment(header) + "." + token.EncodeSegment(payload)
	sig, err := token.Method.Sign(signingString, jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		return "", err
	}
	return signingString + "." + token.EncodeSegment(sig), nil
}

var unsecuredParser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodNone.Alg()}),
	jwt.WithoutClaimsValidation(),
)

// verifyUnsecured accepts an `alg=none` JWS with an empty signature
// and returns the raw payload.
func verifyUnsecured(token string) ([]byte, error) {
	_, err := unsecuredParser.Parse(token, func(*jwt.Token) (any, error) {
		return jwt.UnsafeAllowNoneSignatureType, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	parts := strings.Split(token, ".")
	payload, err := unsecuredParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return payload, nil
}
