package oidc

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthorizationResponse(t *testing.T) {
	tests := []struct {
		name         string
		params       url.Values
		responseType ResponseType
		want         AuthorizationResponse
		wantErr      error
	}{
		{
			name: "code",
			params: url.Values{
				"code":          {"abc"},
				"state":         {"123"},
				"session_state": {"s"},
				"unknown":       {"ignored"},
			},
			responseType: ResponseTypeCode,
			want: &CodeResponse{
				State:        "123",
				Code:         "abc",
				SessionState: "s",
			},
		},
		{
			name:         "code missing",
			params:       url.Values{"state": {"123"}},
			responseType: ResponseTypeCode,
			wantErr:      ErrMissingResponseField,
		},
		{
			name:         "state missing",
			params:       url.Values{"code": {"abc"}},
			responseType: ResponseTypeCode,
			wantErr:      ErrMissingResponseField,
		},
		{
			name: "implicit id_token token",
			params: url.Values{
				"id_token":     {"id"},
				"access_token": {"at"},
				"token_type":   {"Bearer"},
				"expires_in":   {"3600"},
				"scope":        {"openid email"},
				"state":        {"123"},
			},
			responseType: ResponseTypeIDToken,
			want: &ImplicitResponse{
				State:       "123",
				IDToken:     "id",
				AccessToken: "at",
				TokenType:   "Bearer",
				ExpiresIn:   3600,
				Scope:       SpaceDelimitedArray{"openid", "email"},
			},
		},
		{
			name: "implicit id_token only",
			params: url.Values{
				"id_token": {"id"},
				"state":    {"123"},
			},
			responseType: ResponseTypeIDTokenOnly,
			want: &ImplicitResponse{
				State:   "123",
				IDToken: "id",
			},
		},
		{
			name: "implicit access token missing",
			params: url.Values{
				"id_token": {"id"},
				"state":    {"123"},
			},
			responseType: ResponseTypeIDToken,
			wantErr:      ErrMissingResponseField,
		},
		{
			name: "implicit token type missing",
			params: url.Values{
				"id_token":     {"id"},
				"access_token": {"at"},
				"state":        {"123"},
			},
			responseType: ResponseTypeIDToken,
			wantErr:      ErrMissingResponseField,
		},
		{
			name: "hybrid",
			params: url.Values{
				"code":     {"abc"},
				"id_token": {"id"},
				"state":    {"123"},
			},
			responseType: ResponseTypeCodeIDToken,
			want: &HybridResponse{
				State:   "123",
				Code:    "abc",
				IDToken: "id",
			},
		},
		{
			name: "hybrid id_token missing",
			params: url.Values{
				"code":  {"abc"},
				"state": {"123"},
			},
			responseType: ResponseTypeCodeIDToken,
			wantErr:      ErrMissingResponseField,
		},
		{
			name: "malformed",
			params: url.Values{
				"id_token":   {"id"},
				"state":      {"123"},
				"expires_in": {"soon"},
			},
			responseType: ResponseTypeIDTokenOnly,
			wantErr:      ErrMalformedResponse,
		},
		{
			name:         "unsupported response type",
			params:       url.Values{"state": {"123"}},
			responseType: "foo",
			wantErr:      ErrUnsupportedResponseType,
		},
		{
			name: "OP error",
			params: url.Values{
				"error":             {"access_denied"},
				"error_description": {"user cancelled"},
				"state":             {"123"},
			},
			responseType: ResponseTypeCode,
			wantErr:      ErrAccessDenied(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAuthorizationResponse(tt.params, tt.responseType)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "123", got.GetState())
		})
	}
}

func TestAuthorizationResponse_Flow(t *testing.T) {
	assert.Equal(t, FlowCode, (&CodeResponse{}).Flow())
	assert.Equal(t, FlowImplicit, (&ImplicitResponse{}).Flow())
	assert.Equal(t, FlowHybrid, (&HybridResponse{}).Flow())
}
