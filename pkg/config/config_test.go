package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
issuer: https://op.example.com
clientId: client
clientSecret: secret
redirectUri: https://rp.example.com/callback
scopes: [openid, profile, email]
responseType: id_token token
requestObject:
  mode: reference
  signingAlg: RS256
  encryptionAlg: RSA1_5
  encryptionEnc: A128CBC-HS256
host:
  baseUrl: https://rp.example.com
callbackTimeout: 30s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://op.example.com", cfg.Issuer)
	assert.Equal(t, "client", cfg.ClientID)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	assert.Equal(t, "id_token token", cfg.ResponseType)
	assert.Equal(t, RequestModeReference, cfg.RequestObject.Mode)
	assert.Equal(t, "A128CBC-HS256", cfg.RequestObject.EncryptionEnc)
	assert.Equal(t, "https://rp.example.com", cfg.Host.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.CallbackTimeout)

	// defaults
	assert.Equal(t, "/callback", cfg.Host.CallbackPath)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Cookie.MaxAge)
}

func TestLoad_env(t *testing.T) {
	t.Setenv("OIDC_RP_ISSUER", "https://other.example.com")
	t.Setenv("OIDC_RP_CLIENTID", "env-client")
	t.Setenv("OIDC_RP_REDIRECTURI", "https://rp.example.com/cb")
	t.Setenv("OIDC_RP_REQUESTOBJECT_MODE", "value")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", cfg.Issuer)
	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, RequestModeValue, cfg.RequestObject.Mode)
	assert.Equal(t, []string{"openid"}, cfg.Scopes)

	cfg, err = Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", cfg.Issuer, "environment overrides file")
	assert.Equal(t, RequestModeValue, cfg.RequestObject.Mode)
}

func TestLoad_errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "clientId: client\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Issuer:        "https://op.example.com",
			ClientID:      "client",
			RedirectURI:   "https://rp.example.com/callback",
			RequestObject: RequestObjectConfig{Mode: RequestModeParameters},
		}
	}
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no issuer", func(c *Config) { c.Issuer = "" }, true},
		{"no client id", func(c *Config) { c.ClientID = "" }, true},
		{"no redirect uri", func(c *Config) { c.RedirectURI = "" }, true},
		{"unknown mode", func(c *Config) { c.RequestObject.Mode = "inline" }, true},
		{"signing key without cert", func(c *Config) { c.Keys.SigningKeyFile = "key.pem" }, true},
		{"encryption cert without key", func(c *Config) { c.Keys.EncryptionCertFile = "enc.crt" }, true},
		{"alg without enc", func(c *Config) { c.RequestObject.EncryptionAlg = "RSA1_5" }, true},
		{"short cookie key", func(c *Config) { c.Cookie.HashKey = "short" }, true},
		{"negative cookie max age", func(c *Config) { c.Cookie.MaxAge = -time.Minute }, true},
		{"reference without base url", func(c *Config) { c.RequestObject.Mode = RequestModeReference }, true},
		{"reference with http base url", func(c *Config) {
			c.RequestObject.Mode = RequestModeReference
			c.Host.BaseURL = "http://rp.example.com"
		}, true},
		{"reference with https base url", func(c *Config) {
			c.RequestObject.Mode = RequestModeReference
			c.Host.BaseURL = "https://rp.example.com"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}
