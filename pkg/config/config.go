// Package config loads the settings of a relying party
// from a configuration file and OIDC_RP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "OIDC_RP"

const (
	RequestModeParameters = "parameters"
	RequestModeValue      = "value"
	RequestModeReference  = "reference"
)

var ErrInvalidConfig = errors.New("invalid relying party configuration")

// Config represents the settings of one relying party.
type Config struct {
	Issuer       string   `mapstructure:"issuer"`
	DiscoveryURL string   `mapstructure:"discoveryUrl"`
	ClientID     string   `mapstructure:"clientId"`
	ClientSecret string   `mapstructure:"clientSecret"`
	RedirectURI  string   `mapstructure:"redirectUri"`
	Scopes       []string `mapstructure:"scopes"`
	ResponseType string   `mapstructure:"responseType"`

	Keys          KeysConfig          `mapstructure:"keys"`
	RequestObject RequestObjectConfig `mapstructure:"requestObject"`
	Host          HostConfig          `mapstructure:"host"`
	Cookie        CookieConfig        `mapstructure:"cookie"`

	HTTPTimeout     time.Duration `mapstructure:"httpTimeout"`
	CallbackTimeout time.Duration `mapstructure:"callbackTimeout"`
}

// KeysConfig points to the PEM files of the signing and encryption key pairs.
type KeysConfig struct {
	SigningCertFile    string `mapstructure:"signingCertFile"`
	SigningKeyFile     string `mapstructure:"signingKeyFile"`
	EncryptionCertFile string `mapstructure:"encryptionCertFile"`
	EncryptionKeyFile  string `mapstructure:"encryptionKeyFile"`
}

type RequestObjectConfig struct {
	Mode          string `mapstructure:"mode"`
	SigningAlg    string `mapstructure:"signingAlg"`
	EncryptionAlg string `mapstructure:"encryptionAlg"`
	EncryptionEnc string `mapstructure:"encryptionEnc"`
}

type HostConfig struct {
	Address        string   `mapstructure:"address"`
	BaseURL        string   `mapstructure:"baseUrl"`
	CallbackPath   string   `mapstructure:"callbackPath"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type CookieConfig struct {
	HashKey    string        `mapstructure:"hashKey"`
	EncryptKey string        `mapstructure:"encryptKey"`
	Insecure   bool          `mapstructure:"insecure"`
	MaxAge     time.Duration `mapstructure:"maxAge"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scopes", []string{"openid"})
	v.SetDefault("responseType", "code")
	v.SetDefault("requestObject.mode", RequestModeParameters)
	v.SetDefault("host.address", ":9999")
	v.SetDefault("host.callbackPath", "/callback")
	v.SetDefault("httpTimeout", 30*time.Second)
	v.SetDefault("callbackTimeout", 5*time.Minute)
	v.SetDefault("cookie.maxAge", 10*time.Minute)
}

// Load reads the configuration file at path, if not empty,
// and overrides its values with OIDC_RP_* environment variables.
// Nested keys use an underscore, e.g. OIDC_RP_REQUESTOBJECT_MODE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv makes keys without default known to viper,
// so Unmarshal picks up their environment variables.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"issuer", "discoveryUrl", "clientId", "clientSecret", "redirectUri",
		"keys.signingCertFile", "keys.signingKeyFile", "keys.encryptionCertFile", "keys.encryptionKeyFile",
		"requestObject.signingAlg", "requestObject.encryptionAlg", "requestObject.encryptionEnc",
		"host.baseUrl", "host.allowedOrigins",
		"cookie.hashKey", "cookie.encryptKey", "cookie.insecure",
	} {
		//nolint:errcheck
		v.BindEnv(key)
	}
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: issuer missing", ErrInvalidConfig)
	case c.ClientID == "":
		return fmt.Errorf("%w: clientId missing", ErrInvalidConfig)
	case c.RedirectURI == "":
		return fmt.Errorf("%w: redirectUri missing", ErrInvalidConfig)
	}
	switch c.RequestObject.Mode {
	case RequestModeParameters, RequestModeValue, RequestModeReference:
	default:
		return fmt.Errorf("%w: unknown requestObject.mode %q", ErrInvalidConfig, c.RequestObject.Mode)
	}
	if c.RequestObject.Mode == RequestModeReference && !strings.HasPrefix(c.Host.BaseURL, "https://") {
		return fmt.Errorf("%w: requestObject.mode reference needs an https host.baseUrl", ErrInvalidConfig)
	}
	if (c.Keys.SigningKeyFile == "") != (c.Keys.SigningCertFile == "") {
		return fmt.Errorf("%w: signing key and certificate must be set together", ErrInvalidConfig)
	}
	if (c.Keys.EncryptionKeyFile == "") != (c.Keys.EncryptionCertFile == "") {
		return fmt.Errorf("%w: encryption key and certificate must be set together", ErrInvalidConfig)
	}
	if (c.RequestObject.EncryptionAlg == "") != (c.RequestObject.EncryptionEnc == "") {
		return fmt.Errorf("%w: requestObject.encryptionAlg and encryptionEnc must be set together", ErrInvalidConfig)
	}
	if c.Cookie.HashKey != "" && len(c.Cookie.HashKey) < 32 {
		return fmt.Errorf("%w: cookie.hashKey must be at least 32 bytes", ErrInvalidConfig)
	}
	if c.Cookie.MaxAge < 0 {
		return fmt.Errorf("%w: cookie.maxAge must not be negative", ErrInvalidConfig)
	}
	return nil
}
