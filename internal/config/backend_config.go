package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	storeDriverVar    = "store.driver" // sqlite | postgres | rest
	storeDSNVar       = "store.dsn"
	storeURLVar       = "store.url"
	storeAPIKeyVar    = "store.api_key"
	providerKindVar   = "provider.kind" // gotrue | oidc
	providerURLVar    = "provider.url"
	oidcIssuerVar     = "provider.oidc_issuer"
	oidcClientVar     = "provider.oidc_client_id"
	oidcSecretVar     = "provider.oidc_client_secret"
	redisAddrVar      = "redis.addr"
	redisPassVar      = "redis.password"
	redisDBVar        = "redis.db"
	webhookURLVar     = "contact.webhook_url"
	webhookRetriesVar = "contact.webhook_retries"
	webhookDelayVar   = "contact.webhook_delay"
	httpTimeoutVar    = "http.timeout"
)

type BackendConfig interface {
	GetStoreDriver() string
	GetStoreDSN() string
	GetStoreURL() string
	GetStoreAPIKey() string
	GetProviderKind() string
	GetProviderURL() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetWebhookURL() string
	GetWebhookRetries() int
	GetWebhookDelay() time.Duration
	GetHTTPTimeout() time.Duration
}

type Backend struct {
	v *viper.Viper
}

var _ BackendConfig = Backend{}

func (b Backend) GetStoreDriver() string  { return b.v.GetString(storeDriverVar) }
func (b Backend) GetStoreDSN() string     { return b.v.GetString(storeDSNVar) }
func (b Backend) GetStoreURL() string     { return b.v.GetString(storeURLVar) }
func (b Backend) GetStoreAPIKey() string  { return b.v.GetString(storeAPIKeyVar) }
func (b Backend) GetProviderKind() string { return b.v.GetString(providerKindVar) }

// GetProviderURL defaults to the store URL since the hosted backend serves both.
func (b Backend) GetProviderURL() string {
	if u := b.v.GetString(providerURLVar); u != "" {
		return u
	}
	return b.GetStoreURL()
}

func (b Backend) GetOIDCIssuer() string       { return b.v.GetString(oidcIssuerVar) }
func (b Backend) GetOIDCClientID() string     { return b.v.GetString(oidcClientVar) }
func (b Backend) GetOIDCClientSecret() string { return b.v.GetString(oidcSecretVar) }

// GetRedisAddr is empty when login sessions should stay in memory.
func (b Backend) GetRedisAddr() string     { return b.v.GetString(redisAddrVar) }
func (b Backend) GetRedisPassword() string { return b.v.GetString(redisPassVar) }
func (b Backend) GetRedisDB() int          { return b.v.GetInt(redisDBVar) }

func (b Backend) GetWebhookURL() string { return b.v.GetString(webhookURLVar) }

func (b Backend) GetWebhookRetries() int {
	return b.v.GetInt(webhookRetriesVar)
}

func (b Backend) GetWebhookDelay() time.Duration {
	return b.v.GetDuration(webhookDelayVar)
}

func (b Backend) GetHTTPTimeout() time.Duration {
	return b.v.GetDuration(httpTimeoutVar)
}
