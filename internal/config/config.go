package config

import (
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "JONKERSAI"

type Config interface {
	EnvConfig
	CorsConfig
	AuthConfig
	BackendConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Auth
	Backend
}

// New builds the configuration from JONKERSAI_* environment variables.
func New() Config {
	c, _ := Load("")
	return c
}

// Load reads the optional config file at path and layers the environment on top.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return mainConfig{EnvVars{v}, Cors{v}, Auth{v}, Backend{v}}, err
		}
	}
	return mainConfig{EnvVars{v}, Cors{v}, Auth{v}, Backend{v}}, nil
}

// FromViper wraps an existing viper instance, used by tests and the CLI.
func FromViper(v *viper.Viper) Config {
	setDefaults(v)
	return mainConfig{EnvVars{v}, Cors{v}, Auth{v}, Backend{v}}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "8080")
	v.SetDefault(appNameVar, "Jonkers AI")
	v.SetDefault(baseURLVar, "https://jonkersai.nl")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")

	v.SetDefault(allowedOriginsVar, []string{"https://jonkersai.nl"})

	v.SetDefault(adminDomainVar, "@jonkersai.nl")
	v.SetDefault(passwordStorageVar, PasswordStorageLegacy)
	v.SetDefault(sessionCookieMaxAgeVar, "8h")

	v.SetDefault(storeDriverVar, "sqlite")
	v.SetDefault(storeDSNVar, "./data/site.db")
	v.SetDefault(providerKindVar, "gotrue")
	v.SetDefault(httpTimeoutVar, "15s")
	v.SetDefault(webhookRetriesVar, 2)
	v.SetDefault(webhookDelayVar, "1s")
}
