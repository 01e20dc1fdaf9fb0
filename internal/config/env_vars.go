package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	portEnvVar  = "port"
	appNameVar  = "app_name"
	baseURLVar  = "base_url"
	envVar      = "env"
	logLevelVar = "log_level"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.v.GetString(portEnvVar)
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameVar)
}

// GetBaseURL returns the public site URL (e.g., "https://jonkersai.nl"), used for sitemap locations.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.v.GetString(baseURLVar), "/")
}

func (e EnvVars) GetEnv() string {
	env := e.v.GetString(envVar)
	if env == "" {
		return "DEV"
	}
	return strings.ToUpper(env)
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelVar)
}
