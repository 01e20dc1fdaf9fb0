package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	adminDomainVar         = "auth.admin_domain"
	passwordStorageVar     = "auth.password_storage"
	sessionCookieMaxAgeVar = "auth.session_max_age"
)

// Password storage modes for the credentials table.
const (
	PasswordStorageLegacy = "legacy" // plain value in both columns (matches the hosted check_credentials)
	PasswordStorageBcrypt = "bcrypt" // bcrypt hash in both columns
)

type AuthConfig interface {
	GetAdminDomainSuffix() string
	GetPasswordStorage() string
	GetSessionMaxAge() time.Duration
}

type Auth struct {
	v *viper.Viper
}

var _ AuthConfig = Auth{}

// GetAdminDomainSuffix is the email suffix that grants admin without a store lookup.
func (a Auth) GetAdminDomainSuffix() string {
	return a.v.GetString(adminDomainVar)
}

func (a Auth) GetPasswordStorage() string {
	if a.v.GetString(passwordStorageVar) == PasswordStorageBcrypt {
		return PasswordStorageBcrypt
	}
	return PasswordStorageLegacy
}

func (a Auth) GetSessionMaxAge() time.Duration {
	return a.v.GetDuration(sessionCookieMaxAgeVar)
}
