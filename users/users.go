package users

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Credentials table and its columns.
const (
	CredentialsTable   = "credentials"
	ColumnID           = "id"
	ColumnEmail        = "email"
	ColumnPassword     = "Password"      // compared verbatim by the hosted check_credentials
	ColumnPasswordHash = "password_hash" // kept in sync for compatibility
	ColumnIsAdmin      = "is_admin"
	ColumnName         = "name"
)

// DefaultAdminDomain is the organisation's reserved email suffix.
const DefaultAdminDomain = "@jonkersai.nl"

// Identity is an authenticated principal. Admin status is derived, never stored here.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CredentialRecord is a row of the fallback credentials table.
type CredentialRecord struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Password     string `json:"-"`
	PasswordHash string `json:"-"`
	IsAdmin      bool   `json:"is_admin"`
	Name         string `json:"name,omitempty"`
}

// HasDomain reports whether the identity's email ends with suffix (case-insensitive).
func (i *Identity) HasDomain(suffix string) bool {
	if i == nil || suffix == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(i.Email), strings.ToLower(suffix))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
