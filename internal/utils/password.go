package utils

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

const specialChars = `²&~"#'{([-|` + "`" + `_\^@)]°+=}£$¤µ*%§!/:.;?,<>`

// ValidatePassword enforces the password policy: at least 8 characters
// with an upper-case letter, a lower-case letter, a digit and a special
// character. It returns a human-readable reason or "" when the password
// is acceptable.
func ValidatePassword(password string) string {
	if len(password) < 8 {
		return "password must be at least 8 characters long"
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	switch {
	case !upper:
		return "password must contain at least one uppercase letter"
	case !lower:
		return "password must contain at least one lowercase letter"
	case !digit:
		return "password must contain at least one number"
	case !special:
		return "password must contain at least one special character"
	}
	return ""
}
