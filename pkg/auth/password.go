package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured
const DefaultBcryptCost = 12

// HashPassword hashes plaintext with bcrypt at the given cost (0 selects DefaultBcryptCost)
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext against a bcrypt hash
func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordPolicy enumerates the strength rules. MinLength is always binding;
// the composition rules are opt-in.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy enforces length only
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8}
}

// StrictPasswordPolicy enforces length plus every composition rule
func StrictPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// PasswordValidation is the result of a strength check
type PasswordValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks password against the policy
func (p PasswordPolicy) Validate(password string) PasswordValidation {
	errs := []string{}

	minLength := p.MinLength
	if minLength <= 0 {
		minLength = 8
	}
	if len([]rune(password)) < minLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", minLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if p.RequireUpper && !upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if p.RequireLower && !lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if p.RequireSymbol && !symbol {
		errs = append(errs, "Password must contain at least one special character")
	}

	return PasswordValidation{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

// ValidatePasswordStrength checks password against DefaultPasswordPolicy
func ValidatePasswordStrength(password string) PasswordValidation {
	return DefaultPasswordPolicy().Validate(password)
}

// Summary joins validation errors for single-line responses
func (v PasswordValidation) Summary() string {
	return strings.Join(v.Errors, "; ")
}
