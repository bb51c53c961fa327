// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords = loadCommonPasswords()

func loadCommonPasswords() map[string]struct{} {
	passwords := make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return passwords
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if password := strings.ToLower(strings.TrimSpace(scanner.Text())); password != "" {
			passwords[password] = struct{}{}
		}
	}
	return passwords
}

// MinPasswordLength is the minimum number of characters of a password.
const MinPasswordLength = 12

// ValidationError is a single failed password rule.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// PasswordValidationError wraps every failed rule of one password.
type PasswordValidationError struct {
	Errors []ValidationError
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return e.Errors[0].Message
}

// Messages returns all error messages.
func (e *PasswordValidationError) Messages() []string {
	return lo.Map(e.Errors, func(v ValidationError, _ int) string {
		return v.Message
	})
}

// ValidatePassword checks length, numeric-only, common passwords and
// similarity to the email address. It returns nil for an acceptable password.
func ValidatePassword(password, email string) error {
	var errs []ValidationError

	if len([]rune(password)) < MinPasswordLength {
		errs = append(errs, ValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("Password must be at least %d characters long.", MinPasswordLength),
		})
	}

	if password != "" && lo.EveryBy([]rune(password), unicode.IsDigit) {
		errs = append(errs, ValidationError{
			Code:    "entirely_numeric",
			Message: "Password cannot be entirely numeric.",
		})
	}

	if _, common := commonPasswords[strings.ToLower(password)]; common {
		errs = append(errs, ValidationError{
			Code:    "common_password",
			Message: "This password is too common. Please choose a more secure password.",
		})
	}

	if similarToEmail(password, email) {
		errs = append(errs, ValidationError{
			Code:    "too_similar",
			Message: "Password is too similar to your email address.",
		})
	}

	if len(errs) > 0 {
		return &PasswordValidationError{Errors: errs}
	}
	return nil
}

// similarToEmail compares the password with the full address and its local part.
func similarToEmail(password, email string) bool {
	password = strings.ToLower(password)
	if password == "" || email == "" {
		return false
	}

	email = strings.ToLower(email)
	local, _, _ := strings.Cut(email, "@")

	for _, attr := range lo.Uniq([]string{email, local}) {
		if len(attr) < 3 {
			continue
		}
		if strings.Contains(password, attr) || strings.Contains(attr, password) {
			return true
		}
		if similarity(password, attr) > 0.7 {
			return true
		}
	}
	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return float64(longestCommonSubsequence(a, b)) / float64(max(len(a), len(b)))
}

func longestCommonSubsequence(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
