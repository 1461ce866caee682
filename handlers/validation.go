package handlers

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Validation constants
const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
	PasswordMinLength = 8
	PasswordMaxLength = 128
	FilenameMaxLength = 255
)

// Regex patterns for validation
var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidateUsername validates a username
func ValidateUsername(username string) error {
	if len(username) < UsernameMinLength {
		return fmt.Errorf("username must be at least %d characters", UsernameMinLength)
	}
	if len(username) > UsernameMaxLength {
		return fmt.Errorf("username must be at most %d characters", UsernameMaxLength)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email address is too long")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email address format")
	}
	return nil
}

// ValidatePassword validates an account password
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", PasswordMinLength)
	}
	if len(password) > PasswordMaxLength {
		return fmt.Errorf("password must be at most %d characters", PasswordMaxLength)
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasNumber  bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	// Require at least 3 of 4 character types
	count := 0
	if hasUpper {
		count++
	}
	if hasLower {
		count++
	}
	if hasNumber {
		count++
	}
	if hasSpecial {
		count++
	}

	if count < 3 {
		return fmt.Errorf("password must contain at least 3 of: uppercase, lowercase, number, special character")
	}

	return nil
}

// ValidateHTMLFilename checks upload filenames. Only HTML documents are
// hosted; everything else is rejected before touching the blob store.
func ValidateHTMLFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if len(filename) > FilenameMaxLength {
		return fmt.Errorf("filename is too long (max %d characters)", FilenameMaxLength)
	}
	if strings.ContainsRune(filename, '\x00') {
		return fmt.Errorf("filename contains invalid characters")
	}
	for _, r := range filename {
		if r < 32 {
			return fmt.Errorf("filename contains invalid control characters")
		}
	}

	lower := strings.ToLower(filename)
	if !strings.HasSuffix(lower, ".html") && !strings.HasSuffix(lower, ".htm") {
		return fmt.Errorf("only HTML files are allowed")
	}
	return nil
}

// ValidateSharePassword validates an optional share link password
func ValidateSharePassword(password string) error {
	if password == "" {
		return nil // Password is optional for shares
	}
	if len(password) < 4 {
		return fmt.Errorf("share password must be at least 4 characters")
	}
	if len(password) > 64 {
		return fmt.Errorf("share password is too long")
	}
	return nil
}
