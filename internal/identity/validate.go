package identity

import (
	"net/mail"
	"strings"

	"userapi/pkg/apperrors"
)

// freeMailDomains are rejected for account emails; accounts must use a
// business address.
var freeMailDomains = map[string]struct{}{
	"aol.com":     {},
	"apple.com":   {},
	"gmail.com":   {},
	"hotmail.com": {},
	"icloud.com":  {},
	"mail.com":    {},
	"outlook.com": {},
	"yahoo.com":   {},
}

// ValidateBusinessEmail checks syntax and rejects free-mail provider domains.
func ValidateBusinessEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperrors.Validation("email", "Enter a valid email address.")
	}
	at := strings.LastIndexByte(email, '@')
	domain := strings.ToLower(email[at+1:])
	if _, blocked := freeMailDomains[domain]; blocked {
		return apperrors.Validation("email", "Enter a valid business email address.")
	}
	return nil
}

// ValidateMobile accepts 10-12 characters of digits, optionally with a
// leading +. Strict mode additionally requires the local 09 prefix.
func ValidateMobile(mobile string, strict bool) error {
	invalid := apperrors.Validation("mobile", "Invalid mobile number")
	if len(mobile) < 10 || len(mobile) > 12 {
		return invalid
	}
	digits := mobile
	if strings.HasPrefix(mobile, "+") {
		digits = mobile[1:]
	}
	if !allDigits(digits) {
		return invalid
	}
	if strict && !strings.HasPrefix(mobile, "09") {
		return invalid
	}
	return nil
}

// ValidatePhone accepts an 11-digit landline number; mobile prefixes are
// rejected.
func ValidatePhone(phone string) error {
	invalid := apperrors.Validation("phone", "Invalid phone number")
	if strings.HasPrefix(phone, "09") || strings.HasPrefix(phone, "9") {
		return invalid
	}
	if len(phone) != 11 || !allDigits(phone) {
		return invalid
	}
	return nil
}

// ValidateNationalCode verifies the 10-digit Iranian national code checksum.
func ValidateNationalCode(code string) error {
	invalid := apperrors.Validation("national_code", "Invalid national code")
	if len(code) != 10 || !allDigits(code) {
		return invalid
	}
	total := 0
	for i := 0; i < 9; i++ {
		total += int(code[i]-'0') * (10 - i)
	}
	if total == 0 {
		return invalid
	}
	r := total % 11
	ctrl := r
	if r >= 2 {
		ctrl = 11 - r
	}
	if int(code[9]-'0') != ctrl {
		return invalid
	}
	return nil
}

// ValidatePostalCode requires exactly 10 characters.
func ValidatePostalCode(code string) error {
	if len(code) != 10 {
		return apperrors.Validation("postal_code", "Invalid postal code")
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
