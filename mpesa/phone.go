package mpesa

import (
	"math"
	"regexp"
	"strings"

	"github.com/xraph/learngate/payment"
)

// Amount bounds for a single STK push, in shillings.
const (
	MinAmount = 1
	MaxAmount = 150000
)

var (
	phonePattern = regexp.MustCompile(`^254[71]\d{8}$`)
	phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// NormalizePhone rewrites the common Kenyan formats (07XXXXXXXX,
// +2547XXXXXXXX, 7XXXXXXXX) to 2547XXXXXXXX. It does not validate; use
// ValidPhone on the result.
func NormalizePhone(phone string) string {
	p := phoneCleaner.Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")

	switch {
	case strings.HasPrefix(p, "254"):
		return p
	case len(p) == 10 && (strings.HasPrefix(p, "07") || strings.HasPrefix(p, "01")):
		return "254" + p[1:]
	case len(p) == 9 && (p[0] == '7' || p[0] == '1'):
		return "254" + p
	default:
		return p
	}
}

// ValidPhone reports whether phone is a normalized Safaricom MSISDN.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// Validate normalizes phone and checks both fields, returning every problem
// as a payment.FieldErrors.
func Validate(phone string, amount float64) (string, error) {
	var errs payment.FieldErrors

	normalized := NormalizePhone(phone)
	switch {
	case strings.TrimSpace(phone) == "":
		errs = append(errs, payment.FieldError{Field: "phoneNumber", Message: "phone number is required"})
	case !ValidPhone(normalized):
		errs = append(errs, payment.FieldError{Field: "phoneNumber", Message: "invalid Kenyan phone number format"})
	}

	switch {
	case math.IsNaN(amount) || amount <= 0:
		errs = append(errs, payment.FieldError{Field: "amount", Message: "amount must be greater than zero"})
	case math.Round(amount) < MinAmount || math.Round(amount) > MaxAmount:
		errs = append(errs, payment.FieldError{Field: "amount", Message: "amount must be between KSh 1 and KSh 150,000"})
	}

	if len(errs) > 0 {
		return "", errs
	}
	return normalized, nil
}
