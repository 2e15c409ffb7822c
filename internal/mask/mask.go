// Package mask derives redacted display strings for sensitive lead fields
// shown to users who are not entitled to the underlying record.
package mask

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Dot is the mask character.
const Dot = "•"

const (
	EmailPlaceholder   = "•••@•••.com"
	PhonePlaceholder   = "(•••) •••-••••"
	CompanyPlaceholder = "•••"
	WebsitePlaceholder = "•••"

	emailMask       = "•••"
	phonePrefix     = "(•••) •••-"
	companyKeep     = 3
	companyMaxDots  = 10
	emailKeep       = 2
	phoneKeep       = 4
	numberFracDigit = 3
)

var printer = message.NewPrinter(language.AmericanEnglish)

// Email keeps the first two characters of the local part and the whole
// domain. Inputs without both a local part and a domain collapse to
// EmailPlaceholder.
func Email(email string) string {
	if email == "" {
		return EmailPlaceholder
	}
	parts := strings.Split(email, "@")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return EmailPlaceholder
	}
	return prefix(parts[0], emailKeep) + emailMask + "@" + parts[1]
}

// Phone keeps the last four characters verbatim.
func Phone(phone string) string {
	if phone == "" {
		return PhonePlaceholder
	}
	r := []rune(phone)
	if len(r) > phoneKeep {
		r = r[len(r)-phoneKeep:]
	}
	return phonePrefix + string(r)
}

// Company keeps the first three characters followed by one dot per hidden
// character, capped at ten dots. Names of three characters or fewer are
// fully hidden.
func Company(company string) string {
	r := []rune(company)
	if len(r) <= companyKeep {
		return CompanyPlaceholder
	}
	dots := min(len(r)-companyKeep, companyMaxDots)
	return string(r[:companyKeep]) + strings.Repeat(Dot, dots)
}

// Website hides the website entirely.
func Website(string) string {
	return WebsitePlaceholder
}

// Currency formats v as whole US dollars with thousands separators.
func Currency(v float64) string {
	if v == 0 || math.IsNaN(v) {
		return "$0"
	}
	n := int64(math.Round(v))
	if n < 0 {
		return printer.Sprintf("-$%d", -n)
	}
	return printer.Sprintf("$%d", n)
}

// Number formats v with en-US grouping and up to three fraction digits.
func Number(v float64) string {
	if v == 0 || math.IsNaN(v) {
		return "0"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	scale := math.Pow10(numberFracDigit)
	v = math.Round(v*scale) / scale
	whole := math.Floor(v)
	out := sign + printer.Sprintf("%d", int64(whole))

	frac := strconv.FormatFloat(v-whole, 'f', numberFracDigit, 64)
	frac = strings.TrimRight(strings.TrimPrefix(frac, "0"), "0")
	if frac != "" && frac != "." {
		out += frac
	}
	return out
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
