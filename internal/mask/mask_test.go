package mask

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", EmailPlaceholder},
		{"no at", "janedoe.example.com", EmailPlaceholder},
		{"no local", "@example.com", EmailPlaceholder},
		{"no domain", "jane@", EmailPlaceholder},
		{"regular", "jane.doe@example.com", "ja•••@example.com"},
		{"short local", "j@example.com", "j•••@example.com"},
		{"double at keeps second segment", "a@b@c", "a•••@b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Email(tt.input))
		})
	}
}

func TestEmail_Properties(t *testing.T) {
	t.Parallel()

	for _, e := range []string{"x", "plainaddress", "12345", "no-at-all.com"} {
		assert.Equal(t, EmailPlaceholder, Email(e), e)
	}

	for _, c := range []struct{ user, domain string }{
		{"owner", "acme.io"},
		{"mo", "rentals.net"},
		{"longlocalpart", "sub.domain.org"},
	} {
		got := Email(c.user + "@" + c.domain)
		assert.True(t, strings.HasSuffix(got, "@"+c.domain), got)
		assert.True(t, strings.HasPrefix(got, c.user[:2]+"•••@"), got)
	}
}

func TestPhone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PhonePlaceholder, Phone(""))
	assert.Equal(t, "(•••) •••-4567", Phone("(512) 555-4567"))
	assert.Equal(t, "(•••) •••-123", Phone("123"))

	for _, p := range []string{"5125554567", "+1 512 555 0000", "abcd", "x-9876"} {
		got := Phone(p)
		assert.True(t, strings.HasSuffix(got, p[len(p)-4:]), got)
	}
}

func TestCompany(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"", "•••"},
		{"IBM", "•••"},
		{"Acme", "Acm•"},
		{"Acme Holdings", "Acm••••••••••"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Company(tt.input), tt.input)
	}

	for _, c := range []string{"A", "Abc", "Abcd", "Riverside Partners", "Northwind Property Trust LLC"} {
		n := utf8.RuneCountInString(c)
		want := 3
		if n > 3 {
			want = 3 + min(n-3, 10)
		}
		assert.Equal(t, want, utf8.RuneCountInString(Company(c)), c)
	}
}

func TestCompany_LongNamesCollide(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Company("Northwind Holdings"), Company("Northwind Holdings Group International"))
}

func TestCurrency(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$0", Currency(0))
	assert.Equal(t, "$950", Currency(950))
	assert.Equal(t, "$1,250,000", Currency(1250000))
	assert.Equal(t, "$1,235", Currency(1234.5))
	assert.Equal(t, "-$4,200", Currency(-4200))
}

func TestNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "42", Number(42))
	assert.Equal(t, "12,345", Number(12345))
	assert.Equal(t, "1,234.5", Number(1234.5))
	assert.Equal(t, "-7", Number(-7))
}

func TestWebsite(t *testing.T) {
	t.Parallel()
	assert.Equal(t, WebsitePlaceholder, Website("https://acme.com"))
}
