package address

import "testing"

func TestDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"user@example.com", "example.com"},
		{"User Name <user@Example.COM>", "example.com"},
		{"user@sub.example.com", "sub.example.com"},
		{"no-at-sign", ""},
		{"@example.com", ""},
		{"user@", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := Domain(tt.email); got != tt.want {
				t.Errorf("Domain(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestDomainOrDefault(t *testing.T) {
	if got := DomainOrDefault("user@example.com", "fallback.example"); got != "example.com" {
		t.Errorf("DomainOrDefault() = %q, want example.com", got)
	}
	if got := DomainOrDefault("broken", "fallback.example"); got != "fallback.example" {
		t.Errorf("DomainOrDefault() = %q, want fallback.example", got)
	}
}
