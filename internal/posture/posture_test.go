package posture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// fakeResolver resolves TXT lookups from a fixed map; absent names fail like
// NXDOMAIN.
type fakeResolver struct {
	records map[string][]string
	queries []string
}

func (r *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	r.queries = append(r.queries, name)
	records, ok := r.records[name]
	if !ok {
		return nil, errors.New("no such host")
	}
	return records, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func check(t *testing.T, records map[string][]string, domain string) *Report {
	t.Helper()
	e := NewEvaluator(&fakeResolver{records: records}, discard())
	report, err := e.Check(context.Background(), domain)
	if err != nil {
		t.Fatalf("Check(%q) error = %v", domain, err)
	}
	return report
}

func TestNoRecordsIsEasyToSpoof(t *testing.T) {
	report := check(t, map[string][]string{}, "blank.example")

	if !report.Spoofable {
		t.Error("Spoofable = false, want true")
	}
	if !strings.Contains(report.Message, "EASY TO SPOOF") {
		t.Errorf("Message = %q, want easy-to-spoof rationale", report.Message)
	}
	if report.SPF.Status != "not found" {
		t.Errorf("SPF.Status = %q, want %q", report.SPF.Status, "not found")
	}
	if report.DMARC.Status != "not found" {
		t.Errorf("DMARC.Status = %q, want %q", report.DMARC.Status, "not found")
	}
}

func TestDMARCRejectBlocksSpoofingRegardlessOfSPF(t *testing.T) {
	tests := []struct {
		name string
		spf  []string
	}{
		{"no spf", nil},
		{"strict spf", []string{"v=spf1 mx -all"}},
		{"weak spf", []string{"v=spf1 a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := map[string][]string{
				"_dmarc.secure.example": {"v=DMARC1; p=reject; rua=mailto:d@secure.example"},
			}
			if tt.spf != nil {
				records["secure.example"] = tt.spf
			}
			report := check(t, records, "secure.example")

			if report.Spoofable {
				t.Error("Spoofable = true, want false")
			}
			if !strings.Contains(report.Message, "p=reject") {
				t.Errorf("Message = %q, want cited policy", report.Message)
			}
		})
	}
}

func TestDMARCQuarantine(t *testing.T) {
	report := check(t, map[string][]string{
		"_dmarc.soft.example": {"v=DMARC1; p=quarantine"},
	}, "soft.example")

	if report.Spoofable {
		t.Error("Spoofable = true, want false")
	}
	if report.DMARC.Policy != "quarantine" {
		t.Errorf("Policy = %q, want quarantine", report.DMARC.Policy)
	}
}

func TestDMARCNoneSubdomainPolicyInherits(t *testing.T) {
	report := check(t, map[string][]string{
		"_dmarc.monitor.example": {"v=DMARC1; p=none; rua=mailto:x@monitor.example"},
	}, "monitor.example")

	if !report.Spoofable {
		t.Error("Spoofable = false, want true")
	}
	if report.DMARC.Policy != "none" {
		t.Errorf("Policy = %q, want none", report.DMARC.Policy)
	}
	if report.DMARC.SubdomainPolicy != "none" {
		t.Errorf("SubdomainPolicy = %q, want inherited %q", report.DMARC.SubdomainPolicy, "none")
	}
	if !strings.Contains(report.Message, "monitoring only") {
		t.Errorf("Message = %q, want monitoring-only note", report.Message)
	}
}

func TestDMARCNoneWithStricterSubdomainPolicy(t *testing.T) {
	report := check(t, map[string][]string{
		"_dmarc.mixed.example": {"v=DMARC1; p=none; sp=reject"},
	}, "mixed.example")

	// Only the primary policy gates the verdict.
	if !report.Spoofable {
		t.Error("Spoofable = false, want true")
	}
	if report.DMARC.SubdomainPolicy != "reject" {
		t.Errorf("SubdomainPolicy = %q, want reject", report.DMARC.SubdomainPolicy)
	}
	if !strings.Contains(report.Message, "sp=reject") {
		t.Errorf("Message = %q, want subdomain caveat", report.Message)
	}
}

func TestStrictSPFWithoutDMARC(t *testing.T) {
	report := check(t, map[string][]string{
		"spf.example": {"not spf", "v=spf1 ip4:192.0.2.0/24 -all"},
	}, "spf.example")

	if !report.Spoofable {
		t.Error("Spoofable = false, want true")
	}
	if report.SPF.Status != "strict" {
		t.Errorf("SPF.Status = %q, want strict", report.SPF.Status)
	}
	if !strings.Contains(report.Message, "SPF PROTECTED") {
		t.Errorf("Message = %q, want SPF caveat", report.Message)
	}
}

func TestSPFQualifierClassification(t *testing.T) {
	tests := []struct {
		record string
		want   string
	}{
		{"v=spf1 mx -all", "strict"},
		{"v=spf1 mx ~all", "moderate"},
		{"v=spf1 mx ?all", "neutral"},
		{"v=spf1 include:_spf.big.example", "found"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			report := check(t, map[string][]string{"q.example": {tt.record}}, "q.example")
			if report.SPF.Status != tt.want {
				t.Errorf("SPF.Status for %q = %q, want %q", tt.record, report.SPF.Status, tt.want)
			}
		})
	}
}

func TestWeakSPFNoDMARCIsMinimalProtection(t *testing.T) {
	report := check(t, map[string][]string{
		"weak.example": {"v=spf1 mx ~all"},
	}, "weak.example")

	if !report.Spoofable {
		t.Error("Spoofable = false, want true")
	}
	if !strings.Contains(report.Message, "minimal") {
		t.Errorf("Message = %q, want minimal-protection rationale", report.Message)
	}
}

func TestDKIMProbeStopsAtFirstSelector(t *testing.T) {
	resolver := &fakeResolver{records: map[string][]string{
		"mail._domainkey.keys.example":      {"v=DKIM1; k=rsa; p=AAA"},
		"selector1._domainkey.keys.example": {"v=DKIM1; k=rsa; p=BBB"},
	}}
	e := NewEvaluator(resolver, discard())

	report, err := e.Check(context.Background(), "keys.example")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if !report.DKIM.Exists {
		t.Fatal("DKIM.Exists = false, want true")
	}
	if report.DKIM.Selector != "mail" {
		t.Errorf("Selector = %q, want first matching %q", report.DKIM.Selector, "mail")
	}
	if report.DKIM.Record != "v=DKIM1; k=rsa; p=AAA" {
		t.Errorf("Record = %q", report.DKIM.Record)
	}
	// Probing must not continue past the first hit.
	for _, q := range resolver.queries {
		if q == "selector1._domainkey.keys.example" {
			t.Error("probe continued past first matching selector")
		}
	}
}

func TestDKIMExhaustedLeavesExistsFalse(t *testing.T) {
	report := check(t, map[string][]string{}, "nodkim.example")
	if report.DKIM.Exists {
		t.Error("DKIM.Exists = true, want false")
	}
	if report.DKIM.Selector != "" {
		t.Errorf("Selector = %q, want empty", report.DKIM.Selector)
	}
}

func TestLookupFailureIsolation(t *testing.T) {
	// SPF lookup fails but DMARC still resolves.
	report := check(t, map[string][]string{
		"_dmarc.partial.example": {"v=DMARC1; p=reject"},
	}, "partial.example")

	if report.SPF.Exists {
		t.Error("SPF.Exists = true, want false")
	}
	if !report.DMARC.Exists {
		t.Error("DMARC.Exists = false, want true")
	}
	if report.Spoofable {
		t.Error("Spoofable = true, want false")
	}
}

func TestMalformedDMARCRecordFallsBackToPatternMatch(t *testing.T) {
	// Missing the mandatory p= tag: the strict parser rejects it but the
	// record still counts as present.
	report := check(t, map[string][]string{
		"_dmarc.odd.example": {"v=DMARC1; rua=mailto:x@odd.example"},
	}, "odd.example")

	if !report.DMARC.Exists {
		t.Error("DMARC.Exists = false, want true")
	}
	if report.DMARC.Policy != "" {
		t.Errorf("Policy = %q, want empty", report.DMARC.Policy)
	}
	if !report.Spoofable {
		t.Error("Spoofable = false, want true")
	}
}

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		wantErr bool
	}{
		{"valid simple", "example.com", false},
		{"valid subdomain", "sub.example.com", false},
		{"valid with dash", "my-domain.com", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 254), true},
		{"invalid chars", "example!.com", true},
		{"path injection", "../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDomain(%q) error = %v, wantErr %v", tt.domain, err, tt.wantErr)
			}
		})
	}
}
