// Package posture evaluates a domain's SPF/DKIM/DMARC records and derives a
// spoofability classification.
package posture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"

	"github.com/emersion/go-msgauth/dmarc"
)

// ErrInvalidDomain is returned for names that are not valid domains.
var ErrInvalidDomain = errors.New("invalid domain name")

// domainRegex validates domain name format (RFC 1035)
var domainRegex = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// Selectors is the fixed ordered list of DKIM selector labels probed for a
// domain. Probing stops at the first selector that resolves.
var Selectors = []string{"default", "dkim", "mail", "selector1", "selector2", "google", "k1"}

// Policy tag extraction over the record text. Only the three defined values
// are recognized; anything else leaves the policy empty.
var (
	policyPattern    = regexp.MustCompile(`p\s*=\s*(none|quarantine|reject)`)
	subPolicyPattern = regexp.MustCompile(`sp\s*=\s*(none|quarantine|reject)`)
)

// SPFResult describes the domain's SPF record.
type SPFResult struct {
	Exists bool   `json:"exists"`
	Record string `json:"record,omitempty"`
	Status string `json:"status"` // strict, moderate, neutral, found, not found
}

// DKIMResult describes the first DKIM selector that resolved.
type DKIMResult struct {
	Exists   bool   `json:"exists"`
	Record   string `json:"record,omitempty"`
	Status   string `json:"status"` // found, unknown
	Selector string `json:"selector,omitempty"`
}

// DMARCResult describes the domain's DMARC record.
type DMARCResult struct {
	Exists          bool   `json:"exists"`
	Record          string `json:"record,omitempty"`
	Status          string `json:"status"` // found, not found
	Policy          string `json:"policy,omitempty"`
	SubdomainPolicy string `json:"subdomain_policy,omitempty"`
}

// Report is the posture evaluation for one domain. It is computed per
// request and never cached.
type Report struct {
	Domain    string      `json:"domain"`
	SPF       SPFResult   `json:"spf"`
	DKIM      DKIMResult  `json:"dkim"`
	DMARC     DMARCResult `json:"dmarc"`
	Spoofable bool        `json:"spoofable"`
	Message   string      `json:"message"`
}

// TXTResolver resolves TXT records. *net.Resolver satisfies it.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Evaluator classifies domain spoof-resistance from DNS TXT records.
type Evaluator struct {
	resolver TXTResolver
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator. A nil resolver uses net.DefaultResolver.
func NewEvaluator(resolver TXTResolver, logger *slog.Logger) *Evaluator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{resolver: resolver, logger: logger}
}

// Check evaluates a domain. Resolution failures are never errors: absence of
// a record is meaningful input. The only error is an invalid domain name.
func (e *Evaluator) Check(ctx context.Context, domain string) (*Report, error) {
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}

	report := &Report{
		Domain:    domain,
		SPF:       SPFResult{Status: "not found"},
		DKIM:      DKIMResult{Status: "unknown"},
		DMARC:     DMARCResult{Status: "not found"},
		Spoofable: true,
	}

	e.checkSPF(ctx, domain, report)
	e.checkDKIM(ctx, domain, report)
	e.checkDMARC(ctx, domain, report)
	e.classify(report)

	e.logger.Debug("domain posture evaluated",
		"domain", domain,
		"spoofable", report.Spoofable,
		"spf", report.SPF.Status,
		"dmarc", report.DMARC.Status,
	)
	return report, nil
}

// checkSPF finds the first TXT record carrying the SPF version tag and
// classifies it by trailing qualifier.
func (e *Evaluator) checkSPF(ctx context.Context, domain string, report *Report) {
	records, err := e.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return
	}

	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=spf1") {
			continue
		}
		report.SPF.Exists = true
		report.SPF.Record = txt

		switch {
		case strings.Contains(txt, " -all"):
			report.SPF.Status = "strict"
		case strings.Contains(txt, " ~all"):
			report.SPF.Status = "moderate"
		case strings.Contains(txt, " ?all"):
			report.SPF.Status = "neutral"
		default:
			report.SPF.Status = "found"
		}
		return
	}
}

// checkDKIM probes the candidate selectors in order, recording the first that
// resolves. Exhausting the list leaves the exists-flag false.
func (e *Evaluator) checkDKIM(ctx context.Context, domain string, report *Report) {
	for _, selector := range Selectors {
		name := fmt.Sprintf("%s._domainkey.%s", selector, domain)
		records, err := e.resolver.LookupTXT(ctx, name)
		if err != nil || len(records) == 0 {
			continue
		}

		report.DKIM.Exists = true
		report.DKIM.Record = records[0]
		report.DKIM.Status = "found"
		report.DKIM.Selector = selector
		return
	}
}

// checkDMARC resolves _dmarc.<domain> and extracts the policy tags. The
// subdomain policy inherits the primary policy when sp= is absent.
func (e *Evaluator) checkDMARC(ctx context.Context, domain string, report *Report) {
	records, err := e.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return
	}

	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=DMARC1") {
			continue
		}
		report.DMARC.Exists = true
		report.DMARC.Record = txt
		report.DMARC.Status = "found"
		report.DMARC.Policy, report.DMARC.SubdomainPolicy = parsePolicies(txt)
		return
	}
}

// parsePolicies extracts the p= and sp= tags from a DMARC record. The strict
// parser is tried first; records it rejects (for example a missing p= tag)
// fall back to pattern matching.
func parsePolicies(txt string) (policy, subPolicy string) {
	if rec, err := dmarc.Parse(txt); err == nil {
		policy = string(rec.Policy)
		subPolicy = string(rec.SubdomainPolicy)
	} else {
		if m := policyPattern.FindStringSubmatch(txt); m != nil {
			policy = m[1]
		}
		if m := subPolicyPattern.FindStringSubmatch(txt); m != nil {
			subPolicy = m[1]
		}
	}

	if subPolicy == "" {
		subPolicy = policy
	}
	return policy, subPolicy
}

// classify derives the spoofable verdict. Only the primary DMARC policy
// gates the verdict; the subdomain policy is informational.
func (e *Evaluator) classify(report *Report) {
	dmarcRes := &report.DMARC
	spf := &report.SPF

	switch {
	case dmarcRes.Exists && (dmarcRes.Policy == "reject" || dmarcRes.Policy == "quarantine"):
		report.Spoofable = false
		report.Message = fmt.Sprintf("DIFFICULT TO SPOOF: domain has DMARC with p=%s", dmarcRes.Policy)

	case dmarcRes.Exists && dmarcRes.Policy == "none":
		report.Spoofable = true
		report.Message = "SPOOFING POSSIBLE: DMARC exists but policy=none (monitoring only)"
		if dmarcRes.SubdomainPolicy == "reject" || dmarcRes.SubdomainPolicy == "quarantine" {
			report.Message += fmt.Sprintf(" (note: subdomains have stricter policy: sp=%s)", dmarcRes.SubdomainPolicy)
		}

	case spf.Exists && spf.Status == "strict":
		report.Spoofable = true
		report.Message = "SPF PROTECTED: domain has strict SPF but no enforced DMARC"

	case !spf.Exists && !dmarcRes.Exists:
		report.Spoofable = true
		report.Message = "EASY TO SPOOF: no SPF or DMARC found"

	default:
		report.Spoofable = true
		report.Message = "SPOOFING POSSIBLE: domain has minimal email security"
	}
}

// ValidateDomain checks if a domain name is valid
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > 253 {
		return ErrInvalidDomain
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}
