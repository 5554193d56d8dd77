// Package relay controls the local mail transfer agent used for spoofed
// delivery. The controller reconfigures the MTA to present the spoofed
// domain, hands the message to the local mail client, and reverts the
// configuration afterwards.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spoofsent/spoofsent/internal/address"
)

var (
	// ErrMissingTools means the MTA or the mail client binary is absent.
	ErrMissingTools = errors.New("postfix and/or mail client not installed")
)

// Mail is the payload handed to the relay send path. The body travels to the
// mail client on stdin; headers are injected via command arguments.
type Mail struct {
	From     string
	To       string
	Envelope string
	Subject  string
	Body     string
	HTMLPath string // optional file holding the HTML body
	BCC      string

	Attachments []string // file paths handed to the mail client
}

// Controller is the three-operation relay collaborator plus a readiness
// probe. Configure and Cleanup bracket every Send.
type Controller interface {
	Check(ctx context.Context) error
	Configure(ctx context.Context, spoofDomain, envelope, from string) error
	Send(ctx context.Context, m Mail) error
	Cleanup(ctx context.Context) error
}

// RunFunc executes an external command, feeding stdin when non-empty, and
// returns the combined output.
type RunFunc func(ctx context.Context, stdin, name string, args ...string) (string, error)

// LookPathFunc reports whether an executable is reachable.
type LookPathFunc func(name string) (string, error)

func execRun(ctx context.Context, stdin, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Postfix drives a postfix instance through its main.cf and systemctl.
type Postfix struct {
	mainCf   string
	service  string
	mailCmd  string
	run      RunFunc
	lookPath LookPathFunc
	logger   *slog.Logger
}

// NewPostfix returns a controller for the postfix installation described by
// the arguments. mainCf is the path to main.cf, service the systemd unit
// name, mailCmd the mail client binary.
func NewPostfix(mainCf, service, mailCmd string, logger *slog.Logger) *Postfix {
	return &Postfix{
		mainCf:   mainCf,
		service:  service,
		mailCmd:  mailCmd,
		run:      execRun,
		lookPath: exec.LookPath,
		logger:   logger.With("component", "relay"),
	}
}

// Check verifies the MTA and mail client are installed and the MTA service
// is running, starting it when stopped.
func (p *Postfix) Check(ctx context.Context) error {
	if _, err := p.lookPath("postfix"); err != nil {
		return ErrMissingTools
	}
	if _, err := p.lookPath(p.mailCmd); err != nil {
		return ErrMissingTools
	}

	status, _ := p.run(ctx, "", "systemctl", "is-active", p.service)
	if strings.TrimSpace(status) == "active" {
		return nil
	}

	p.logger.Info("starting relay service", "service", p.service)
	if out, err := p.run(ctx, "", "systemctl", "start", p.service); err != nil {
		return fmt.Errorf("failed to start %s: %s: %w", p.service, strings.TrimSpace(out), err)
	}
	return nil
}

// Configure points the MTA at the spoofed identity and restarts it.
func (p *Postfix) Configure(ctx context.Context, spoofDomain, envelope, from string) error {
	settings := []struct{ key, value string }{
		{"myhostname", spoofDomain},
		{"mydestination", "$myhostname, localhost.localdomain, , localhost"},
		{"smtp.mailfrom", envelope},
		{"header.from", from},
	}
	for _, s := range settings {
		if err := p.updateSetting(s.key, s.value); err != nil {
			return fmt.Errorf("failed to configure relay: %w", err)
		}
	}

	p.logger.Info("relay configured for spoofed delivery", "spoof_domain", spoofDomain)
	return p.restart(ctx)
}

// Send hands the message to the mail client. The body is always delivered as
// HTML; a plain body without a document tag is wrapped in one.
func (p *Postfix) Send(ctx context.Context, m Mail) error {
	body, err := p.resolveBody(m)
	if err != nil {
		return err
	}

	unsubscribe := address.DomainOrDefault(m.From, "example.com")
	args := []string{
		"-s", m.Subject,
		"-a", "From: " + m.From,
		"-a", "Content-Type: text/html;",
		"-a", "Return-Path: " + m.Envelope,
		"-a", fmt.Sprintf("List-Unsubscribe:<mailto:unsubscribe@%s?subject=unsubscribe>", unsubscribe),
	}
	if m.BCC != "" {
		args = append(args, "-a", "BCC: "+m.BCC)
	}
	for _, att := range m.Attachments {
		args = append(args, "-A", att)
	}
	args = append(args, m.To)

	out, err := p.run(ctx, body, p.mailCmd, args...)
	if err != nil {
		return fmt.Errorf("failed to send email: %s", strings.TrimSpace(out))
	}
	return nil
}

// Cleanup removes the spoofing settings from main.cf and restarts the MTA.
// The hostname and destination changes are left in place, matching the
// original tooling.
func (p *Postfix) Cleanup(ctx context.Context) error {
	data, err := os.ReadFile(p.mainCf)
	if err != nil {
		return fmt.Errorf("failed to clean up relay config: %w", err)
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "smtp.mailfrom =") || strings.HasPrefix(trimmed, "header.from =") {
			continue
		}
		kept = append(kept, line)
	}
	if err := os.WriteFile(p.mainCf, []byte(strings.Join(kept, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to clean up relay config: %w", err)
	}

	p.logger.Info("relay configuration reverted")
	return p.restart(ctx)
}

func (p *Postfix) restart(ctx context.Context) error {
	if out, err := p.run(ctx, "", "systemctl", "restart", p.service); err != nil {
		return fmt.Errorf("failed to restart %s: %s: %w", p.service, strings.TrimSpace(out), err)
	}
	return nil
}

// updateSetting replaces an existing "key = value" line in main.cf or
// appends one.
func (p *Postfix) updateSetting(key, value string) error {
	data, err := os.ReadFile(p.mainCf)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), key+" =") {
			lines[i] = fmt.Sprintf("%s = %s", key, value)
			replaced = true
			break
		}
	}
	if !replaced {
		// Keep the trailing newline at the end of the file.
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines[n-1] = fmt.Sprintf("%s = %s", key, value)
			lines = append(lines, "")
		} else {
			lines = append(lines, fmt.Sprintf("%s = %s", key, value))
		}
	}

	return os.WriteFile(p.mainCf, []byte(strings.Join(lines, "\n")), 0644)
}

// resolveBody loads the HTML file when present, otherwise wraps a non-HTML
// plain body in a document tag.
func (p *Postfix) resolveBody(m Mail) (string, error) {
	if m.HTMLPath != "" {
		if data, err := os.ReadFile(m.HTMLPath); err == nil {
			return string(data), nil
		}
		p.logger.Warn("HTML body file unreadable, falling back to plain body", "path", m.HTMLPath)
	}
	if strings.HasPrefix(strings.TrimSpace(m.Body), "<html") {
		return m.Body, nil
	}
	return "<html>" + m.Body + "</html>", nil
}
