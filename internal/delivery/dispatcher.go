// Package delivery selects and drives the send path for a draft: the
// relay-spoofed path through the local MTA, or the authenticated SMTP path
// through a stored mailbox identity.
package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/spoofsent/spoofsent/internal/address"
	"github.com/spoofsent/spoofsent/internal/message"
	"github.com/spoofsent/spoofsent/internal/metrics"
	"github.com/spoofsent/spoofsent/internal/relay"
	"github.com/spoofsent/spoofsent/internal/store"
	"github.com/spoofsent/spoofsent/internal/vault"
)

// MailboxSource resolves mailbox identifiers to stored identities.
type MailboxSource interface {
	Get(id string) (*store.Mailbox, error)
}

// Result is the outcome of a send attempt. Failures carry a diagnostic in
// Message; nothing propagates past this boundary.
type Result struct {
	Success bool
	Message string
}

// Dispatcher routes drafts to a send path and performs the send. A draft
// with a mailbox reference uses the authenticated path; everything else goes
// through the relay. The relay configure/send/cleanup sequence runs under a
// process-wide mutex since it mutates shared MTA configuration.
type Dispatcher struct {
	mailboxes MailboxSource
	vault     *vault.Vault
	relay     relay.Controller
	relayMu   sync.Mutex

	privileged func() bool
	timeout    time.Duration
	hostname   string
	baseDir    string // resolution root for relative image references
	logger     *slog.Logger
}

// New creates a dispatcher. hostname is the EHLO identity for outbound SMTP,
// baseDir the directory relative draft resources resolve against.
func New(mailboxes MailboxSource, v *vault.Vault, rc relay.Controller, hostname, baseDir string, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		mailboxes:  mailboxes,
		vault:      v,
		relay:      rc,
		privileged: func() bool { return os.Geteuid() == 0 },
		timeout:    timeout,
		hostname:   hostname,
		baseDir:    baseDir,
		logger:     logger.With("component", "delivery"),
	}
}

// Send delivers the draft and reports the outcome. A mailbox reference that
// does not resolve is a failure, never a fallback to the relay path.
func (d *Dispatcher) Send(ctx context.Context, draft *store.Draft) Result {
	if draft.UsesMailbox() {
		mb, err := d.mailboxes.Get(draft.MailboxID)
		if err != nil {
			d.logger.Warn("mailbox reference did not resolve", "mailbox_id", draft.MailboxID)
			metrics.IncSendAttempt("mailbox", false)
			return Result{Success: false, Message: "selected mailbox not found"}
		}
		res := d.sendMailbox(ctx, draft, mb)
		metrics.IncSendAttempt("mailbox", res.Success)
		return res
	}

	res := d.sendRelay(ctx, draft)
	metrics.IncSendAttempt("relay", res.Success)
	return res
}

// sendRelay runs the spoofed path: configure the MTA, hand the message to
// the local mail client, revert the configuration. Cleanup runs on every
// exit path once the mutex is held.
func (d *Dispatcher) sendRelay(ctx context.Context, draft *store.Draft) Result {
	if !d.privileged() {
		return Result{Success: false, Message: "relay sending requires root privileges"}
	}
	if err := d.relay.Check(ctx); err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	spoofDomain := draft.SpoofDomain
	if spoofDomain == "" {
		spoofDomain = address.DomainOrDefault(draft.MailFrom, "localhost")
	}
	envelope := draft.MailEnvelope
	if envelope == "" {
		envelope = draft.MailFrom
	}

	d.relayMu.Lock()
	defer d.relayMu.Unlock()
	defer func() {
		// The send context may already be done; cleanup must still run.
		if err := d.relay.Cleanup(context.WithoutCancel(ctx)); err != nil {
			d.logger.Warn("relay cleanup failed", "error", err)
		}
	}()

	if err := d.relay.Configure(ctx, spoofDomain, envelope, draft.MailFrom); err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	err := d.relay.Send(ctx, relay.Mail{
		From:        draft.MailFrom,
		To:          draft.MailTo,
		Envelope:    envelope,
		Subject:     draft.Subject,
		Body:        draft.Body,
		HTMLPath:    draft.HTMLBodyPath,
		BCC:         draft.BCC,
		Attachments: draft.Attachments,
	})
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	d.logger.Info("spoofed email relayed", "from", draft.MailFrom, "to", draft.MailTo)
	return Result{Success: true, Message: "Email sent successfully"}
}

// sendMailbox runs the authenticated path: decrypt the credential, assemble
// the MIME message, transmit over SMTP.
func (d *Dispatcher) sendMailbox(ctx context.Context, draft *store.Draft, mb *store.Mailbox) Result {
	secret, err := d.vault.Decrypt(mb.Secret)
	if err != nil {
		return Result{Success: false, Message: "failed to decrypt mailbox credentials"}
	}

	asm, err := message.Assemble(message.Input{
		From:        draft.MailFrom,
		To:          draft.MailTo,
		Subject:     draft.Subject,
		Body:        draft.Body,
		HTMLPath:    draft.HTMLBodyPath,
		BaseDir:     d.baseDir,
		Attachments: draft.Attachments,
	}, d.logger)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	for _, diag := range asm.Skipped {
		d.logger.Warn("message content skipped", "detail", diag)
	}

	recipients := []string{draft.MailTo}
	if draft.BCC != "" {
		recipients = append(recipients, draft.BCC)
	}

	if err := d.transmit(ctx, mb, secret, draft.MailFrom, recipients, asm.Data); err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	d.logger.Info("email sent via mailbox", "mailbox", mb.Name, "to", draft.MailTo)
	return Result{Success: true, Message: "Email sent successfully"}
}

// transmit opens the SMTP session. Port 465 gets implicit TLS; the TLS flag
// on any other port negotiates STARTTLS; otherwise the session is cleartext.
func (d *Dispatcher) transmit(ctx context.Context, mb *store.Mailbox, secret, from string, recipients []string, data []byte) error {
	addr := net.JoinHostPort(mb.Host, strconv.Itoa(mb.Port))

	dialer := &net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return d.dialError(err, addr)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(d.timeout))
	}

	if mb.Port == 465 {
		tlsConn := tls.Client(conn, d.tlsConfig(mb.Host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("TLS negotiation failed: %v", err)
		}
		conn = tlsConn
	}

	var c *smtp.Client
	if mb.Port != 465 && mb.UseTLS {
		c, err = smtp.NewClientStartTLS(conn, d.tlsConfig(mb.Host))
		if err != nil {
			return fmt.Errorf("TLS negotiation failed: %v", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}
	defer c.Close()

	// Hello after the STARTTLS handshake re-introduces over the
	// encrypted session.
	if err := c.Hello(d.hostname); err != nil {
		return fmt.Errorf("could not connect to %s: %v", addr, err)
	}

	if mb.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", mb.Username, secret)); err != nil {
			return fmt.Errorf("authentication failed: %v", err)
		}
	}

	if err := c.SendMail(from, recipients, bytes.NewReader(data)); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			return fmt.Errorf("SMTP error: %v", smtpErr)
		}
		return fmt.Errorf("unexpected error: %v", err)
	}

	c.Quit()
	return nil
}

func (d *Dispatcher) tlsConfig(host string) *tls.Config {
	return &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
}

// dialError maps connection failures onto distinguishable diagnostics.
func (d *Dispatcher) dialError(err error, addr string) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("connection to %s timed out after %s", addr, d.timeout)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("connection refused by %s", addr)
	}
	return fmt.Errorf("could not connect to %s: %v", addr, err)
}
