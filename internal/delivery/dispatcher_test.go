package delivery

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spoofsent/spoofsent/internal/relay"
	"github.com/spoofsent/spoofsent/internal/store"
	"github.com/spoofsent/spoofsent/internal/vault"
)

type fakeRelay struct {
	calls        []string
	checkErr     error
	configureErr error
	sendErr      error

	spoofDomain string
	envelope    string
	from        string
	sent        relay.Mail
}

func (f *fakeRelay) Check(context.Context) error {
	f.calls = append(f.calls, "check")
	return f.checkErr
}

func (f *fakeRelay) Configure(_ context.Context, spoofDomain, envelope, from string) error {
	f.calls = append(f.calls, "configure")
	f.spoofDomain, f.envelope, f.from = spoofDomain, envelope, from
	return f.configureErr
}

func (f *fakeRelay) Send(_ context.Context, m relay.Mail) error {
	f.calls = append(f.calls, "send")
	f.sent = m
	return f.sendErr
}

func (f *fakeRelay) Cleanup(context.Context) error {
	f.calls = append(f.calls, "cleanup")
	return nil
}

type fakeMailboxes map[string]*store.Mailbox

func (f fakeMailboxes) Get(id string) (*store.Mailbox, error) {
	mb, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return mb, nil
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.Open(filepath.Join(t.TempDir(), ".vault.key"))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func newTestDispatcher(t *testing.T, rc relay.Controller, mailboxes MailboxSource) *Dispatcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(mailboxes, testVault(t), rc, "console.local", "", 5*time.Second, logger)
	d.privileged = func() bool { return true }
	return d
}

func TestSendMailboxNotFoundNeverTouchesRelay(t *testing.T) {
	rc := &fakeRelay{}
	d := newTestDispatcher(t, rc, fakeMailboxes{})

	res := d.Send(context.Background(), &store.Draft{
		MailFrom:  "a@evil.example",
		MailTo:    "v@target.example",
		MailboxID: "mailbox_123",
	})

	if res.Success {
		t.Error("Send() succeeded with a dangling mailbox reference")
	}
	if !strings.Contains(res.Message, "not found") {
		t.Errorf("Message = %q, want mailbox-not-found diagnostic", res.Message)
	}
	if len(rc.calls) != 0 {
		t.Errorf("relay invoked for a mailbox draft: %v", rc.calls)
	}
}

func TestSendRelaySuccess(t *testing.T) {
	rc := &fakeRelay{}
	d := newTestDispatcher(t, rc, fakeMailboxes{})

	res := d.Send(context.Background(), &store.Draft{
		MailFrom:     "a@evil.example",
		MailTo:       "v@target.example",
		MailEnvelope: "a@evil.example",
		Subject:      "Test",
		Body:         "hello",
		SpoofDomain:  "evil.example",
	})

	if !res.Success {
		t.Fatalf("Send() failed: %s", res.Message)
	}
	if res.Message != "Email sent successfully" {
		t.Errorf("Message = %q", res.Message)
	}

	want := []string{"check", "configure", "send", "cleanup"}
	if strings.Join(rc.calls, ",") != strings.Join(want, ",") {
		t.Errorf("relay calls = %v, want %v", rc.calls, want)
	}
	if rc.spoofDomain != "evil.example" || rc.envelope != "a@evil.example" || rc.from != "a@evil.example" {
		t.Errorf("Configure(%q, %q, %q)", rc.spoofDomain, rc.envelope, rc.from)
	}
	if rc.sent.To != "v@target.example" || rc.sent.Subject != "Test" {
		t.Errorf("sent mail = %+v", rc.sent)
	}
}

func TestSendRelayDefaults(t *testing.T) {
	rc := &fakeRelay{}
	d := newTestDispatcher(t, rc, fakeMailboxes{})

	res := d.Send(context.Background(), &store.Draft{
		MailFrom: "ceo@victim.example",
		MailTo:   "v@target.example",
		Subject:  "Test",
		Body:     "hello",
	})

	if !res.Success {
		t.Fatalf("Send() failed: %s", res.Message)
	}
	if rc.spoofDomain != "victim.example" {
		t.Errorf("spoof domain = %q, want sender domain", rc.spoofDomain)
	}
	if rc.envelope != "ceo@victim.example" {
		t.Errorf("envelope = %q, want sender address", rc.envelope)
	}
}

func TestSendRelayCleanupOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		relay *fakeRelay
		want  []string
	}{
		{"send failure", &fakeRelay{sendErr: errors.New("mail exited 1")}, []string{"check", "configure", "send", "cleanup"}},
		{"configure failure", &fakeRelay{configureErr: errors.New("main.cf unwritable")}, []string{"check", "configure", "cleanup"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t, tt.relay, fakeMailboxes{})

			res := d.Send(context.Background(), &store.Draft{
				MailFrom: "a@evil.example", MailTo: "v@target.example", SpoofDomain: "evil.example",
			})

			if res.Success {
				t.Error("Send() succeeded despite relay failure")
			}
			if strings.Join(tt.relay.calls, ",") != strings.Join(tt.want, ",") {
				t.Errorf("relay calls = %v, want %v", tt.relay.calls, tt.want)
			}
		})
	}
}

func TestSendRelayRequiresPrivilege(t *testing.T) {
	rc := &fakeRelay{}
	d := newTestDispatcher(t, rc, fakeMailboxes{})
	d.privileged = func() bool { return false }

	res := d.Send(context.Background(), &store.Draft{
		MailFrom: "a@evil.example", MailTo: "v@target.example",
	})

	if res.Success {
		t.Error("Send() succeeded without privilege")
	}
	if !strings.Contains(res.Message, "root privileges") {
		t.Errorf("Message = %q", res.Message)
	}
	if len(rc.calls) != 0 {
		t.Errorf("relay touched without privilege: %v", rc.calls)
	}
}

func TestSendMailboxDecryptFailure(t *testing.T) {
	rc := &fakeRelay{}
	mailboxes := fakeMailboxes{
		"mb1": {ID: "mb1", Username: "user", Secret: "not-vault-ciphertext", Host: "127.0.0.1", Port: 2525},
	}
	d := newTestDispatcher(t, rc, mailboxes)

	res := d.Send(context.Background(), &store.Draft{
		MailFrom: "a@x.example", MailTo: "b@y.example", MailboxID: "mb1",
	})

	if res.Success {
		t.Error("Send() succeeded with undecryptable secret")
	}
	if !strings.Contains(res.Message, "decrypt") {
		t.Errorf("Message = %q", res.Message)
	}
}

// fakeSMTPServer speaks just enough SMTP for one authenticated session.
type fakeSMTPServer struct {
	addr     string
	authLine string
	data     string
	done     chan struct{}
}

func startFakeSMTPServer(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := &fakeSMTPServer{addr: ln.Addr().String(), done: make(chan struct{})}
	go func() {
		defer close(srv.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		write := func(s string) { io.WriteString(conn, s+"\r\n") }

		write("220 fake ESMTP ready")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				io.WriteString(conn, "250-fake\r\n250 AUTH PLAIN\r\n")
			case strings.HasPrefix(line, "AUTH PLAIN"):
				srv.authLine = line
				write("235 2.7.0 accepted")
			case strings.HasPrefix(line, "MAIL FROM"):
				write("250 2.1.0 ok")
			case strings.HasPrefix(line, "RCPT TO"):
				write("250 2.1.5 ok")
			case line == "DATA":
				write("354 end with <CR><LF>.<CR><LF>")
				var b strings.Builder
				for {
					dl, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if strings.TrimRight(dl, "\r\n") == "." {
						break
					}
					b.WriteString(dl)
				}
				srv.data = b.String()
				write("250 2.0.0 queued")
			case line == "QUIT":
				write("221 2.0.0 bye")
				return
			default:
				write("250 ok")
			}
		}
	}()
	return srv
}

func TestSendMailboxEndToEnd(t *testing.T) {
	srv := startFakeSMTPServer(t)
	_, portStr, err := net.SplitHostPort(srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := testVault(t)
	secret, err := v.Encrypt("hunter2")
	if err != nil {
		t.Fatal(err)
	}

	mailboxes := fakeMailboxes{
		"mb1": {ID: "mb1", Name: "corp", Username: "user@corp.example", Secret: secret, Host: "127.0.0.1", Port: port},
	}
	d := New(mailboxes, v, &fakeRelay{}, "console.local", "", 5*time.Second, logger)

	res := d.Send(context.Background(), &store.Draft{
		MailFrom:  "a@corp.example",
		MailTo:    "v@target.example",
		Subject:   "Quarterly report",
		Body:      "see below",
		MailboxID: "mb1",
	})
	if !res.Success {
		t.Fatalf("Send() failed: %s", res.Message)
	}

	select {
	case <-srv.done:
	case <-time.After(5 * time.Second):
		t.Fatal("fake server session did not finish")
	}

	if srv.authLine == "" {
		t.Error("client did not authenticate")
	}
	for _, want := range []string{"Subject: Quarterly report", "From: a@corp.example", "see below"} {
		if !strings.Contains(srv.data, want) {
			t.Errorf("transmitted message missing %q", want)
		}
	}
}

func TestSendMailboxStartTLSUnsupported(t *testing.T) {
	srv := startFakeSMTPServer(t)
	_, portStr, err := net.SplitHostPort(srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := testVault(t)
	secret, err := v.Encrypt("hunter2")
	if err != nil {
		t.Fatal(err)
	}

	// The fake server never advertises STARTTLS, so the explicit
	// upgrade must fail before authentication.
	mailboxes := fakeMailboxes{
		"mb1": {ID: "mb1", Name: "corp", Username: "user@corp.example", Secret: secret, Host: "127.0.0.1", Port: port, UseTLS: true},
	}
	d := New(mailboxes, v, &fakeRelay{}, "console.local", "", 5*time.Second, logger)

	res := d.Send(context.Background(), &store.Draft{
		MailFrom:  "a@corp.example",
		MailTo:    "v@target.example",
		Subject:   "Quarterly report",
		Body:      "see below",
		MailboxID: "mb1",
	})
	if res.Success {
		t.Fatal("Send() succeeded against a server without STARTTLS")
	}
	if !strings.Contains(res.Message, "TLS negotiation failed") {
		t.Errorf("Send() message = %q, want TLS negotiation diagnostic", res.Message)
	}

	select {
	case <-srv.done:
	case <-time.After(5 * time.Second):
		t.Fatal("fake server session did not finish")
	}
	if srv.authLine != "" {
		t.Error("client authenticated over a cleartext session")
	}
}

func TestDialErrorClassification(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(fakeMailboxes{}, nil, &fakeRelay{}, "console.local", "", 2*time.Second, logger)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, "timed out"},
		{"refused", errors.New("dial tcp 127.0.0.1:465: connect: connection refused"), "connection refused"},
		{"other", errors.New("no route to host"), "could not connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.dialError(tt.err, "smtp.example:465")
			if !strings.Contains(got.Error(), tt.want) {
				t.Errorf("dialError() = %v, want substring %q", got, tt.want)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
