package store

import "time"

// MailboxNone is the draft mailbox reference meaning "use the relay path".
const MailboxNone = "none"

// Draft is a composed message awaiting dispatch.
type Draft struct {
	ID           string   `json:"id"`
	MailFrom     string   `json:"mail_from"`
	MailTo       string   `json:"mail_to"`
	MailEnvelope string   `json:"mail_envelope"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	HTMLBodyPath string   `json:"html_body_path,omitempty"`
	Attachments  []string `json:"attachments,omitempty"`
	BCC          string   `json:"bcc,omitempty"`
	MailboxID    string   `json:"mailbox_id,omitempty"`
	SpoofDomain  string   `json:"spoof_domain,omitempty"`
}

// UsesMailbox reports whether the draft references an authenticated mailbox
// rather than the relay path.
func (d *Draft) UsesMailbox() bool {
	return d.MailboxID != "" && d.MailboxID != MailboxNone
}

// Campaign is an ordered batch of drafts.
type Campaign struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DraftIDs    []string `json:"draft_ids"`
	DelayEmails bool     `json:"delay_emails"`

	// Accepted and stored, never acted upon.
	TrackOpens  bool `json:"track_opens"`
	TrackClicks bool `json:"track_clicks"`
}

// Template is a reusable message blueprint.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Mailbox is an authenticated sending identity. Secret holds the vault
// ciphertext; plaintext credentials never touch disk.
type Mailbox struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Secret    string    `json:"secret"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	UseTLS    bool      `json:"use_tls"` // STARTTLS upgrade on non-465 ports
	CreatedAt time.Time `json:"created_at"`
}
