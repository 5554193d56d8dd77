package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spoofsent/spoofsent/internal/app"
	"github.com/spoofsent/spoofsent/internal/audit"
	"github.com/spoofsent/spoofsent/internal/config"
	"github.com/spoofsent/spoofsent/internal/delivery"
	"github.com/spoofsent/spoofsent/internal/relay"
	"github.com/spoofsent/spoofsent/internal/store"
	"github.com/spoofsent/spoofsent/internal/vault"
)

var (
	sendMailFrom    string
	sendMailTo      string
	sendEnvelope    string
	sendSubject     string
	sendBody        string
	sendHTMLBody    string
	sendSpoofDomain string
	sendBCC         string
	sendAttach      []string
	sendMailbox     string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single email",
	Long: `Send one email immediately, without the server. Without --mailbox the
message goes through the spoofing relay, which requires root.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendMailFrom, "mail-from", "", "From header address")
	sendCmd.Flags().StringVar(&sendMailTo, "mail-to", "", "recipient address")
	sendCmd.Flags().StringVar(&sendEnvelope, "mail-envelope", "", "envelope/return-path address")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "message subject")
	sendCmd.Flags().StringVar(&sendBody, "body", "", "plain text body")
	sendCmd.Flags().StringVar(&sendHTMLBody, "htmlbody", "", "path to an HTML body file")
	sendCmd.Flags().StringVar(&sendSpoofDomain, "spoof-domain", "", "domain to impersonate on the relay path")
	sendCmd.Flags().StringVar(&sendBCC, "bcc", "", "blind copy address")
	sendCmd.Flags().StringArrayVar(&sendAttach, "attach", nil, "attachment file path (repeatable)")
	sendCmd.Flags().StringVar(&sendMailbox, "mailbox", "", "stored mailbox id for authenticated sending")

	sendCmd.MarkFlagRequired("mail-from")
	sendCmd.MarkFlagRequired("mail-to")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := app.SetupLogger(cfg.Logging)

	mailboxes, err := store.NewMailboxStore(cfg.MailboxFile())
	if err != nil {
		return fmt.Errorf("failed to open mailbox store: %w", err)
	}
	v, err := vault.Open(cfg.Storage.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to open credential vault: %w", err)
	}
	log, err := audit.NewLog(cfg.Storage.LogFile, audit.NewHub())
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	relayCtl := relay.NewPostfix(cfg.Relay.MainCf, cfg.Relay.Service, cfg.Relay.MailCommand, logger)
	dispatcher := delivery.New(
		mailboxes,
		v,
		relayCtl,
		cfg.Server.Hostname,
		cfg.UploadsDir(),
		cfg.SMTP.ConnectTimeout,
		logger,
	)

	draft := &store.Draft{
		MailFrom:     sendMailFrom,
		MailTo:       sendMailTo,
		MailEnvelope: sendEnvelope,
		Subject:      sendSubject,
		Body:         sendBody,
		HTMLBodyPath: sendHTMLBody,
		Attachments:  sendAttach,
		BCC:          sendBCC,
		MailboxID:    sendMailbox,
		SpoofDomain:  sendSpoofDomain,
	}

	res := dispatcher.Send(context.Background(), draft)
	entry := audit.NewEntry(draft.MailFrom, draft.MailTo, draft.Subject, res.Success, res.Message)
	if err := log.Append(entry); err != nil {
		logger.Error("failed to append log entry", "error", err)
	}

	if !res.Success {
		return fmt.Errorf("send failed: %s", res.Message)
	}
	fmt.Println(res.Message)
	return nil
}
