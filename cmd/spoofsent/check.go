package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/spoofsent/spoofsent/internal/app"
	"github.com/spoofsent/spoofsent/internal/config"
	"github.com/spoofsent/spoofsent/internal/posture"
)

var checkFormat string

var checkCmd = &cobra.Command{
	Use:   "check <domain>",
	Short: "Evaluate a domain's email security posture",
	Long:  `Resolve SPF, DKIM, and DMARC records for a domain and report how feasible spoofing it is.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkFormat, "format", "text", "Output format (text, json)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := app.SetupLogger(cfg.Logging)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	evaluator := posture.NewEvaluator(nil, logger)
	report, err := evaluator.Check(ctx, args[0])
	if err != nil {
		return err
	}

	if checkFormat == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Checking email security posture for: %s\n\n", report.Domain)

	if report.SPF.Exists {
		fmt.Printf("  SPF:   %s (%s)\n", report.SPF.Status, report.SPF.Record)
	} else {
		fmt.Printf("  SPF:   not found\n")
	}
	if report.DKIM.Exists {
		fmt.Printf("  DKIM:  found (selector %s)\n", report.DKIM.Selector)
	} else {
		fmt.Printf("  DKIM:  no record under common selectors\n")
	}
	if report.DMARC.Exists {
		fmt.Printf("  DMARC: p=%s sp=%s\n", report.DMARC.Policy, report.DMARC.SubdomainPolicy)
	} else {
		fmt.Printf("  DMARC: not found\n")
	}

	fmt.Printf("\n%s\n", report.Message)
	return nil
}
