package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackgate/stackgate/internal/audit"
	"github.com/stackgate/stackgate/internal/config"
)

func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	auditCmd.AddCommand(newAuditVerifyCmd())
	auditCmd.AddCommand(newAuditShowCmd())

	return auditCmd
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		Long: `Recompute every link of the audit hash chain. A mismatch means a record
was altered or removed after it was written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := audit.Open(cfg.State.Dir)
			if err != nil {
				return err
			}
			defer db.Close()

			_, count, err := audit.Verify(db)
			if err != nil {
				return fmt.Errorf("audit chain verification failed: %w", err)
			}
			fmt.Printf("Audit chain intact: %d records.\n", count)
			return nil
		},
	}
}

func newAuditShowCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show recent audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := audit.Open(cfg.State.Dir)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := audit.Recent(db, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("Audit log is empty.")
				return nil
			}

			fmt.Printf("%-30s %-15s %-24s %-22s %s\n", "TIMESTAMP", "EVENT", "CALLER", "ACTION", "DETAIL")
			for _, r := range records {
				caller := "-"
				if r.Tenant != "" || r.Principal != "" {
					caller = r.Tenant + "/" + r.Principal
				}
				action := r.Action
				if action == "" {
					action = "-"
				}
				fmt.Printf("%-30s %-15s %-24s %-22s %s\n",
					r.Timestamp, r.EventType, caller, action, r.Detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to show")

	return cmd
}
