// cmd/domainmon/cmd/alerts.go
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/monitoring"
)

var (
	alertsDomain    string
	alertsOlderThan time.Duration
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert management commands",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved alerts, newest first",
	Long: `List unresolved alerts, newest first.

Example:
  domainmon alerts list --domain example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		alerts, err := monitoring.New(cfg.Monitoring, store).GetActiveAlerts(cmd.Context(), alertsDomain)
		if err != nil {
			return err
		}
		printAlerts(cmd.OutOrStdout(), alerts)
		return nil
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark an alert as resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := monitoring.New(cfg.Monitoring, store).ResolveAlert(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resolved alert %s\n", args[0])
		return nil
	},
}

var alertsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one alert as JSON, including resolved and archived ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		alert, err := store.GetAlert(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(alert)
	},
}

var alertsArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive resolved alerts",
	Long: `Archive alerts that were resolved more than --older-than ago. Archived
alerts are kept and remain visible through "alerts show".

Example:
  domainmon alerts archive --older-than 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsOlderThan < 0 {
			return fmt.Errorf("--older-than cannot be negative")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := monitoring.NewAlertArchiver(store, alertsOlderThan, time.Hour).ArchiveOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %d resolved alert(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsResolveCmd)
	alertsCmd.AddCommand(alertsShowCmd)
	alertsCmd.AddCommand(alertsArchiveCmd)

	alertsListCmd.Flags().StringVar(&alertsDomain, "domain", "", "only alerts for this domain")
	alertsArchiveCmd.Flags().DurationVar(&alertsOlderThan, "older-than", 30*24*time.Hour, "minimum age since resolution")
}

func printAlerts(out io.Writer, alerts []database.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No active alerts.")
		return
	}

	fmt.Fprintf(out, "\n%-36s  %-28s  %-14s  %-8s  %s\n",
		"ID", "DOMAIN", "TYPE", "SEVERITY", "CREATED")
	fmt.Fprintln(out, strings.Repeat("-", 110))
	for _, a := range alerts {
		fmt.Fprintf(out, "%-36s  %-28s  %-14s  %-8s  %s\n",
			a.ID,
			truncate(a.Domain, 28),
			a.AlertType,
			a.Severity,
			a.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	fmt.Fprintf(out, "\nTotal: %d alert(s)\n", len(alerts))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-2]) + ".."
}
