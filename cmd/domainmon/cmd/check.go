// cmd/domainmon/cmd/check.go
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/monitoring"
)

var checkAll bool

var checkCmd = &cobra.Command{
	Use:   "check [domain]",
	Short: "Probe a domain now",
	Long: `Probe one domain and print the health result as JSON. Nothing is stored.

With --all, run one full monitoring cycle over every enabled domain in the
store: health is written back and alerts are raised as in serve.

Examples:
  domainmon check example.com
  domainmon check --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		if checkAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
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

		monitor := monitoring.New(cfg.Monitoring, store)
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if !checkAll {
			data, err := json.MarshalIndent(monitor.CheckDomainHealth(ctx, args[0]), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if err := monitor.SyncDomains(ctx, cfg.Domains); err != nil {
			return fmt.Errorf("sync domains: %w", err)
		}
		monitor.RunCycle(ctx)

		alerts, err := monitor.GetActiveAlerts(ctx, "")
		if err != nil {
			return err
		}
		printAlerts(out, alerts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "run one cycle over every enabled domain")
}
