package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ecotrade_flows/scraper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every active account once and exit",
	RunE:  runOnce,
}

var (
	runUser    string
	runMeasure string
)

func init() {
	runCmd.Flags().StringVarP(&runUser, "user", "u", "", "Only process this portal username")
	runCmd.Flags().StringVarP(&runMeasure, "measure", "m", "", "With --user, only this measure type (Power or Gas)")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(ctx, nil)
	if err != nil {
		return err
	}

	logrus.Info("Starting retrieval pass")
	var summary *scraper.Summary
	if runUser != "" {
		summary, err = orch.RunAccount(ctx, runUser, runMeasure)
	} else {
		summary, err = orch.RunAll(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Accounts: %d, succeeded: %d\n", summary.Accounts, summary.Succeeded)
	for _, label := range summary.Abandoned {
		fmt.Printf("  abandoned: %s\n", label)
	}
	return nil
}
