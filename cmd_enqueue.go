package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ecotrade_flows/models"
)

var enqueueCmd = &cobra.Command{
	Use:       "enqueue <run_now|run_account|pause|resume>",
	Short:     "Queue a command for the running daemon",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.CmdRunNow), string(models.CmdRunAccount), string(models.CmdPause), string(models.CmdResume)},
	RunE:      runEnqueue,
}

var (
	enqueueUser    string
	enqueueMeasure string
)

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueUser, "user", "u", "", "Username for run_account")
	enqueueCmd.Flags().StringVarP(&enqueueMeasure, "measure", "m", "", "Measure type for run_account")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	if err := cobra.OnlyValidArgs(cmd, args); err != nil {
		return err
	}
	command := models.CommandType(args[0])
	if command == models.CmdRunAccount && enqueueUser == "" {
		return fmt.Errorf("run_account needs --user")
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var params *models.CommandParams
	if enqueueUser != "" {
		params = &models.CommandParams{Username: enqueueUser, Measure: enqueueMeasure}
	}
	if err := a.store.EnqueueCommand(cmd.Context(), command, params); err != nil {
		return err
	}
	fmt.Printf("Queued %s\n", command)
	return nil
}
