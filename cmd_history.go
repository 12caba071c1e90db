package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ecotrade_flows/models"
)

var historyCmd = &cobra.Command{
	Use:   "history <username>",
	Short: "Show the latest outcome records for a login",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Records per measure type")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.store.ActiveAccounts(ctx, a.cfg.PartnerTag)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tOPERATED\tFROM\tTO\tSUCCESS\tLOG LINES")
	found := false
	for _, acc := range accounts {
		if acc.Username != args[0] {
			continue
		}
		found = true
		outcomes, err := a.store.RecentOutcomes(ctx, acc.ResellerID, acc.WholesalerID, acc.Measure, historyLimit)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\n", acc.Label(),
				o.OperatedAt.Format("2006-01-02 15:04:05"),
				o.WindowStart.Format(models.DateLayout), o.WindowEnd.Format(models.DateLayout),
				o.Success, strings.Count(o.LogText, "\n"))
		}
	}
	if !found {
		return fmt.Errorf("no active account with username %q", args[0])
	}
	return w.Flush()
}
