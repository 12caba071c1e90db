package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ecotrade_flows/models"
	"ecotrade_flows/services"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Show the search window the next run would use for each account",
	RunE:  runWindow,
}

func init() {
	rootCmd.AddCommand(windowCmd)
}

func runWindow(cmd *cobra.Command, _ []string) error {
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
	resolver := services.NewWatermarkResolver(a.store)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tUSERNAME\tFROM\tTO\tSOURCE")
	for _, acc := range accounts {
		source := "watermark"
		var window models.Window
		if a.cfg.ForceDate != nil {
			d := models.DateOf(*a.cfg.ForceDate)
			window, source = models.Window{Start: d, End: d}, "FORCE_DATE"
		} else if window, err = resolver.Resolve(ctx, acc.ResellerID, acc.WholesalerID, acc.Measure); err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\terror: %v\n", acc.Label(), acc.Username, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", acc.Label(), acc.Username,
			window.Start.Format(models.DateLayout), window.End.Format(models.DateLayout), source)
	}
	return w.Flush()
}
