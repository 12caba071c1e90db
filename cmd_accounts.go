package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"ecotrade_flows/models"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the active accounts (credentials are never printed)",
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a wholesaler login for a reseller",
	RunE:  runAccountsAdd,
}

var (
	addResellerID int64
	addUsername   string
	addPassword   string
	addMeasure    string
	addRoot       string
	addPortalURL  string
	addReseller   string
	addEmails     []string
)

func init() {
	f := accountsAddCmd.Flags()
	f.Int64Var(&addResellerID, "reseller", 0, "Reseller id (required)")
	f.StringVarP(&addUsername, "user", "u", "", "Portal username (required)")
	f.StringVarP(&addPassword, "password", "p", "", "Portal password (required)")
	f.StringVarP(&addMeasure, "measure", "m", "", "Measure type, Power or Gas (required)")
	f.StringVar(&addRoot, "root", "", "Account root directory (required)")
	f.StringVar(&addReseller, "name", "", "Reseller name, used when the reseller is new")
	f.StringSliceVar(&addEmails, "email", nil, "Notification recipient (repeatable)")
	f.StringVar(&addPortalURL, "portal", "https://resellersecotrade.enerp.biz/", "Portal login URL")
	for _, name := range []string{"reseller", "user", "password", "measure", "root"} {
		if err := accountsAddCmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}

	accountsCmd.AddCommand(accountsAddCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.store.ActiveAccounts(cmd.Context(), a.cfg.PartnerTag)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRESELLER\tUSERNAME\tMEASURE\tROOT\tRECIPIENTS")
	for _, acc := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			acc.WholesalerID, acc.Reseller, acc.Username, acc.Measure, acc.Root, strings.Join(acc.Recipients, ","))
	}
	return w.Flush()
}

func runAccountsAdd(cmd *cobra.Command, _ []string) error {
	measure, err := models.ParseMeasure(addMeasure)
	if err != nil {
		return err
	}
	acc := &models.Account{
		ResellerID:   addResellerID,
		Reseller:     addReseller,
		Username:     addUsername,
		Password:     addPassword,
		Measure:      measure,
		Root:         addRoot,
		PortalURL:    addPortalURL,
		Recipients:   addEmails,
	}
	// The store assigns the wholesaler id.
	if err := validator.New().StructExcept(acc, "WholesalerID"); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.AddAccount(cmd.Context(), acc, a.cfg.PartnerTag); err != nil {
		return err
	}
	fmt.Printf("Added login %d (%s/%s) for reseller %d\n", acc.WholesalerID, acc.Username, acc.Measure, acc.ResellerID)
	return nil
}
