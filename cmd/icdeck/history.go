package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"icdeck/internal/app"
)

var (
	historyClient string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previously generated decks from the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			ledger, err := a.Ledger()
			if err != nil {
				return err
			}
			arts, err := ledger.ListArtifacts(ctx, historyClient, historyLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GENERATED\tCLIENT\tSECTIONS\tEVIDENCE\tKEY")
			for _, art := range arts {
				evidence := 0
				for _, s := range art.Sections {
					evidence += s.EvidenceItems
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					art.GeneratedAt.Local().Format(time.DateTime), art.ClientID, len(art.Sections), evidence, art.Key)
			}
			return w.Flush()
		})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyClient, "client", "", "Only decks of this client")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum rows (0 for all)")
}
