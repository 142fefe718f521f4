package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"icdeck/internal/app"
)

var (
	genClients []string
	genSection string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and store decks for clients",
	Long: `Initializes the section flows, then generates one deck per client.
Without --client every client found in the index is processed.
With --section only that section is generated and printed; no deck is stored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if genSection != "" {
				return generateSection(ctx, cmd, a)
			}

			run, err := a.DeckRun()
			if err != nil {
				return err
			}
			res, err := run.Run(ctx, genClients)
			for _, d := range res.Decks {
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %s -> %s\n", d.ClientID, d.Location)
			}
			for client, cerr := range res.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "❌ %s: %v\n", client, cerr)
			}
			if res.ReportPath != "" {
				logger.Info("run report written", zap.String("path", res.ReportPath))
			}
			return err
		})
	},
}

func generateSection(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	if len(genClients) != 1 {
		return fmt.Errorf("--section needs exactly one --client")
	}
	gen, err := a.Generator()
	if err != nil {
		return err
	}
	if err := a.InitFlows(ctx); err != nil {
		return err
	}
	res, err := gen.Generate(ctx, genSection, genClients[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	return nil
}

func init() {
	generateCmd.Flags().StringSliceVar(&genClients, "client", nil, "Client id (repeatable); default is every client in the index")
	generateCmd.Flags().StringVar(&genSection, "section", "", "Generate only this section and print it")
}
