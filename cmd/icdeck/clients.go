package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"icdeck/internal/app"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List client ids known to the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			dir, err := a.Directory()
			if err != nil {
				return err
			}
			ids, err := dir.Clients(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}
