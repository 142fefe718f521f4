package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"icdeck/internal/app"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Manage the per-section Bedrock flows",
}

var flowsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create or update section flows so they serve the current prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if err := a.InitFlows(ctx); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SECTION\tFLOW\tACTION\tFLOW ID\tALIAS ID")
			for _, o := range a.Registry.Outcomes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.SectionID, o.FlowName, o.Action, o.Handle.FlowID, o.Handle.AliasID)
			}
			return w.Flush()
		})
	},
}

var flowsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare each remote flow's prompt with the local prompt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			results, err := a.Registry.Verify(ctx, a.Catalog.All())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SECTION\tFLOW\tSTATUS\tIN SYNC\tLOCAL\tREMOTE")
			drifted := 0
			for _, v := range results {
				if !v.InSync {
					drifted++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", v.SectionID, v.FlowName, v.Status, v.InSync, short(v.Local), short(v.Remote))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if drifted > 0 {
				return fmt.Errorf("%d flow(s) out of sync; run `icdeck flows sync`", drifted)
			}
			return nil
		})
	},
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	if fp == "" {
		return "-"
	}
	return fp
}

func init() {
	flowsCmd.AddCommand(flowsSyncCmd)
	flowsCmd.AddCommand(flowsVerifyCmd)
}
