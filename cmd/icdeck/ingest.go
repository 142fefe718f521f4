package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"icdeck/internal/app"
	"icdeck/internal/crawler"
	"icdeck/internal/ingest"
)

var (
	uploadClient string
	ingestBucket string
	ingestKey    string
)

var uploadCmd = &cobra.Command{
	Use:   "upload --client name paths...",
	Short: "Upload client documents (files or directories) and mark the batch complete",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			up, err := a.Uploader()
			if err != nil {
				return err
			}
			files, err := crawler.NewCrawler().Collect(args...)
			if err != nil {
				return err
			}
			res, err := up.UploadBatch(ctx, uploadClient, files)
			if err != nil {
				return err
			}
			for _, k := range res.Keys {
				fmt.Fprintf(cmd.OutOrStdout(), "📄 %s\n", k)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s\n", res.Marker)
			return nil
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest --key client_<name>/_complete.txt",
	Short: "Provision a client's data source as if its completion marker had just arrived",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			tr, err := a.Trigger()
			if err != nil {
				return err
			}
			bucket := ingestBucket
			if bucket == "" {
				bucket = a.Config.Buckets.Input
			}
			out, err := tr.HandleObject(ctx, bucket, ingestKey)
			if err != nil {
				return err
			}
			if out.Action == ingest.ActionIgnored {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not a completion marker; nothing to do\n", ingestKey)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: data source %s, sync %s\n",
				out.Sync.ClientID, out.Sync.DataSourceID, out.Sync.ExecutionID)
			return nil
		})
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadClient, "client", "", "Client name; files go under client_<name>/")
	_ = uploadCmd.MarkFlagRequired("client")

	ingestCmd.Flags().StringVar(&ingestBucket, "bucket", "", "Bucket of the event (default: input bucket)")
	ingestCmd.Flags().StringVar(&ingestKey, "key", "", "Object key of the event")
	_ = ingestCmd.MarkFlagRequired("key")
}
