package kendra

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kendra"
	"go.uber.org/zap"

	"icdeck/internal/logging"
)

// Directory discovers client ids from the enrichment rules of the index's
// data sources. Every per-client data source stamps its documents with a
// client_id attribute; the stamped values are the known clients.
type Directory struct {
	api     API
	indexID string
	logger  *zap.Logger
}

func NewDirectory(api API, indexID string, logger *zap.Logger) *Directory {
	return &Directory{api: api, indexID: indexID, logger: logging.OrNop(logger)}
}

// Clients returns the distinct client ids in discovery order. A data source
// that cannot be described is logged and skipped.
func (d *Directory) Clients(ctx context.Context) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)

	var token *string
	for {
		out, err := d.api.ListDataSources(ctx, &kendra.ListDataSourcesInput{
			IndexId:   aws.String(d.indexID),
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list data sources: %w", err)
		}

		for _, ds := range out.SummaryItems {
			desc, err := d.api.DescribeDataSource(ctx, &kendra.DescribeDataSourceInput{
				Id:      ds.Id,
				IndexId: aws.String(d.indexID),
			})
			if err != nil {
				d.logger.Warn("failed to describe data source, skipping",
					zap.String("data_source", aws.ToString(ds.Id)),
					zap.Error(err))
				continue
			}
			for _, id := range enrichmentClientIDs(desc) {
				if seen[id] {
					continue
				}
				seen[id] = true
				ids = append(ids, id)
			}
		}

		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		token = out.NextToken
	}
	return ids, nil
}

func enrichmentClientIDs(desc *kendra.DescribeDataSourceOutput) []string {
	cfg := desc.CustomDocumentEnrichmentConfiguration
	if cfg == nil {
		return nil
	}
	var ids []string
	for _, inline := range cfg.InlineConfigurations {
		target := inline.Target
		if target == nil || aws.ToString(target.TargetDocumentAttributeKey) != ClientAttribute {
			continue
		}
		if target.TargetDocumentAttributeValue == nil {
			continue
		}
		if v := aws.ToString(target.TargetDocumentAttributeValue.StringValue); v != "" {
			ids = append(ids, v)
		}
	}
	return ids
}
