package kendra

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kendra"
	"github.com/aws/aws-sdk-go-v2/service/kendra/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"icdeck/internal/logging"
)

// ClientPrefix returns the bucket prefix and client id for a client name.
func ClientPrefix(name string) (prefix, clientID string) {
	clientID = "client_" + name
	return clientID + "/", clientID
}

// DataSources creates and syncs per-client S3 data sources.
type DataSources struct {
	api          API
	indexID      string
	roleARN      string
	bucket       string
	pollInterval time.Duration
	maxAttempts  int
	logger       *zap.Logger
}

type DataSourcesConfig struct {
	IndexID      string
	RoleARN      string
	Bucket       string
	PollInterval time.Duration
	MaxAttempts  int
}

func NewDataSources(api API, cfg DataSourcesConfig, logger *zap.Logger) *DataSources {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	return &DataSources{
		api:          api,
		indexID:      cfg.IndexID,
		roleARN:      cfg.RoleARN,
		bucket:       cfg.Bucket,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		logger:       logging.OrNop(logger),
	}
}

// SyncResult identifies the data source and sync job started for a client.
type SyncResult struct {
	ClientID     string
	DataSourceID string
	ExecutionID  string
}

// Provision creates the data source for client name, waits for it to become
// active and starts its first sync job.
func (d *DataSources) Provision(ctx context.Context, name string) (SyncResult, error) {
	prefix, clientID := ClientPrefix(name)
	res := SyncResult{ClientID: clientID}

	out, err := d.api.CreateDataSource(ctx, d.createInput(name, prefix, clientID))
	if err != nil {
		return res, fmt.Errorf("failed to create data source for %s: %w", clientID, err)
	}
	res.DataSourceID = aws.ToString(out.Id)
	d.logger.Info("data source created",
		zap.String("client", clientID),
		zap.String("data_source", res.DataSourceID))

	if err := d.WaitActive(ctx, res.DataSourceID); err != nil {
		return res, err
	}

	sync, err := d.api.StartDataSourceSyncJob(ctx, &kendra.StartDataSourceSyncJobInput{
		Id:      aws.String(res.DataSourceID),
		IndexId: aws.String(d.indexID),
	})
	if err != nil {
		return res, fmt.Errorf("failed to start sync for %s: %w", clientID, err)
	}
	res.ExecutionID = aws.ToString(sync.ExecutionId)
	d.logger.Info("data source sync started",
		zap.String("client", clientID),
		zap.String("execution", res.ExecutionID))
	return res, nil
}

// WaitActive polls the data source until it is ACTIVE. FAILED, an unexpected
// status or running out of attempts is an error.
func (d *DataSources) WaitActive(ctx context.Context, id string) error {
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		out, err := d.api.DescribeDataSource(ctx, &kendra.DescribeDataSourceInput{
			Id:      aws.String(id),
			IndexId: aws.String(d.indexID),
		})
		if err != nil {
			return fmt.Errorf("failed to describe data source %s: %w", id, err)
		}

		switch out.Status {
		case types.DataSourceStatusActive:
			return nil
		case types.DataSourceStatusFailed:
			return fmt.Errorf("data source %s failed: %s", id, aws.ToString(out.ErrorMessage))
		case types.DataSourceStatusCreating, types.DataSourceStatusUpdating:
			d.logger.Debug("waiting for data source",
				zap.String("data_source", id),
				zap.String("status", string(out.Status)),
				zap.Int("attempt", attempt))
		default:
			return fmt.Errorf("data source %s in unexpected status %q", id, out.Status)
		}

		if attempt == d.maxAttempts {
			break
		}
		timer := time.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("data source %s not active after %d attempts", id, d.maxAttempts)
}

func (d *DataSources) createInput(name, prefix, clientID string) *kendra.CreateDataSourceInput {
	return &kendra.CreateDataSourceInput{
		IndexId:     aws.String(d.indexID),
		Name:        aws.String(clientID + "-docs"),
		Type:        types.DataSourceTypeS3,
		RoleArn:     aws.String(d.roleARN),
		Description: aws.String("Client " + name + " documents"),
		ClientToken: aws.String(uuid.NewString()),
		Configuration: &types.DataSourceConfiguration{
			S3Configuration: &types.S3DataSourceConfiguration{
				BucketName:        aws.String(d.bucket),
				InclusionPrefixes: []string{prefix},
				DocumentsMetadataConfiguration: &types.DocumentsMetadataConfiguration{
					S3Prefix: aws.String(prefix),
				},
			},
		},
		CustomDocumentEnrichmentConfiguration: &types.CustomDocumentEnrichmentConfiguration{
			InlineConfigurations: []types.InlineCustomDocumentEnrichmentConfiguration{{
				Condition: &types.DocumentAttributeCondition{
					ConditionDocumentAttributeKey: aws.String("_source_uri"),
					Operator:                      types.ConditionOperatorContains,
					ConditionOnValue:              &types.DocumentAttributeValue{StringValue: aws.String(prefix)},
				},
				Target: &types.DocumentAttributeTarget{
					TargetDocumentAttributeKey:   aws.String(ClientAttribute),
					TargetDocumentAttributeValue: &types.DocumentAttributeValue{StringValue: aws.String(clientID)},
				},
			}},
		},
	}
}
