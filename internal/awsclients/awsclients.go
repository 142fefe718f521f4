// Package awsclients builds the service clients from the default credential
// chain.
package awsclients

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/kendra"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Clients struct {
	Config  aws.Config
	Kendra  *kendra.Client
	Agent   *bedrockagent.Client
	Runtime *bedrockagentruntime.Client
	S3      *s3.Client
}

// Load resolves credentials and region. An empty region defers to the
// environment and shared config.
func Load(ctx context.Context, region string) (*Clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(cfg), nil
}

func New(cfg aws.Config) *Clients {
	return &Clients{
		Config:  cfg,
		Kendra:  kendra.NewFromConfig(cfg),
		Agent:   bedrockagent.NewFromConfig(cfg),
		Runtime: bedrockagentruntime.NewFromConfig(cfg),
		S3:      s3.NewFromConfig(cfg),
	}
}
