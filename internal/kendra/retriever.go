// Package kendra adapts the Amazon Kendra index that holds client documents:
// client-filtered retrieval, discovery of client ids from the index's data
// sources and creation of per-client S3 data sources.
package kendra

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kendra"
	"github.com/aws/aws-sdk-go-v2/service/kendra/types"

	"icdeck/internal/evidence"
	"icdeck/internal/faults"
)

// ClientAttribute is the document attribute that scopes evidence to a client.
const ClientAttribute = "client_id"

// API is the subset of the Kendra client used by this package.
type API interface {
	Retrieve(ctx context.Context, in *kendra.RetrieveInput, optFns ...func(*kendra.Options)) (*kendra.RetrieveOutput, error)
	ListDataSources(ctx context.Context, in *kendra.ListDataSourcesInput, optFns ...func(*kendra.Options)) (*kendra.ListDataSourcesOutput, error)
	DescribeDataSource(ctx context.Context, in *kendra.DescribeDataSourceInput, optFns ...func(*kendra.Options)) (*kendra.DescribeDataSourceOutput, error)
	CreateDataSource(ctx context.Context, in *kendra.CreateDataSourceInput, optFns ...func(*kendra.Options)) (*kendra.CreateDataSourceOutput, error)
	StartDataSourceSyncJob(ctx context.Context, in *kendra.StartDataSourceSyncJobInput, optFns ...func(*kendra.Options)) (*kendra.StartDataSourceSyncJobOutput, error)
}

// Retriever is an evidence.Store backed by the Kendra Retrieve API.
type Retriever struct {
	api      API
	indexID  string
	pageSize int32
}

var _ evidence.Store = (*Retriever)(nil)

func NewRetriever(api API, indexID string, pageSize int32) (*Retriever, error) {
	if indexID == "" {
		return nil, faults.Configuration("kendra.NewRetriever", "index id is empty")
	}
	return &Retriever{api: api, indexID: indexID, pageSize: pageSize}, nil
}

// Retrieve returns passages for query whose client_id attribute equals
// clientID, in the index's ranking order.
func (r *Retriever) Retrieve(ctx context.Context, query, clientID string) ([]evidence.Item, error) {
	if clientID == "" {
		return nil, faults.Configuration("kendra.Retrieve", "client id is empty")
	}
	in := &kendra.RetrieveInput{
		IndexId:   aws.String(r.indexID),
		QueryText: aws.String(query),
		AttributeFilter: &types.AttributeFilter{
			EqualsTo: &types.DocumentAttribute{
				Key:   aws.String(ClientAttribute),
				Value: &types.DocumentAttributeValue{StringValue: aws.String(clientID)},
			},
		},
	}
	if r.pageSize > 0 {
		in.PageSize = aws.Int32(r.pageSize)
	}

	out, err := r.api.Retrieve(ctx, in)
	if err != nil {
		return nil, faults.Transient("kendra.Retrieve", err)
	}

	items := make([]evidence.Item, 0, len(out.ResultItems))
	for _, ri := range out.ResultItems {
		content := strings.TrimSpace(aws.ToString(ri.Content))
		if content == "" {
			continue
		}
		items = append(items, evidence.Item{
			Content: content,
			Locator: aws.ToString(ri.DocumentURI),
		})
	}
	return items, nil
}
