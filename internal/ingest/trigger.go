// Package ingest reacts to finished client uploads by provisioning the
// client's search data source.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"icdeck/internal/kendra"
	"icdeck/internal/logging"
	"icdeck/internal/objectstore"
)

// Provisioner creates and syncs the data source of one client.
type Provisioner interface {
	Provision(ctx context.Context, name string) (kendra.SyncResult, error)
}

const (
	ActionProvisioned = "provisioned"
	ActionIgnored     = "ignored"
)

// Outcome reports what happened for one uploaded object.
type Outcome struct {
	Bucket     string
	Key        string
	ClientName string
	Action     string
	Sync       kendra.SyncResult
}

type Trigger struct {
	provisioner Provisioner
	logger      *zap.Logger
}

func NewTrigger(p Provisioner, logger *zap.Logger) *Trigger {
	return &Trigger{provisioner: p, logger: logging.OrNop(logger)}
}

// ParseMarker returns the client name when key is a completion marker
// directly under client_<name>/.
func ParseMarker(key string) (string, bool) {
	dir, file := path.Split(key)
	if file != objectstore.CompletionMarker {
		return "", false
	}
	dir = strings.TrimSuffix(dir, "/")
	if strings.Contains(dir, "/") {
		return "", false
	}
	name, ok := strings.CutPrefix(dir, "client_")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// HandleObject provisions the client when key is a completion marker and
// ignores every other object.
func (t *Trigger) HandleObject(ctx context.Context, bucket, key string) (Outcome, error) {
	out := Outcome{Bucket: bucket, Key: key, Action: ActionIgnored}
	name, ok := ParseMarker(key)
	if !ok {
		t.logger.Debug("object is not a completion marker", zap.String("bucket", bucket), zap.String("key", key))
		return out, nil
	}
	out.ClientName = name

	res, err := t.provisioner.Provision(ctx, name)
	if err != nil {
		return out, fmt.Errorf("failed to provision data source for %s: %w", name, err)
	}
	out.Action = ActionProvisioned
	out.Sync = res
	t.logger.Info("client data source provisioned",
		zap.String("client", res.ClientID),
		zap.String("data_source", res.DataSourceID),
		zap.String("execution", res.ExecutionID))
	return out, nil
}

// Handle processes every record of an S3 notification. Records are handled
// independently; failures are joined.
func (t *Trigger) Handle(ctx context.Context, ev events.S3Event) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(ev.Records))
	var errs []error
	for _, rec := range ev.Records {
		key := rec.S3.Object.URLDecodedKey
		if key == "" {
			key = rec.S3.Object.Key
		}
		out, err := t.HandleObject(ctx, rec.S3.Bucket.Name, key)
		outcomes = append(outcomes, out)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return outcomes, errors.Join(errs...)
}
