package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdKeyPrefix = "/icdeck/fingerprints/"

// EtcdStore keeps fingerprints under /icdeck/fingerprints/<flow>.
type EtcdStore struct {
	client *clientv3.Client
}

func NewEtcdStore(endpoints []string) (*EtcdStore, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &EtcdStore{client: cli}, nil
}

func (s *EtcdStore) Fingerprint(ctx context.Context, flowName string) (string, bool, error) {
	resp, err := s.client.Get(ctx, etcdKeyPrefix+flowName)
	if err != nil {
		return "", false, fmt.Errorf("failed to read fingerprint for %s: %w", flowName, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (s *EtcdStore) SetFingerprint(ctx context.Context, flowName, fp string) error {
	if _, err := s.client.Put(ctx, etcdKeyPrefix+flowName, fp); err != nil {
		return fmt.Errorf("failed to write fingerprint for %s: %w", flowName, err)
	}
	return nil
}

// Fingerprints lists every stored flow fingerprint.
func (s *EtcdStore) Fingerprints(ctx context.Context) (map[string]string, error) {
	resp, err := s.client.Get(ctx, etcdKeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	out := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out[strings.TrimPrefix(string(kv.Key), etcdKeyPrefix)] = string(kv.Value)
	}
	return out, nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
