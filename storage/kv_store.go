package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semtopo/processor/topology"
)

// DefaultKVBucket is the bucket used when none is configured.
const DefaultKVBucket = "TOPOLOGY_ARTIFACTS"

// kvBucket is the subset of jetstream.KeyValue the store uses.
type kvBucket interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// KVStore keeps artifacts in a NATS KV bucket. Keys use the
// <target>/<commit>/<name> layout shared by every store.
type KVStore struct {
	kv kvBucket
}

// NewKVStore opens the bucket, creating it if it does not exist.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultKVBucket
	}
	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("open artifact bucket %s: %w", bucket, err)
	}
	return &KVStore{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, err
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Topology artifacts by target and commit",
		History:     5,
	})
}

func (s *KVStore) Put(ctx context.Context, run topology.RunContext, name string, content []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, ArtifactKey(run, name), content); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, run topology.RunContext, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(ctx, ArtifactKey(run, name))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return entry.Value(), nil
}

func (s *KVStore) List(ctx context.Context, run topology.RunContext) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list artifact keys: %w", err)
	}

	prefix := RunPrefix(run) + "/"
	names := make([]string, 0, len(topology.ArtifactNames))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			names = append(names, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}
