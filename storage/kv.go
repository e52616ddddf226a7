package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/artificer/artifact"
)

// DefaultBucket is the KV bucket artifact metadata is kept in. Content goes
// to an object store named after it with a "_CONTENT" suffix.
const DefaultBucket = "ARTIFICER_ARTIFACTS"

// KVStore keeps metadata in a NATS KV bucket, keyed by UUID and encoded as
// Atom entries, and content in a NATS object store.
type KVStore struct {
	meta    jetstream.KeyValue
	content jetstream.ObjectStore
}

// NewKVStore opens the store's buckets, creating them if they don't exist.
// An empty bucket uses DefaultBucket.
func NewKVStore(ctx context.Context, js jetstream.JetStream, bucket string) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	meta, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("create metadata bucket: %w", err)
	}
	content, err := getOrCreateObjectStore(ctx, js, bucket+"_CONTENT")
	if err != nil {
		return nil, fmt.Errorf("create content bucket: %w", err)
	}
	return &KVStore{meta: meta, content: content}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Artificer %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

func getOrCreateObjectStore(ctx context.Context, js jetstream.JetStream, name string) (jetstream.ObjectStore, error) {
	os, err := js.ObjectStore(ctx, name)
	if err == nil {
		return os, nil
	}
	return js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Artificer %s content", strings.ToLower(name)),
	})
}

// Put implements Store.
func (s *KVStore) Put(ctx context.Context, a *artifact.Artifact, content []byte) error {
	if err := checkUUID(a.UUID); err != nil {
		return err
	}
	data, err := artifact.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if content != nil {
		if _, err := s.content.PutBytes(ctx, a.UUID, content); err != nil {
			return fmt.Errorf("store content: %w", err)
		}
	} else if err := s.content.Delete(ctx, a.UUID); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("drop content: %w", err)
	}
	if _, err := s.meta.Put(ctx, a.UUID, data); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *KVStore) Get(ctx context.Context, uuid string) (*artifact.Artifact, error) {
	if err := checkUUID(uuid); err != nil {
		return nil, ErrNotFound
	}
	entry, err := s.meta.Get(ctx, uuid)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	a, err := artifact.Unmarshal(entry.Value())
	if err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	return a, nil
}

// Content implements Store.
func (s *KVStore) Content(ctx context.Context, uuid string) ([]byte, error) {
	if _, err := s.Get(ctx, uuid); err != nil {
		return nil, err
	}
	data, err := s.content.GetBytes(ctx, uuid)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, ErrNoContent
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *KVStore) Delete(ctx context.Context, uuid string) error {
	if _, err := s.Get(ctx, uuid); err != nil {
		return err
	}
	if err := s.meta.Delete(ctx, uuid); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if err := s.content.Delete(ctx, uuid); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("delete content: %w", err)
	}
	return nil
}

// Artifacts implements Store.
func (s *KVStore) Artifacts(ctx context.Context) ([]*artifact.Artifact, error) {
	keys, err := s.meta.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifact keys: %w", err)
	}

	artifacts := make([]*artifact.Artifact, 0, len(keys))
	for _, key := range keys {
		entry, err := s.meta.Get(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue // Deleted since listing
			}
			return nil, fmt.Errorf("get artifact %s: %w", key, err)
		}
		a, err := artifact.Unmarshal(entry.Value())
		if err != nil {
			return nil, fmt.Errorf("unmarshal artifact %s: %w", key, err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// Close implements Store. The NATS connection belongs to the caller.
func (s *KVStore) Close() error {
	return nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}
