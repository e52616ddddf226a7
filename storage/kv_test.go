//go:build integration

package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func init() {
	storeFactories["nats-kv"] = newTestKVStore
}

// newTestJetStream starts a JetStream-enabled NATS container for the test.
func newTestJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	return js
}

func newTestKVStore(t *testing.T) Store {
	t.Helper()
	bucket := "T" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s, err := NewKVStore(context.Background(), newTestJetStream(t), bucket)
	require.NoError(t, err)
	return s
}

func TestKVStoreReopensBuckets(t *testing.T) {
	ctx := context.Background()
	js := newTestJetStream(t)

	first, err := NewKVStore(ctx, js, "")
	require.NoError(t, err)
	a := sampleArtifact()
	require.NoError(t, first.Put(ctx, a, []byte("<schema/>")))

	second, err := NewKVStore(ctx, js, DefaultBucket)
	require.NoError(t, err)
	got, err := second.Get(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	data, err := second.Content(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, []byte("<schema/>"), data)
}
