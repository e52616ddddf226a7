package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/query/adapter"
	"github.com/c360studio/artificer/query/eval"
)

// storeFactories builds each Store implementation the shared tests run
// against. Integration builds add the NATS-backed store.
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(*testing.T) Store { return NewMemoryStore() },
	"sqlite-memory": func(t *testing.T) Store {
		s, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		return s
	},
	"sqlite-file": func(t *testing.T) Store {
		s, err := OpenSQLite("file:" + filepath.Join(t.TempDir(), "artificer.db"))
		require.NoError(t, err)
		return s
	},
}

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	stores := make(map[string]Store, len(storeFactories))
	for name, open := range storeFactories {
		stores[name] = open(t)
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func sampleArtifact() *artifact.Artifact {
	a := artifact.New(artifact.NewType(artifact.XSDDocument))
	a.Name = "teetime.xsd"
	a.Version = "1.0"
	a.ContentType = artifact.MimeXML
	a.ContentSize = 4096
	a.CreatedTimestamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a.SetProperty("targetNamespace", "urn:teetime")
	a.AddClassification("http://example.org/regions#Europe")
	return a
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			a := sampleArtifact()
			content := bytes.Repeat([]byte("<xsd:element name='x'/>\n"), 200)

			require.NoError(t, s.Put(ctx, a, content))

			got, err := s.Get(ctx, a.UUID)
			require.NoError(t, err)
			assert.Equal(t, a.Name, got.Name)
			assert.Equal(t, a.Type, got.Type)
			assert.Equal(t, a.Properties, got.Properties)
			assert.Equal(t, a.Classifications, got.Classifications)
			assert.True(t, a.CreatedTimestamp.Equal(got.CreatedTimestamp))

			data, err := s.Content(ctx, a.UUID)
			require.NoError(t, err)
			assert.Equal(t, content, data)

			a.Name = "renamed.xsd"
			require.NoError(t, s.Put(ctx, a, nil))
			got, err = s.Get(ctx, a.UUID)
			require.NoError(t, err)
			assert.Equal(t, "renamed.xsd", got.Name)
			_, err = s.Content(ctx, a.UUID)
			assert.ErrorIs(t, err, ErrNoContent)

			all, err := s.Artifacts(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)

			require.NoError(t, s.Delete(ctx, a.UUID))
			_, err = s.Get(ctx, a.UUID)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, a.UUID), ErrNotFound)
			_, err = s.Content(ctx, a.UUID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreRejectsBadUUID(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			a := sampleArtifact()
			a.UUID = "has spaces"
			assert.ErrorIs(t, s.Put(context.Background(), a, nil), ErrInvalidUUID)
		})
	}
}

func TestStoreAsQuerySource(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			xsd := sampleArtifact()
			wsdl := artifact.New(artifact.NewType(artifact.WSDLDocument))
			wsdl.Name = "teetime.wsdl"
			require.NoError(t, s.Put(ctx, xsd, []byte("<schema/>")))
			require.NoError(t, s.Put(ctx, wsdl, []byte("<definitions/>")))

			q := adapter.New("/s-ramp/xsd/XsdDocument[@targetNamespace = ?]", eval.NewExecutor(s, nil)).
				SetString("urn:teetime")
			set, err := q.Execute(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, set.Size())
			assert.Equal(t, xsd.UUID, set.Artifacts[0].UUID)
		})
	}
}

func TestSQLStoreArtifactsOfType(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	web, err := artifact.ExtendedDocumentType("WebXmlDocument")
	require.NoError(t, err)
	for _, typ := range []artifact.ArtifactType{web, artifact.NewType(artifact.XSDDocument), web} {
		require.NoError(t, s.Put(ctx, artifact.New(typ), nil))
	}

	got, err := s.ArtifactsOfType(ctx, web)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := sampleArtifact()
	require.NoError(t, s.Put(ctx, a, nil))

	got, err := s.Get(ctx, a.UUID)
	require.NoError(t, err)
	got.Name = "changed"
	got.SetProperty("targetNamespace", "changed")

	again, err := s.Get(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, "teetime.xsd", again.Name)
	v, _ := again.Property("targetNamespace")
	assert.Equal(t, "urn:teetime", v)
}

func TestCompressContent(t *testing.T) {
	small := []byte("tiny")
	codec, out := compressContent(small)
	assert.Equal(t, CodecNone, codec)
	assert.Equal(t, small, out)

	large := bytes.Repeat([]byte("abcdefgh"), 1024)
	codec, out = compressContent(large)
	assert.Equal(t, CodecZstd, codec)
	assert.Less(t, len(out), len(large))

	back, err := decompressContent(codec, out)
	require.NoError(t, err)
	assert.Equal(t, large, back)

	_, err = decompressContent("lzma", out)
	assert.Error(t, err)
}
