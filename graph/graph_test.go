package graph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/artificer/artifact"
)

func TestArtifactPayload(t *testing.T) {
	servlet := artifact.New(artifact.MustExtended("ServletDeclaration", true))
	servlet.Name = "Echo"
	servlet.AddRelationship(artifact.RelatedDocument, "doc-1")

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewArtifactPayload(servlet, now)
	require.NoError(t, p.Validate())

	assert.Equal(t, "artificer.ext.ServletDeclaration."+servlet.UUID, p.ID)
	assert.Equal(t, "ext/ServletDeclaration", p.Type)
	assert.True(t, p.Derived)
	assert.Equal(t, []RelationshipPayload{{Type: "relatedDocument", Targets: []string{"doc-1"}}}, p.Relationships)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, servlet.UUID, decoded["uuid"])
	assert.Equal(t, "Echo", decoded["name"])
}

func TestPayloadValidate(t *testing.T) {
	assert.Error(t, (&ArtifactPayload{Type: "core/Document"}).Validate())
	assert.Error(t, (&ArtifactPayload{UUID: "x"}).Validate())
}

func TestNilConnectionIsNoop(t *testing.T) {
	p := NewPublisher(nil, "", nil)
	assert.Equal(t, "artificer.artifact.derived", p.Subject(SubjectArtifactDerived))

	a := artifact.New(artifact.NewType(artifact.Document))
	assert.NoError(t, p.PublishDerived(context.Background(), []*artifact.Artifact{a}))
	assert.NoError(t, p.PublishConverted(context.Background(), "x.jar", "JavaArchive", nil))

	var nilPublisher *Publisher
	assert.NoError(t, nilPublisher.PublishDerived(context.Background(), nil))
}
